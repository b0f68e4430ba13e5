package entity

import (
	"fmt"
	"math/big"

	"github.com/gosimple/slug"
)

type ProceedsAccount struct {
	Owner   string   `json:"owner"`
	Balance *big.Int `json:"balance"`
}

func (p ProceedsAccount) Slug() string {
	return slug.Make(fmt.Sprintf("proceeds-%s", p.Owner))
}
