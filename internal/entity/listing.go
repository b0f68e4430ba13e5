package entity

import (
	"fmt"
	"math/big"

	"github.com/gosimple/slug"
)

// ListingKey identifies one asset: a collection address plus a token id within it.
type ListingKey struct {
	Contract string `json:"contract"`
	TokenId  uint64 `json:"tokenId"`
}

func (k ListingKey) String() string {
	return fmt.Sprintf("%s/%d", k.Contract, k.TokenId)
}

type Listing struct {
	Contract string   `json:"contract"`
	TokenId  uint64   `json:"tokenId"`
	Seller   string   `json:"seller"`
	Price    *big.Int `json:"price"`
}

func (l Listing) Key() ListingKey {
	return ListingKey{Contract: l.Contract, TokenId: l.TokenId}
}

// Copy returns a listing that shares no memory with l.
func (l Listing) Copy() Listing {
	c := l
	if l.Price != nil {
		c.Price = new(big.Int).Set(l.Price)
	}
	return c
}

func (l Listing) Slug() string {
	return CreateListingSlug(l.Contract, l.TokenId)
}

func CreateListingSlug(contract string, tokenId uint64) string {
	return slug.Make(fmt.Sprintf("listing-%d-%s", tokenId, contract))
}
