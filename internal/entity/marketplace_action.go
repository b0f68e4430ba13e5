package entity

import (
	"crypto/md5"
	"fmt"
	"math/big"
	"time"
)

type MarketplaceAction struct {
	TxID     string     `json:"txId"`
	Action   ActionType `json:"action"`
	Contract string     `json:"contract"`
	TokenId  uint64     `json:"tokenId"`
	Seller   string     `json:"seller"`
	Buyer    string     `json:"buyer"`
	Price    *big.Int   `json:"price"`
	Paid     *big.Int   `json:"paid"`
	Time     time.Time  `json:"time"`
}

type ActionType string

const (
	ListingAction    ActionType = "listing"
	UpdateAction     ActionType = "update"
	DelistingAction  ActionType = "delisting"
	SaleAction       ActionType = "sale"
	WithdrawalAction ActionType = "withdrawal"
)

func (a MarketplaceAction) Listing() Listing {
	return Listing{Contract: a.Contract, TokenId: a.TokenId, Seller: a.Seller, Price: a.Price}
}

func (a MarketplaceAction) Slug() string {
	return CreateMarketplaceActionSlug(a.TxID, string(a.Action), a.Contract, a.TokenId, a.Seller)
}

func CreateMarketplaceActionSlug(txId, action, contract string, tokenId uint64, seller string) string {
	data := []byte(fmt.Sprintf("mpaction-%s-%s-%s-%d-%s", txId, action, contract, tokenId, seller))
	return fmt.Sprintf("%x", md5.Sum(data))
}
