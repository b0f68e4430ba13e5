package api

import (
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxPageSize = 100

var (
	ErrInvalidTokenId = errors.New("invalid token id")
	ErrInvalidBody    = errors.New("invalid request body")
)

type listingRequest struct {
	Contract string `json:"contract"`
	TokenId  uint64 `json:"tokenId"`
	Price    string `json:"price"`
}

type priceRequest struct {
	Price string `json:"price"`
}

type buyRequest struct {
	Receipt string `json:"receipt"`
}

type listingResponse struct {
	Contract string `json:"contract"`
	TokenId  uint64 `json:"tokenId"`
	Seller   string `json:"seller"`
	Price    string `json:"price"`
}

type listingsResponse struct {
	Listings []listingResponse `json:"listings"`
	Total    int64             `json:"total"`
}

type proceedsResponse struct {
	Owner    string `json:"owner"`
	Proceeds string `json:"proceeds"`
}

type withdrawResponse struct {
	Owner  string `json:"owner"`
	Amount string `json:"amount"`
}

type actionResponse struct {
	TxID     string `json:"txId"`
	Action   string `json:"action"`
	Contract string `json:"contract"`
	TokenId  uint64 `json:"tokenId"`
	Seller   string `json:"seller,omitempty"`
	Buyer    string `json:"buyer,omitempty"`
	Price    string `json:"price,omitempty"`
	Paid     string `json:"paid,omitempty"`
	Time     string `json:"time"`
}

type activityResponse struct {
	Actions []actionResponse `json:"actions"`
	Total   int64            `json:"total"`
}

func (s server) listItem(w http.ResponseWriter, r *http.Request) {
	var req listingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidBody)
		return
	}

	contract, err := entity.NormalizeAddress(req.Contract)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	price, err := entity.ParseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.marketplace.ListItem(r.Context(), contract, req.TokenId, price, callerFrom(r.Context())); err != nil {
		writeMarketplaceError(w, err)
		return
	}

	writeJson(w, http.StatusCreated, listingResponse{
		Contract: contract,
		TokenId:  req.TokenId,
		Seller:   callerFrom(r.Context()),
		Price:    price.String(),
	})
}

func (s server) getListing(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := assetFromPath(w, r)
	if !ok {
		return
	}

	listing, err := s.marketplace.GetListing(r.Context(), contract, tokenId)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("requestId", requestIdFrom(r.Context()))).Error("Api: Failed to get listing")
		writeMarketplaceError(w, err)
		return
	}
	if listing == nil {
		writeError(w, http.StatusNotFound, errors.New("not listed"))
		return
	}

	writeJson(w, http.StatusOK, toListingResponse(*listing))
}

func (s server) updateListing(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := assetFromPath(w, r)
	if !ok {
		return
	}

	var req priceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidBody)
		return
	}
	price, err := entity.ParseAmount(req.Price)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := s.marketplace.UpdateListing(r.Context(), contract, tokenId, price, callerFrom(r.Context())); err != nil {
		writeMarketplaceError(w, err)
		return
	}

	writeJson(w, http.StatusOK, listingResponse{
		Contract: contract,
		TokenId:  tokenId,
		Seller:   callerFrom(r.Context()),
		Price:    price.String(),
	})
}

func (s server) cancelItem(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := assetFromPath(w, r)
	if !ok {
		return
	}

	if err := s.marketplace.CancelItem(r.Context(), contract, tokenId, callerFrom(r.Context())); err != nil {
		writeMarketplaceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s server) buyItem(w http.ResponseWriter, r *http.Request) {
	contract, tokenId, ok := assetFromPath(w, r)
	if !ok {
		return
	}

	var req buyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidBody)
		return
	}
	if err := s.marketplace.BuyItem(r.Context(), contract, tokenId, req.Receipt, callerFrom(r.Context())); err != nil {
		writeMarketplaceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (s server) getProceeds(w http.ResponseWriter, r *http.Request) {
	owner, err := entity.NormalizeAddress(mux.Vars(r)["owner"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	proceeds, err := s.marketplace.GetProceeds(r.Context(), owner)
	if err != nil {
		writeMarketplaceError(w, err)
		return
	}

	writeJson(w, http.StatusOK, proceedsResponse{Owner: owner, Proceeds: proceeds.String()})
}

func (s server) withdrawProceeds(w http.ResponseWriter, r *http.Request) {
	caller := callerFrom(r.Context())

	amount, err := s.marketplace.WithdrawProceeds(r.Context(), caller)
	if err != nil {
		writeMarketplaceError(w, err)
		return
	}

	writeJson(w, http.StatusOK, withdrawResponse{Owner: caller, Amount: amount.String()})
}

// searchListings serves the projection when one is configured and falls back
// to the authoritative store otherwise.
func (s server) searchListings(w http.ResponseWriter, r *http.Request) {
	contract, ok := addressFromQuery(w, r, "contract")
	if !ok {
		return
	}
	seller, ok := addressFromQuery(w, r, "seller")
	if !ok {
		return
	}
	size, page := pagination(r)

	if s.listingRepo != nil {
		var (
			listings []entity.Listing
			total    int64
			err      error
		)
		if seller != "" {
			listings, total, err = s.listingRepo.GetListingsBySeller(r.Context(), seller, size, page)
		} else {
			listings, total, err = s.listingRepo.GetActiveListings(r.Context(), contract, size, page)
		}
		if err != nil {
			zap.L().With(zap.Error(err)).Error("Api: Failed to search listings")
			writeError(w, http.StatusBadGateway, err)
			return
		}
		writeJson(w, http.StatusOK, toListingsResponse(listings, total))
		return
	}

	all, err := s.marketplace.Listings(r.Context())
	if err != nil {
		writeMarketplaceError(w, err)
		return
	}

	matched := make([]entity.Listing, 0, len(all))
	for _, l := range all {
		if contract != "" && !strings.EqualFold(l.Contract, contract) {
			continue
		}
		if seller != "" && !strings.EqualFold(l.Seller, seller) {
			continue
		}
		matched = append(matched, l)
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].Contract != matched[j].Contract {
			return matched[i].Contract < matched[j].Contract
		}
		return matched[i].TokenId < matched[j].TokenId
	})

	from, to := window(len(matched), size, page)
	writeJson(w, http.StatusOK, toListingsResponse(matched[from:to], int64(len(matched))))
}

func (s server) getActivity(w http.ResponseWriter, r *http.Request) {
	if s.actionRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrUnavailable)
		return
	}

	contract, tokenId, ok := assetFromPath(w, r)
	if !ok {
		return
	}
	size, page := pagination(r)

	actions, total, err := s.actionRepo.GetActions(r.Context(), contract, tokenId, size, page)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("Api: Failed to get activity")
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJson(w, http.StatusOK, toActivityResponse(actions, total))
}

func (s server) getAccountActivity(w http.ResponseWriter, r *http.Request) {
	if s.actionRepo == nil {
		writeError(w, http.StatusServiceUnavailable, ErrUnavailable)
		return
	}

	account, err := entity.NormalizeAddress(mux.Vars(r)["address"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}
	size, page := pagination(r)

	actions, total, err := s.actionRepo.GetActionsByAccount(r.Context(), account, size, page)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("account", account)).Error("Api: Failed to get account activity")
		writeError(w, http.StatusBadGateway, err)
		return
	}

	writeJson(w, http.StatusOK, toActivityResponse(actions, total))
}

func assetFromPath(w http.ResponseWriter, r *http.Request) (string, uint64, bool) {
	vars := mux.Vars(r)

	contract, err := entity.NormalizeAddress(vars["contract"])
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", 0, false
	}

	tokenId, err := strconv.ParseUint(vars["tokenId"], 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrInvalidTokenId)
		return "", 0, false
	}

	return contract, tokenId, true
}

func addressFromQuery(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	value := r.URL.Query().Get(name)
	if value == "" {
		return "", true
	}

	addr, err := entity.NormalizeAddress(value)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return "", false
	}
	return addr, true
}

func pagination(r *http.Request) (int, int) {
	size, err := strconv.Atoi(r.URL.Query().Get("size"))
	if err != nil || size <= 0 || size > maxPageSize {
		size = maxPageSize
	}
	page, err := strconv.Atoi(r.URL.Query().Get("page"))
	if err != nil || page < 1 {
		page = 1
	}
	return size, page
}

// window returns the bounds of a page within n items. Pages past the end are empty.
func window(n, size, page int) (int, int) {
	if page-1 >= (n+size-1)/size {
		return n, n
	}

	from := (page - 1) * size
	to := from + size
	if to > n {
		to = n
	}
	return from, to
}

func toListingResponse(l entity.Listing) listingResponse {
	return listingResponse{Contract: l.Contract, TokenId: l.TokenId, Seller: l.Seller, Price: amountString(l.Price)}
}

func toListingsResponse(listings []entity.Listing, total int64) listingsResponse {
	resp := listingsResponse{Listings: make([]listingResponse, 0, len(listings)), Total: total}
	for _, l := range listings {
		resp.Listings = append(resp.Listings, toListingResponse(l))
	}
	return resp
}

func toActivityResponse(actions []entity.MarketplaceAction, total int64) activityResponse {
	resp := activityResponse{Actions: make([]actionResponse, 0, len(actions)), Total: total}
	for _, a := range actions {
		resp.Actions = append(resp.Actions, actionResponse{
			TxID:     a.TxID,
			Action:   string(a.Action),
			Contract: a.Contract,
			TokenId:  a.TokenId,
			Seller:   a.Seller,
			Buyer:    a.Buyer,
			Price:    amountString(a.Price),
			Paid:     amountString(a.Paid),
			Time:     a.Time.UTC().Format(time.RFC3339),
		})
	}
	return resp
}

func amountString(v *big.Int) string {
	if v == nil {
		return ""
	}
	return v.String()
}
