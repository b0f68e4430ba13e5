package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/marketplace"
)

var (
	ErrUnavailable = errors.New("search index not configured")
)

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind,omitempty"`
}

// statusFor maps a marketplace error onto an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, marketplace.ErrPriceNotMet):
		return http.StatusPaymentRequired
	case errors.Is(err, marketplace.ErrAlreadyListed), errors.Is(err, marketplace.ErrReceiptAlreadyUsed):
		return http.StatusConflict
	case errors.Is(err, marketplace.ErrPaymentNotReceived) && marketplace.KindOf(err) == marketplace.KindValidation:
		return http.StatusPaymentRequired
	case errors.Is(err, marketplace.ErrNotListed), errors.Is(err, marketplace.ErrNoProceeds):
		return http.StatusNotFound
	}

	switch marketplace.KindOf(err) {
	case marketplace.KindValidation:
		return http.StatusBadRequest
	case marketplace.KindAuthorization:
		return http.StatusForbidden
	case marketplace.KindCollaborator:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeMarketplaceError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	resp := errorResponse{Error: err.Error()}
	if kind := marketplace.KindOf(err); kind != marketplace.KindInternal {
		resp.Kind = string(kind)
	} else {
		resp.Error = http.StatusText(status)
	}

	writeJson(w, status, resp)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJson(w, status, errorResponse{Error: err.Error()})
}

func writeJson(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
