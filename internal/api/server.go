package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/marketplace"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/metrics"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/repository"
	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const shutdownTimeout = 10 * time.Second

type Server interface {
	Router() *mux.Router
	ListenAndServe(ctx context.Context, port string) error
}

type server struct {
	marketplace marketplace.Service
	listingRepo repository.ListingRepository
	actionRepo  repository.MarketplaceActionRepository
	metrics     metrics.Metrics
	auth        Authenticator
}

// NewServer exposes svc over HTTP. The repositories and metrics are optional;
// the routes backed by them answer 503 when they are nil.
func NewServer(
	svc marketplace.Service,
	listingRepo repository.ListingRepository,
	actionRepo repository.MarketplaceActionRepository,
	metrics metrics.Metrics,
	auth Authenticator,
) Server {
	return server{svc, listingRepo, actionRepo, metrics, auth}
}

func (s server) Router() *mux.Router {
	r := mux.NewRouter()
	r.Use(requestId)

	r.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = fmt.Fprintf(w, "OK")
	}).Methods(http.MethodGet)

	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler()).Methods(http.MethodGet)
	}

	r.HandleFunc("/listings", s.searchListings).Methods(http.MethodGet)
	r.HandleFunc("/listings/{contract}/{tokenId}", s.getListing).Methods(http.MethodGet)
	r.HandleFunc("/proceeds/{owner}", s.getProceeds).Methods(http.MethodGet)
	r.HandleFunc("/activity/account/{address}", s.getAccountActivity).Methods(http.MethodGet)
	r.HandleFunc("/activity/{contract}/{tokenId}", s.getActivity).Methods(http.MethodGet)

	r.Handle("/listings", s.caller(s.listItem)).Methods(http.MethodPost)
	r.Handle("/listings/{contract}/{tokenId}", s.caller(s.updateListing)).Methods(http.MethodPut)
	r.Handle("/listings/{contract}/{tokenId}", s.caller(s.cancelItem)).Methods(http.MethodDelete)
	r.Handle("/listings/{contract}/{tokenId}/buy", s.caller(s.buyItem)).Methods(http.MethodPost)
	r.Handle("/proceeds/withdraw", s.caller(s.withdrawProceeds)).Methods(http.MethodPost)

	return r
}

// ListenAndServe blocks until ctx is done, then shuts the server down gracefully.
func (s server) ListenAndServe(ctx context.Context, port string) error {
	srv := &http.Server{
		Addr:              ":" + port,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errs := make(chan error, 1)
	go func() {
		zap.L().With(zap.String("port", port)).Info("Api: Listening")
		errs <- srv.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	zap.L().Info("Api: Stopped")
	return nil
}
