package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config/di"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const flushInterval = 2 * time.Second

func main() {
	config.Init()
	cfg := config.Get()

	container, err := di.NewContainer(cfg)
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer func() {
		if err := container.Delete(); err != nil {
			zap.L().With(zap.Error(err)).Error("Failed to close services")
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	svc := container.GetMarketplace()
	events := container.GetEvents()

	m := container.GetMetrics()
	m.Listen(events)
	if listings, err := svc.Listings(ctx); err == nil {
		m.SetActiveListings(len(listings))
	}

	group, ctx := errgroup.WithContext(ctx)

	if elastic, err := container.GetElastic(); err == nil {
		if err := elastic.InstallMappings(ctx, cfg.ElasticSearch.MappingDir, false); err != nil {
			zap.L().With(zap.Error(err)).Fatal("Failed to install mappings")
		}

		idx := container.GetIndexer()
		idx.Listen(events)
		group.Go(func() error { return idx.Run(ctx, flushInterval) })
	} else {
		zap.L().With(zap.Error(err)).Warn("Marketplace: Search projection disabled")
	}

	if cfg.Rabbit.Enabled {
		container.GetPublisher().Listen(events)
	}

	group.Go(func() error { return container.GetApi().ListenAndServe(ctx, cfg.Api.Port) })

	zap.L().With(
		zap.String("address", svc.Address()),
		zap.String("storage", cfg.Marketplace.Storage),
		zap.String("registry", cfg.Marketplace.Registry),
		zap.String("payments", cfg.Marketplace.Payments),
	).Info("Marketplace Started")

	if err := group.Wait(); err != nil {
		zap.L().With(zap.Error(err)).Error("Marketplace stopped with error")
	}
}
