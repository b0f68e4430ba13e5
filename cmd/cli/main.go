package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config/di"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/messenger"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"
)

var (
	ErrMissingArguments = errors.New("missing arguments")
)

var container *di.Container

func main() {
	config.Init()

	var err error
	container, err = di.NewContainer(config.Get())
	if err != nil {
		zap.L().With(zap.Error(err)).Fatal("Failed to build container")
	}
	defer func() { _ = container.Delete() }()

	app := &cli.App{
		Name:  "marketplace",
		Usage: "inspect and maintain the nft marketplace",
		Commands: []*cli.Command{
			{
				Name:      "listing",
				Usage:     "show the listing of one token",
				ArgsUsage: "<contract> <tokenId>",
				Action:    showListing,
			},
			{
				Name:   "listings",
				Usage:  "list every open listing from the store",
				Action: showListings,
			},
			{
				Name:      "proceeds",
				Usage:     "show the unwithdrawn proceeds of an owner",
				ArgsUsage: "<owner>",
				Action:    showProceeds,
			},
			{
				Name:      "activity",
				Usage:     "show the marketplace history of one token, or of an account with --account",
				ArgsUsage: "<contract> <tokenId>",
				Action:    showActivity,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "account", Usage: "show everything this address bought or sold"},
					&cli.IntFlag{Name: "size", Value: 20, Usage: "page size"},
					&cli.IntFlag{Name: "page", Value: 1, Usage: "page number"},
				},
			},
			{
				Name:   "queue",
				Usage:  "show the marketplace event queue",
				Action: showQueue,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "wait", Value: false, Usage: "block until the queue is drained"},
					&cli.DurationFlag{Name: "interval", Value: 5 * time.Second, Usage: "poll interval with --wait"},
				},
			},
			{
				Name:   "tail",
				Usage:  "consume and print marketplace events as they are published",
				Action: tailEvents,
			},
			{
				Name:   "reindex",
				Usage:  "rebuild the listing index from the store",
				Action: reindex,
			},
			{
				Name:   "mappings",
				Usage:  "install the elastic search mappings",
				Action: installMappings,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "reindex", Value: false, Usage: "drop existing indices first"},
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		zap.L().With(zap.Error(err)).Fatal("Command failed")
	}
}

func assetArgs(c *cli.Context) (string, uint64, error) {
	if c.NArg() < 2 {
		return "", 0, ErrMissingArguments
	}

	contract, err := entity.NormalizeAddress(c.Args().Get(0))
	if err != nil {
		return "", 0, err
	}
	tokenId, err := strconv.ParseUint(c.Args().Get(1), 10, 64)
	if err != nil {
		return "", 0, err
	}

	return contract, tokenId, nil
}

func showListing(c *cli.Context) error {
	contract, tokenId, err := assetArgs(c)
	if err != nil {
		return err
	}

	listing, err := container.GetMarketplace().GetListing(c.Context, contract, tokenId)
	if err != nil {
		return err
	}
	if listing == nil {
		fmt.Printf("%s/%d is not listed\n", contract, tokenId)
		return nil
	}

	fmt.Printf("%s/%d seller=%s price=%s ZIL\n", listing.Contract, listing.TokenId, listing.Seller, entity.FormatZil(listing.Price))
	return nil
}

func showListings(c *cli.Context) error {
	listings, err := container.GetMarketplace().Listings(c.Context)
	if err != nil {
		return err
	}

	for _, l := range listings {
		fmt.Printf("%s/%d seller=%s price=%s ZIL\n", l.Contract, l.TokenId, l.Seller, entity.FormatZil(l.Price))
	}
	zap.S().Infof("%d listings", len(listings))

	return nil
}

func showProceeds(c *cli.Context) error {
	if c.NArg() < 1 {
		return ErrMissingArguments
	}
	owner, err := entity.NormalizeAddress(c.Args().First())
	if err != nil {
		return err
	}

	proceeds, err := container.GetMarketplace().GetProceeds(c.Context, owner)
	if err != nil {
		return err
	}

	fmt.Printf("%s (%s) proceeds=%s ZIL (%s Qa)\n", owner, entity.ToBech32(owner), entity.FormatZil(proceeds), proceeds)
	return nil
}

func showActivity(c *cli.Context) error {
	var (
		actions []entity.MarketplaceAction
		total   int64
		err     error
	)

	if account := c.String("account"); account != "" {
		account, err = entity.NormalizeAddress(account)
		if err != nil {
			return err
		}
		actions, total, err = container.GetActionRepo().GetActionsByAccount(c.Context, account, c.Int("size"), c.Int("page"))
	} else {
		contract, tokenId, argErr := assetArgs(c)
		if argErr != nil {
			return argErr
		}
		actions, total, err = container.GetActionRepo().GetActions(c.Context, contract, tokenId, c.Int("size"), c.Int("page"))
	}
	if err != nil {
		return err
	}

	for _, a := range actions {
		fmt.Printf("%s %-10s %s/%d seller=%s buyer=%s price=%s paid=%s tx=%s\n",
			a.Time.Format("2006-01-02 15:04:05"), a.Action, a.Contract, a.TokenId, a.Seller, a.Buyer,
			entity.FormatZil(a.Price), entity.FormatZil(a.Paid), a.TxID)
	}
	zap.S().Infof("%d of %d actions", len(actions), total)

	return nil
}

func showQueue(c *cli.Context) error {
	ms := container.GetMessenger()

	if c.Bool("wait") {
		if err := messenger.WaitForEmptyQueue(c.Context, ms, messenger.MarketplaceEvents, c.Duration("interval")); err != nil {
			return err
		}
	}

	queue, err := ms.GetQueue(messenger.MarketplaceEvents)
	if err != nil {
		return err
	}

	fmt.Printf("%s messages=%d consumers=%d\n", queue.Name, queue.Messages, queue.Consumers)
	return nil
}

func tailEvents(c *cli.Context) error {
	return messenger.Subscribe(container.GetMessenger(), config.Get().Index, func(eventType event.Type, a entity.MarketplaceAction) {
		fmt.Printf("%s %-18s %s/%d seller=%s buyer=%s price=%s tx=%s\n",
			a.Time.Format("2006-01-02 15:04:05"), eventType, a.Contract, a.TokenId, a.Seller, a.Buyer,
			entity.FormatZil(a.Price), a.TxID)
	})
}

func reindex(c *cli.Context) error {
	listings, err := container.GetStore().AllListings(c.Context)
	if err != nil {
		return err
	}

	persisted, err := container.GetIndexer().Reindex(c.Context, listings)
	if err != nil {
		return err
	}

	zap.L().With(zap.Int("listings", persisted)).Info("Reindex complete")
	return nil
}

func installMappings(c *cli.Context) error {
	elastic, err := container.GetElastic()
	if err != nil {
		return err
	}

	return elastic.InstallMappings(c.Context, config.Get().ElasticSearch.MappingDir, c.Bool("reindex"))
}
