package messenger

import (
	"context"
	"encoding/json"
	"time"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// EventHandler receives one marketplace event read back from the queue.
type EventHandler func(eventType event.Type, action entity.MarketplaceAction)

// Subscribe consumes the marketplace events published under index and hands
// each decoded action to handler. Messages that do not decode are logged and
// skipped. It blocks until the channel closes.
func Subscribe(messenger MessageService, index string, handler EventHandler) error {
	return messenger.ConsumeMessages(MarketplaceEvents, index+".#", func(d amqp.Delivery) {
		eventType, action, err := DecodeEvent(d)
		if err != nil {
			zap.L().With(zap.Error(err), zap.String("routingKey", d.RoutingKey)).Warn("[Queue] Skipping undecodable event")
			return
		}
		handler(eventType, action)
	})
}

// DecodeEvent reverses Publish.
func DecodeEvent(d amqp.Delivery) (event.Type, entity.MarketplaceAction, error) {
	var action entity.MarketplaceAction
	if err := json.Unmarshal(d.Body, &action); err != nil {
		return "", entity.MarketplaceAction{}, err
	}

	eventType, _ := d.Headers["type"].(string)
	return event.Type(eventType), action, nil
}

// WaitForEmptyQueue polls the size of item's queue until it is drained or ctx
// is done.
func WaitForEmptyQueue(ctx context.Context, messenger MessageService, item Item, interval time.Duration) error {
	for {
		size, err := messenger.GetQueueSize(item)
		if err != nil {
			return err
		}
		if size == nil || *size == 0 {
			return nil
		}
		zap.L().With(zap.String("item", string(item)), zap.Int("messages", *size)).Info("[Queue] Waiting for queue to drain")

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
	}
}
