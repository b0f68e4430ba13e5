package messenger

import (
	"encoding/json"
	"fmt"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/entity"
	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/event"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

// EventPublisher forwards committed marketplace events to the
// marketplace.events exchange, routed by "<index>.<event type>".
type EventPublisher interface {
	Listen(events event.Manager)
	Publish(eventType event.Type, action entity.MarketplaceAction) error
}

type eventPublisher struct {
	messenger MessageService
	index     string
}

func NewEventPublisher(messenger MessageService, index string) EventPublisher {
	return eventPublisher{messenger, index}
}

func (p eventPublisher) Listen(events event.Manager) {
	events.AddListener(func(eventType event.Type, msg interface{}) {
		action, ok := msg.(entity.MarketplaceAction)
		if !ok {
			return
		}
		if err := p.Publish(eventType, action); err != nil {
			zap.L().With(zap.Error(err), zap.String("txId", action.TxID)).Error("[Queue] Failed to publish marketplace event")
		}
	}, event.MarketplaceEvents()...)
}

func (p eventPublisher) Publish(eventType event.Type, action entity.MarketplaceAction) error {
	body, err := json.Marshal(action)
	if err != nil {
		return err
	}

	headers := amqp.Table{"type": string(eventType), "txId": action.TxID}

	return p.messenger.SendMessage(MarketplaceEvents, p.routingKey(eventType), headers, body, true)
}

func (p eventPublisher) routingKey(eventType event.Type) string {
	return fmt.Sprintf("%s.%s", p.index, eventType)
}
