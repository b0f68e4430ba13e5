package messenger

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ZilDuck/zilliqa-nft-marketplace/internal/config"
	"github.com/streadway/amqp"
	"go.uber.org/zap"
)

var (
	ErrExchangeNotFound = errors.New("exchange not found")
	ErrPublishNacked    = errors.New("publish not confirmed")
)

type MessageService interface {
	GetQueue(item Item) (*amqp.Queue, error)
	SendMessage(item Item, routingKey string, headers amqp.Table, body []byte, reliable bool) error
	ConsumeMessages(item Item, routingKey string, callback func(msg amqp.Delivery)) error
	GetQueueSize(item Item) (*int, error)
	Close() error
}

type Messenger struct {
	amqpUri string

	mu   sync.Mutex
	conn *amqp.Connection
}

type Item string

var (
	MarketplaceEvents Item = "marketplace.events"
)

func (i Item) queue() string {
	return fmt.Sprintf("%s.%s", config.Get().Index, i)
}

func NewMessenger(amqpUri string) MessageService {
	return &Messenger{amqpUri: amqpUri}
}

func (m *Messenger) GetQueue(item Item) (*amqp.Queue, error) {
	ch, err := m.openChannel()
	if err != nil {
		return nil, err
	}
	defer ch.Close()

	queue, err := ch.QueueDeclare(item.queue(), true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err), zap.String("queue", item.queue())).Error("[Queue] Failed to create queue")
		return nil, err
	}

	return &queue, nil
}

func (m *Messenger) SendMessage(item Item, routingKey string, headers amqp.Table, body []byte, reliable bool) error {
	ch, err := m.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	ex, err := declareExchange(ch, item)
	if err != nil {
		return err
	}

	var confirms chan amqp.Confirmation
	if reliable {
		if err := ch.Confirm(false); err != nil {
			zap.L().With(zap.Error(err)).Error("[Queue] Channel could not be put into confirm mode")
			return err
		}
		confirms = ch.NotifyPublish(make(chan amqp.Confirmation, 1))
	}

	if headers == nil {
		headers = amqp.Table{}
	}
	publishing := amqp.Publishing{
		Headers:      headers,
		ContentType:  "application/json",
		Body:         body,
		DeliveryMode: amqp.Persistent,
	}

	if err = ch.Publish(ex.Name, routingKey, false, false, publishing); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Publish")
		return err
	}

	if reliable && !confirmOne(confirms) {
		return ErrPublishNacked
	}

	zap.L().With(zap.String("exchange", ex.Name), zap.String("routingKey", routingKey)).Debug("[Queue] Published message")

	return nil
}

// ConsumeMessages binds the item's queue to routingKey and hands every
// delivery to callback until the channel closes.
func (m *Messenger) ConsumeMessages(item Item, routingKey string, callback func(msg amqp.Delivery)) error {
	ch, err := m.openChannel()
	if err != nil {
		return err
	}
	defer ch.Close()

	ex, err := declareExchange(ch, item)
	if err != nil {
		return err
	}

	q, err := ch.QueueDeclare(item.queue(), true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to declare a queue")
		return err
	}

	if err = ch.QueueBind(q.Name, routingKey, ex.Name, false, nil); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to bind a queue")
		return err
	}

	msgs, err := ch.Consume(q.Name, "", true, false, false, false, nil)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to consume the queue")
		return err
	}

	zap.S().With(zap.String("exchange", ex.Name)).Debugf("[Queue] Waiting for messages")
	for d := range msgs {
		zap.L().Debug("[Queue] Received message")
		callback(d)
	}

	return nil
}

func (m *Messenger) GetQueueSize(item Item) (*int, error) {
	queue, err := m.GetQueue(item)
	if err != nil {
		return nil, err
	}

	return &queue.Messages, nil
}

func (m *Messenger) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn == nil || m.conn.IsClosed() {
		return nil
	}
	return m.conn.Close()
}

func (m *Messenger) openConnection() (*amqp.Connection, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.conn != nil && !m.conn.IsClosed() {
		return m.conn, nil
	}

	conn, err := amqp.Dial(m.amqpUri)
	if err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Failed to connect to RabbitMQ")
		return nil, err
	}

	m.conn = conn

	return m.conn, nil
}

func (m *Messenger) openChannel() (*amqp.Channel, error) {
	conn, err := m.openConnection()
	if err != nil {
		return nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		zap.S().With(zap.Error(err)).Error("[Queue] Failed to open channel")
	}

	return ch, err
}

func declareExchange(ch *amqp.Channel, item Item) (exchange, error) {
	ex, ok := exchanges[item]
	if !ok {
		zap.L().With(zap.String("item", string(item))).Error("[Queue] Exchange not found")
		return exchange{}, ErrExchangeNotFound
	}

	if err := ch.ExchangeDeclare(ex.Name, ex.Type, ex.Durable, ex.AutoDeleted, ex.Internal, ex.NoWait, ex.Arguments); err != nil {
		zap.L().With(zap.Error(err)).Error("[Queue] Exchange Declare")
		return exchange{}, err
	}

	return ex, nil
}

func confirmOne(confirms <-chan amqp.Confirmation) bool {
	zap.L().Debug("[Queue] Waiting for publish confirmation")

	if confirmed := <-confirms; confirmed.Ack {
		zap.L().Debug("[Queue] Publish confirmed")
		return true
	}

	zap.L().Warn("[Queue] Publish failed")
	return false
}
