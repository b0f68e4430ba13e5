package event

import (
	"sync"

	"go.uber.org/zap"
)

// backlogWarning is how many undelivered events a listener may queue
// between warnings.
const backlogWarning = 1024

type Manager interface {
	AddEventListener(eventType Type, callback func(msg interface{}))
	AddListener(callback func(eventType Type, msg interface{}), eventTypes ...Type)
	EmitEvent(eventType Type, msg interface{})
}

type manager struct {
	mu        sync.RWMutex
	listeners []*Listener
}

// Listener queues events without bound so emitting never waits on a slow
// callback.
type Listener struct {
	eventTypes map[Type]bool

	mu    sync.Mutex
	queue []emitted
	ready chan struct{}
}

type emitted struct {
	eventType Type
	msg       interface{}
}

func NewManager() Manager {
	return &manager{listeners: make([]*Listener, 0)}
}

// AddEventListener registers callback for eventType. Each listener receives its
// messages in emission order on its own goroutine.
func (m *manager) AddEventListener(eventType Type, callback func(msg interface{})) {
	m.AddListener(func(_ Type, msg interface{}) { callback(msg) }, eventType)
}

// AddListener registers one callback for several event types, preserving the
// emission order across all of them.
func (m *manager) AddListener(callback func(eventType Type, msg interface{}), eventTypes ...Type) {
	listener := &Listener{
		eventTypes: make(map[Type]bool, len(eventTypes)),
		ready:      make(chan struct{}, 1),
	}
	for _, eventType := range eventTypes {
		zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: AddListener")
		listener.eventTypes[eventType] = true
	}

	m.mu.Lock()
	m.listeners = append(m.listeners, listener)
	m.mu.Unlock()

	go listener.run(callback)
}

// EmitEvent queues msg for every listener of eventType and returns at once.
func (m *manager) EmitEvent(eventType Type, msg interface{}) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if len(m.listeners) == 0 {
		zap.L().Debug("No event listeners available")
	}
	for _, listener := range m.listeners {
		if listener.eventTypes[eventType] {
			zap.L().With(zap.String("type", string(eventType))).Debug("EventManager: Emitting event")
			listener.push(emitted{eventType, msg})
		}
	}
}

func (l *Listener) push(e emitted) {
	l.mu.Lock()
	l.queue = append(l.queue, e)
	backlog := len(l.queue)
	l.mu.Unlock()

	if backlog%backlogWarning == 0 {
		zap.L().With(zap.String("type", string(e.eventType)), zap.Int("backlog", backlog)).Warn("EventManager: Listener falling behind")
	}

	select {
	case l.ready <- struct{}{}:
	default:
	}
}

func (l *Listener) run(callback func(eventType Type, msg interface{})) {
	for range l.ready {
		for {
			l.mu.Lock()
			batch := l.queue
			l.queue = nil
			l.mu.Unlock()

			if len(batch) == 0 {
				break
			}
			for _, e := range batch {
				callback(e.eventType, e.msg)
			}
		}
	}
}
