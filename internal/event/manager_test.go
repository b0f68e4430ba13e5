package event

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestManagerDeliversInOrderToMatchingListeners(t *testing.T) {
	m := NewManager()

	var mu sync.Mutex
	listed := make([]interface{}, 0)
	bought := 0

	m.AddEventListener(ItemListedEvent, func(msg interface{}) {
		mu.Lock()
		defer mu.Unlock()
		listed = append(listed, msg)
	})
	m.AddEventListener(ItemBoughtEvent, func(msg interface{}) {
		mu.Lock()
		defer mu.Unlock()
		bought++
	})

	for i := 0; i < 10; i++ {
		m.EmitEvent(ItemListedEvent, i)
	}
	m.EmitEvent(ItemCanceledEvent, "nobody listens")

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(listed) == 10
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, msg := range listed {
		require.Equal(t, i, msg)
	}
	require.Equal(t, 0, bought)
}

func TestEmitWithoutListeners(t *testing.T) {
	m := NewManager()
	m.EmitEvent(ProceedsWithdrawnEvent, nil)
}

func TestListenerSeesEveryTypeInEmissionOrder(t *testing.T) {
	m := NewManager()

	var mu sync.Mutex
	seen := make([]Type, 0)
	m.AddListener(func(eventType Type, msg interface{}) {
		mu.Lock()
		defer mu.Unlock()
		seen = append(seen, eventType)
	}, MarketplaceEvents()...)

	sequence := []Type{ItemListedEvent, ListingUpdatedEvent, ItemBoughtEvent, ItemListedEvent, ItemCanceledEvent, ProceedsWithdrawnEvent}
	for _, eventType := range sequence {
		m.EmitEvent(eventType, nil)
	}

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(seen) == len(sequence)
	}, time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, sequence, seen)
}

func TestSlowListenerDoesNotHoldUpEmitters(t *testing.T) {
	m := NewManager()

	release := make(chan struct{})
	var mu sync.Mutex
	slow := make([]interface{}, 0)
	m.AddEventListener(ItemListedEvent, func(msg interface{}) {
		<-release
		mu.Lock()
		defer mu.Unlock()
		slow = append(slow, msg)
	})

	var fast sync.WaitGroup
	fast.Add(1000)
	m.AddEventListener(ItemListedEvent, func(msg interface{}) { fast.Done() })

	emitted := make(chan struct{})
	go func() {
		defer close(emitted)
		for i := 0; i < 1000; i++ {
			m.EmitEvent(ItemListedEvent, i)
		}
	}()

	select {
	case <-emitted:
	case <-time.After(2 * time.Second):
		t.Fatal("emitting blocked on a listener that is not consuming")
	}
	fast.Wait()

	close(release)
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(slow) == 1000
	}, 2*time.Second, 10*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	for i, msg := range slow {
		require.Equal(t, i, msg)
	}
}
