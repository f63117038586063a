package broadcast

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/kwento-games/kwento/internal/logging"
	"golang.org/x/sync/errgroup"
)

const subscriberBuffer = 32

// Broadcaster is a publish/subscribe fan-out keyed by room. Delivery order
// per room follows publish order as long as publishers for one room are
// serialized, which the coordinator guarantees.
type Broadcaster interface {
	Publish(ctx context.Context, roomKey string, payload []byte)
	Subscribe(roomKey string) *Subscription
	Unsubscribe(roomKey string, id uuid.UUID)
}

// Subscription is one listener on a room group. C is closed on Unsubscribe.
type Subscription struct {
	ID uuid.UUID
	C  <-chan []byte

	ch chan []byte
}

func NewHub() *Hub {
	return &Hub{groups: map[string]map[uuid.UUID]*Subscription{}}
}

var _ Broadcaster = (*Hub)(nil)

// Hub is the in-process broadcast group service.
type Hub struct {
	mtx    sync.RWMutex
	groups map[string]map[uuid.UUID]*Subscription
}

func (h *Hub) Subscribe(roomKey string) *Subscription {
	sub := &Subscription{ID: uuid.New(), ch: make(chan []byte, subscriberBuffer)}
	sub.C = sub.ch

	h.mtx.Lock()
	defer h.mtx.Unlock()
	group, ok := h.groups[roomKey]
	if !ok {
		group = map[uuid.UUID]*Subscription{}
		h.groups[roomKey] = group
	}
	group[sub.ID] = sub

	return sub
}

func (h *Hub) Unsubscribe(roomKey string, id uuid.UUID) {
	h.mtx.Lock()
	defer h.mtx.Unlock()
	group, ok := h.groups[roomKey]
	if !ok {
		return
	}

	if sub, ok := group[id]; ok {
		delete(group, id)
		close(sub.ch)
	}

	if len(group) == 0 {
		delete(h.groups, roomKey)
	}
}

// Publish delivers payload to every subscription of the room group. A
// subscriber whose buffer is full misses the message rather than stalling the
// room.
func (h *Hub) Publish(ctx context.Context, roomKey string, payload []byte) {
	logger := logging.FromContext(ctx).Named("broadcast.Publish")

	// The read lock is held across the fan-out so Unsubscribe cannot close a
	// channel with a send in flight.
	h.mtx.RLock()
	defer h.mtx.RUnlock()

	g := errgroup.Group{}
	for _, sub := range h.groups[roomKey] {
		sub := sub
		g.Go(func() error {
			select {
			case sub.ch <- payload:
			default:
				logger.Warnf("room %s: subscriber %s lagging, message dropped", roomKey, sub.ID)
			}
			return nil
		})
	}
	_ = g.Wait()
}
