package broker

import (
	"context"
	"sync"

	"github.com/google/uuid"
)

// Local is an in-process broker for single-node deployments and tests.
type Local struct {
	clients    map[string]*client
	register   chan *client
	unregister chan *client
	broadcast  chan *message
	done       chan struct{}
	closeOnce  sync.Once
	mu         sync.RWMutex
}

type client struct {
	id     string
	userID uuid.UUID
	send   chan []byte
}

type message struct {
	recipientID uuid.UUID
	payload     []byte
}

func NewLocal() *Local {
	return &Local{
		clients:    make(map[string]*client),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan *message, 256),
		done:       make(chan struct{}),
	}
}

func (b *Local) Run() {
	for {
		select {
		case c := <-b.register:
			b.mu.Lock()
			b.clients[c.id] = c
			b.mu.Unlock()

		case c := <-b.unregister:
			b.mu.Lock()
			if _, ok := b.clients[c.id]; ok {
				delete(b.clients, c.id)
				close(c.send)
			}
			b.mu.Unlock()

		case msg := <-b.broadcast:
			b.mu.RLock()
			for _, c := range b.clients {
				if c.userID != msg.recipientID {
					continue
				}
				select {
				case c.send <- msg.payload:
				default:
					// Session buffer full; the catch-up path covers it.
				}
			}
			b.mu.RUnlock()

		case <-b.done:
			b.mu.Lock()
			for id, c := range b.clients {
				delete(b.clients, id)
				close(c.send)
			}
			b.mu.Unlock()
			return
		}
	}
}

func (b *Local) Join(ctx context.Context, recipientID uuid.UUID) (Subscription, error) {
	c := &client{
		id:     uuid.NewString(),
		userID: recipientID,
		send:   make(chan []byte, 256),
	}
	select {
	case b.register <- c:
		return &localSubscription{broker: b, client: c}, nil
	case <-b.done:
		return nil, ErrClosed
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// Publish never blocks: a full broadcast buffer is reported as ErrBusy.
func (b *Local) Publish(_ context.Context, recipientID uuid.UUID, payload []byte) error {
	select {
	case <-b.done:
		return ErrClosed
	default:
	}
	select {
	case b.broadcast <- &message{recipientID: recipientID, payload: payload}:
		return nil
	default:
		return ErrBusy
	}
}

func (b *Local) Close() error {
	b.closeOnce.Do(func() { close(b.done) })
	return nil
}

// Sessions returns the number of joined sessions for a recipient.
func (b *Local) Sessions(recipientID uuid.UUID) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	n := 0
	for _, c := range b.clients {
		if c.userID == recipientID {
			n++
		}
	}
	return n
}

type localSubscription struct {
	broker *Local
	client *client
	once   sync.Once
}

func (s *localSubscription) C() <-chan []byte {
	return s.client.send
}

func (s *localSubscription) Close() error {
	s.once.Do(func() {
		select {
		case s.broker.unregister <- s.client:
		case <-s.broker.done:
		}
	})
	return nil
}
