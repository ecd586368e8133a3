package broker

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Redis fans out through Redis pub/sub so every API node reaches the
// sessions connected to it.
type Redis struct {
	client redis.UniversalClient
}

func NewRedis(client redis.UniversalClient) *Redis {
	return &Redis{client: client}
}

func (b *Redis) Join(ctx context.Context, recipientID uuid.UUID) (Subscription, error) {
	ps := b.client.Subscribe(ctx, Channel(recipientID))
	// Wait for the subscribe confirmation so publishes after Join are seen.
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(recipientID), err)
	}

	sub := &redisSubscription{
		ps:   ps,
		out:  make(chan []byte, 256),
		done: make(chan struct{}),
	}
	go sub.forward()
	return sub, nil
}

func (b *Redis) Publish(ctx context.Context, recipientID uuid.UUID, payload []byte) error {
	if err := b.client.Publish(ctx, Channel(recipientID), payload).Err(); err != nil {
		return fmt.Errorf("publish %s: %w", Channel(recipientID), err)
	}
	return nil
}

// Close is a no-op; the redis client is owned by the caller.
func (b *Redis) Close() error {
	return nil
}

type redisSubscription struct {
	ps   *redis.PubSub
	out  chan []byte
	done chan struct{}
	once sync.Once
}

func (s *redisSubscription) forward() {
	defer close(s.out)
	ch := s.ps.Channel()
	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return
			}
			select {
			case s.out <- []byte(msg.Payload):
			case <-s.done:
				return
			}
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) C() <-chan []byte {
	return s.out
}

func (s *redisSubscription) Close() error {
	var err error
	s.once.Do(func() {
		close(s.done)
		err = s.ps.Close()
	})
	return err
}
