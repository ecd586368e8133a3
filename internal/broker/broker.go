// Package broker fans notification payloads out to the sessions a recipient
// has open. A recipient's sessions form one group; publishing to the
// recipient reaches every joined session.
package broker

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

var (
	ErrClosed = errors.New("broker closed")
	ErrBusy   = errors.New("broker buffer full")
)

// Subscription is one session's membership in a recipient group.
type Subscription interface {
	// C yields payloads published to the group. It is closed after Close.
	C() <-chan []byte
	Close() error
}

type Broker interface {
	Join(ctx context.Context, recipientID uuid.UUID) (Subscription, error)
	Publish(ctx context.Context, recipientID uuid.UUID, payload []byte) error
	Close() error
}

const channelPrefix = "notifications:"

// Channel is the pub/sub channel name for a recipient group.
func Channel(recipientID uuid.UUID) string {
	return channelPrefix + recipientID.String()
}
