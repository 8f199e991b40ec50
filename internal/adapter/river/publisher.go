package river

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/riverqueue/river"

	"github.com/openmorph/metamorph/internal/domain"
)

// Compile-time check: Publisher implements domain.EventPublisher.
var _ domain.EventPublisher = (*Publisher)(nil)

// StageEventArgs carries a collection event to async consumers. River
// serializes this as JSON into its job queue table. It includes a
// snapshot of the token and its new descriptor reference, so the
// worker never needs to query the database.
type StageEventArgs struct {
	Event      string `json:"event"`
	TokenID    int64  `json:"token_id"`
	Owner      string `json:"owner"`
	Stage      string `json:"stage"`
	Descriptor string `json:"descriptor"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (StageEventArgs) Kind() string { return "token.event" }

// Client is the River client type parameterized for SQLite (*sql.Tx).
type Client = river.Client[*sql.Tx]

// Publisher implements domain.EventPublisher by enqueuing River jobs.
// The client is bound after Setup, because the client itself needs the
// service (and therefore the publisher) to register its workers.
type Publisher struct {
	mu     sync.RWMutex
	client *Client
}

// NewPublisher creates an unbound publisher. Bind must be called with
// the River client before the first Publish.
func NewPublisher() *Publisher {
	return &Publisher{}
}

// Bind attaches the River client.
func (p *Publisher) Bind(client *Client) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.client = client
}

// Publish enqueues a collection event as an async job in River.
func (p *Publisher) Publish(ctx context.Context, event domain.Event, token domain.Token, descriptor string) error {
	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	if client == nil {
		return errors.New("river publisher not bound to a client")
	}

	_, err := client.Insert(ctx, StageEventArgs{
		Event:      string(event),
		TokenID:    token.ID,
		Owner:      token.Owner,
		Stage:      token.Stage.Name(),
		Descriptor: descriptor,
	}, nil)
	if err != nil {
		return fmt.Errorf("enqueuing event job: %w", err)
	}
	return nil
}
