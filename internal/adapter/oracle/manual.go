package oracle

import (
	"context"
	"sync"

	"github.com/google/uuid"

	"github.com/openmorph/metamorph/internal/domain"
)

// Compile-time check: Manual implements domain.WeatherSource.
var _ domain.WeatherSource = (*Manual)(nil)

// Manual is an in-process WeatherSource fed through the admin API.
// Each pushed reading is assigned a fresh request id, which becomes
// the current one. Used in development and closed-loop deployments
// where no external oracle is reachable.
type Manual struct {
	mu       sync.RWMutex
	current  string
	readings map[string][]byte
}

// NewManual creates an empty manual source. Until a reading is pushed,
// CurrentRequestID returns "" and the evaluator stays ineligible.
func NewManual() *Manual {
	return &Manual{readings: make(map[string][]byte)}
}

// Push stores a reading under a new request id and makes it current.
func (m *Manual) Push(reading domain.WeatherReading) (string, error) {
	raw, err := reading.Encode()
	if err != nil {
		return "", err
	}

	id := uuid.NewString()

	m.mu.Lock()
	defer m.mu.Unlock()
	m.readings[id] = raw
	m.current = id
	return id, nil
}

func (m *Manual) CurrentRequestID(_ context.Context) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.current, nil
}

func (m *Manual) ReadingFor(_ context.Context, requestID string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	raw, ok := m.readings[requestID]
	if !ok {
		return nil, domain.ErrNoReading
	}
	return raw, nil
}
