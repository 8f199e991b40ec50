package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/openmorph/metamorph/internal/domain"
)

// TokenService orchestrates minting, metadata synthesis, and the
// check/perform upkeep cycle.
//
// CheckUpkeep is the advisory evaluator: pure, read-only, safe to call
// arbitrarily often. PerformUpkeep is the authoritative executor: it
// re-validates every precondition against live state before committing,
// so stale or replayed payloads collapse into silent no-ops.
type TokenService struct {
	repo      domain.TokenRepository
	state     domain.StateRepository
	publisher domain.EventPublisher
	validator domain.TransitionValidator
	auth      domain.Authorizer
	source    domain.WeatherSource // nil disables oracle gating
	baseURI   string

	now func() time.Time

	// mu serializes the executor's revalidate-then-commit sequence.
	// The substrate is concurrent (HTTP handlers plus queue workers),
	// so "first valid submission wins" needs a critical section.
	mu sync.Mutex
}

// NewTokenService creates a service with the given adapters.
func NewTokenService(
	repo domain.TokenRepository,
	state domain.StateRepository,
	publisher domain.EventPublisher,
	validator domain.TransitionValidator,
	auth domain.Authorizer,
	baseURI string,
) *TokenService {
	return &TokenService{
		repo:      repo,
		state:     state,
		publisher: publisher,
		validator: validator,
		auth:      auth,
		baseURI:   baseURI,
		now:       time.Now,
	}
}

// WithWeatherSource enables oracle-gated advancement: eligibility then
// also requires a fresh, populated reading and an unexhausted budget.
func (s *TokenService) WithWeatherSource(source domain.WeatherSource) *TokenService {
	s.source = source
	return s
}

// WithClock overrides the service's time source.
func (s *TokenService) WithClock(now func() time.Time) *TokenService {
	s.now = now
	return s
}

// Mint creates a token at the minimum stage. Privileged.
func (s *TokenService) Mint(ctx context.Context, key, owner string) (domain.Token, error) {
	if err := s.auth.Authorize(ctx, key, "mint"); err != nil {
		return domain.Token{}, err
	}

	token, err := s.repo.Create(ctx, domain.NewToken(owner))
	if err != nil {
		return domain.Token{}, fmt.Errorf("creating token: %w", err)
	}

	descriptor, err := domain.EncodeDescriptor(domain.StageDescriptor(token, s.baseURI))
	if err != nil {
		return domain.Token{}, err
	}

	if err := s.publisher.Publish(ctx, domain.EventMinted, token, descriptor); err != nil {
		return domain.Token{}, fmt.Errorf("publishing mint event: %w", err)
	}

	return token, nil
}

// GetToken returns a token by its id.
func (s *TokenService) GetToken(ctx context.Context, id int64) (domain.Token, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns tokens matching the given filter.
func (s *TokenService) List(ctx context.Context, filter domain.ListFilter) ([]domain.Token, error) {
	return s.repo.List(ctx, filter)
}

// CollectionState returns the collection-wide clock, budget and latest
// consumed request id.
func (s *TokenService) CollectionState(ctx context.Context) (domain.CollectionState, error) {
	return s.state.State(ctx)
}

// TokenMetadata synthesizes the token's current descriptor reference.
// When a weather source is wired and a consumed reading exists, the
// descriptor embeds that reading; otherwise it is stage-derived.
func (s *TokenService) TokenMetadata(ctx context.Context, id int64) (string, error) {
	token, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}

	if s.source != nil {
		st, err := s.state.State(ctx)
		if err != nil {
			return "", err
		}
		if st.LatestRequestID != "" {
			reading, err := s.state.Reading(ctx, st.LatestRequestID)
			switch {
			case err == nil && reading.Populated():
				return domain.EncodeDescriptor(domain.WeatherDescriptor(token, reading, s.baseURI))
			case err != nil && !errors.Is(err, domain.ErrNoReading):
				return "", err
			}
		}
	}

	return domain.EncodeDescriptor(domain.StageDescriptor(token, s.baseURI))
}

// CheckUpkeep is the eligibility evaluator. It has no side effects and
// reports whether the token may advance right now, returning the
// encoded trigger payload when it may. A missing token is a plain
// negative result, not an error.
func (s *TokenService) CheckUpkeep(ctx context.Context, tokenID int64) (bool, []byte, error) {
	token, err := s.repo.GetByID(ctx, tokenID)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return false, nil, nil
	}
	if err != nil {
		return false, nil, err
	}

	next, ok := token.Stage.Next()
	if !ok {
		return false, nil, nil
	}

	st, err := s.state.State(ctx)
	if err != nil {
		return false, nil, err
	}
	if !st.IntervalElapsed(s.now()) {
		return false, nil, nil
	}

	payload := domain.TriggerPayload{
		Kind:      domain.PayloadStageAdvance,
		TokenID:   token.ID,
		NextStage: next,
	}

	if s.source != nil {
		if st.BudgetExhausted() {
			return false, nil, nil
		}

		requestID, err := s.source.CurrentRequestID(ctx)
		if err != nil {
			return false, nil, fmt.Errorf("fetching current request id: %w", err)
		}
		if requestID == "" || requestID == st.LatestRequestID {
			return false, nil, nil
		}

		raw, err := s.source.ReadingFor(ctx, requestID)
		if err != nil {
			return false, nil, fmt.Errorf("fetching reading %q: %w", requestID, err)
		}
		reading, err := domain.DecodeReading(raw)
		if err != nil {
			return false, nil, err
		}
		if !reading.Populated() {
			return false, nil, nil
		}

		payload.Kind = domain.PayloadWeatherUpdate
		payload.RequestID = requestID
		payload.Reading = &reading
	}

	encoded, err := payload.Encode()
	if err != nil {
		return false, nil, err
	}
	return true, encoded, nil
}

// CheckAll runs the evaluator across every token and returns the
// payloads of the eligible ones. Used by the scheduler adapter.
func (s *TokenService) CheckAll(ctx context.Context) ([][]byte, error) {
	tokens, err := s.repo.List(ctx, domain.ListFilter{})
	if err != nil {
		return nil, err
	}

	var payloads [][]byte
	for _, token := range tokens {
		eligible, payload, err := s.CheckUpkeep(ctx, token.ID)
		if err != nil {
			return nil, err
		}
		if eligible {
			payloads = append(payloads, payload)
		}
	}
	return payloads, nil
}

// PerformUpkeep is the trigger executor. It decodes the payload
// (failing closed), re-validates every eligibility predicate against
// current state, and commits the advance atomically. A payload that no
// longer holds is discarded: committed is false and err is nil, since
// racing schedulers are expected to submit stale payloads.
func (s *TokenService) PerformUpkeep(ctx context.Context, raw []byte) (bool, error) {
	payload, err := domain.DecodePayload(raw)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token, err := s.repo.GetByID(ctx, payload.TokenID)
	if errors.Is(err, domain.ErrTokenNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	next, err := s.validator.Next(ctx, token.Stage)
	if err != nil {
		var trErr *domain.InvalidTransitionError
		if errors.As(err, &trErr) {
			return false, nil
		}
		return false, err
	}
	// A payload computed against stale state may propose a now-wrong
	// target. Exact match only; never apply the payload's own stage.
	if payload.NextStage != next {
		return false, nil
	}

	st, err := s.state.State(ctx)
	if err != nil {
		return false, err
	}

	now := s.now()
	if !st.IntervalElapsed(now) {
		return false, nil
	}

	commit := domain.AdvanceCommit{
		TokenID:     token.ID,
		NewStage:    next,
		TriggeredAt: now,
	}

	if s.source != nil {
		if payload.Kind != domain.PayloadWeatherUpdate {
			return false, nil
		}
		if st.BudgetExhausted() {
			return false, nil
		}
		if payload.RequestID == st.LatestRequestID {
			return false, nil
		}
		// The embedded snapshot is what gets persisted on commit, so
		// its timestamp is validated here rather than re-fetched.
		if !payload.Reading.Populated() {
			return false, nil
		}
		commit.RequestID = payload.RequestID
		commit.Reading = payload.Reading
	} else if payload.Kind != domain.PayloadStageAdvance {
		return false, nil
	}

	if err := s.state.CommitAdvance(ctx, commit); err != nil {
		return false, fmt.Errorf("committing advance: %w", err)
	}

	token.Stage = next
	token.UpdatedAt = now

	var descriptor string
	if commit.Reading != nil {
		descriptor, err = domain.EncodeDescriptor(domain.WeatherDescriptor(token, *commit.Reading, s.baseURI))
	} else {
		descriptor, err = domain.EncodeDescriptor(domain.StageDescriptor(token, s.baseURI))
	}
	if err != nil {
		return true, err
	}

	if err := s.publisher.Publish(ctx, domain.EventStageAdvanced, token, descriptor); err != nil {
		return true, fmt.Errorf("publishing stage event: %w", err)
	}

	return true, nil
}

// ResetBudget zeroes the update counter, re-enabling data-driven
// advances once the budget is exhausted. Privileged.
func (s *TokenService) ResetBudget(ctx context.Context, key string) error {
	if err := s.auth.Authorize(ctx, key, "budget.reset"); err != nil {
		return err
	}

	if err := s.state.ResetBudget(ctx); err != nil {
		return fmt.Errorf("resetting budget: %w", err)
	}

	slog.InfoContext(ctx, "update budget reset")
	return nil
}
