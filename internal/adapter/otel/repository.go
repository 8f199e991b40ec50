package otel

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/openmorph/metamorph/internal/domain"
)

const tracerName = "github.com/openmorph/metamorph/internal/adapter/otel"

// TracingRepository wraps a combined token/state repository with
// OpenTelemetry tracing. Each method creates a span with semantic
// attributes and records errors.
type TracingRepository struct {
	tokens domain.TokenRepository
	state  domain.StateRepository
	tracer trace.Tracer
}

// Compile-time checks: TracingRepository implements both repository ports.
var (
	_ domain.TokenRepository = (*TracingRepository)(nil)
	_ domain.StateRepository = (*TracingRepository)(nil)
)

// Repository is the combined persistence surface the decorator wraps.
type Repository interface {
	domain.TokenRepository
	domain.StateRepository
}

// NewTracingRepository creates a tracing decorator around the given repository.
func NewTracingRepository(next Repository) *TracingRepository {
	return &TracingRepository{
		tokens: next,
		state:  next,
		tracer: otel.Tracer(tracerName),
	}
}

func (r *TracingRepository) Create(ctx context.Context, token domain.Token) (domain.Token, error) {
	ctx, span := r.tracer.Start(ctx, "TokenRepository.Create",
		trace.WithAttributes(attribute.String("token.owner", token.Owner)),
	)
	defer span.End()

	created, err := r.tokens.Create(ctx, token)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int64("token.id", created.ID))
	}
	return created, err
}

func (r *TracingRepository) GetByID(ctx context.Context, id int64) (domain.Token, error) {
	ctx, span := r.tracer.Start(ctx, "TokenRepository.GetByID",
		trace.WithAttributes(attribute.Int64("token.id", id)),
	)
	defer span.End()

	token, err := r.tokens.GetByID(ctx, id)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return token, err
}

func (r *TracingRepository) List(ctx context.Context, filter domain.ListFilter) ([]domain.Token, error) {
	ctx, span := r.tracer.Start(ctx, "TokenRepository.List",
		trace.WithAttributes(
			attribute.Int("filter.limit", filter.Limit),
			attribute.Int("filter.offset", filter.Offset),
		),
	)
	defer span.End()

	if filter.Stage != nil {
		span.SetAttributes(attribute.String("filter.stage", filter.Stage.Name()))
	}

	tokens, err := r.tokens.List(ctx, filter)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetAttributes(attribute.Int("result.count", len(tokens)))
	}
	return tokens, err
}

func (r *TracingRepository) State(ctx context.Context) (domain.CollectionState, error) {
	ctx, span := r.tracer.Start(ctx, "StateRepository.State")
	defer span.End()

	st, err := r.state.State(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return st, err
}

func (r *TracingRepository) EnsureState(ctx context.Context, interval time.Duration, maxUpdates int) error {
	ctx, span := r.tracer.Start(ctx, "StateRepository.EnsureState",
		trace.WithAttributes(
			attribute.String("state.interval", interval.String()),
			attribute.Int("state.max_updates", maxUpdates),
		),
	)
	defer span.End()

	err := r.state.EnsureState(ctx, interval, maxUpdates)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) CommitAdvance(ctx context.Context, commit domain.AdvanceCommit) error {
	ctx, span := r.tracer.Start(ctx, "StateRepository.CommitAdvance",
		trace.WithAttributes(
			attribute.Int64("token.id", commit.TokenID),
			attribute.String("token.stage", commit.NewStage.Name()),
		),
	)
	defer span.End()

	if commit.RequestID != "" {
		span.SetAttributes(attribute.String("oracle.request_id", commit.RequestID))
	}

	err := r.state.CommitAdvance(ctx, commit)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) ResetBudget(ctx context.Context) error {
	ctx, span := r.tracer.Start(ctx, "StateRepository.ResetBudget")
	defer span.End()

	err := r.state.ResetBudget(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) StoreReading(ctx context.Context, requestID string, reading domain.WeatherReading) error {
	ctx, span := r.tracer.Start(ctx, "StateRepository.StoreReading",
		trace.WithAttributes(attribute.String("oracle.request_id", requestID)),
	)
	defer span.End()

	err := r.state.StoreReading(ctx, requestID, reading)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return err
}

func (r *TracingRepository) Reading(ctx context.Context, requestID string) (domain.WeatherReading, error) {
	ctx, span := r.tracer.Start(ctx, "StateRepository.Reading",
		trace.WithAttributes(attribute.String("oracle.request_id", requestID)),
	)
	defer span.End()

	reading, err := r.state.Reading(ctx, requestID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	return reading, err
}
