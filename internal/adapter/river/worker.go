package river

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/riverqueue/river"

	"github.com/openmorph/metamorph/internal/domain"
)

// Upkeeper is the slice of the application service the scheduler
// workers need: the advisory check and the authoritative perform.
type Upkeeper interface {
	CheckAll(ctx context.Context) ([][]byte, error)
	PerformUpkeep(ctx context.Context, payload []byte) (bool, error)
}

// EventWorker processes collection event jobs from the River queue.
// For now it logs the event; future versions will dispatch to
// webhooks, indexers, or notification systems.
type EventWorker struct {
	river.WorkerDefaults[StageEventArgs]
}

// Work processes a single event job.
func (w *EventWorker) Work(ctx context.Context, job *river.Job[StageEventArgs]) error {
	slog.InfoContext(ctx, "processing token event",
		"event", job.Args.Event,
		"token_id", job.Args.TokenID,
		"stage", job.Args.Stage,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}

// UpkeepCheckArgs triggers one evaluator pass over the collection.
// Enqueued periodically; carries no data.
type UpkeepCheckArgs struct{}

// Kind returns the unique job type identifier used by River's job routing.
func (UpkeepCheckArgs) Kind() string { return "upkeep.check" }

// CheckWorker runs the eligibility evaluator across the collection and
// enqueues one perform job per eligible payload. The evaluator is pure,
// so a re-run after a crash is harmless.
type CheckWorker struct {
	river.WorkerDefaults[UpkeepCheckArgs]

	svc Upkeeper
}

// NewCheckWorker creates a check worker for the given service.
func NewCheckWorker(svc Upkeeper) *CheckWorker {
	return &CheckWorker{svc: svc}
}

// Work runs one check pass.
func (w *CheckWorker) Work(ctx context.Context, job *river.Job[UpkeepCheckArgs]) error {
	payloads, err := w.svc.CheckAll(ctx)
	if err != nil {
		return fmt.Errorf("running upkeep check: %w", err)
	}
	if len(payloads) == 0 {
		return nil
	}

	client, err := river.ClientFromContextSafely[*sql.Tx](ctx)
	if err != nil {
		return fmt.Errorf("obtaining river client: %w", err)
	}

	for _, payload := range payloads {
		if _, err := client.Insert(ctx, UpkeepPerformArgs{Payload: payload}, nil); err != nil {
			return fmt.Errorf("enqueuing perform job: %w", err)
		}
	}

	slog.InfoContext(ctx, "upkeep check pass complete",
		"eligible", len(payloads),
		"job_id", job.ID,
	)
	return nil
}

// UpkeepPerformArgs carries one opaque trigger payload to the executor.
type UpkeepPerformArgs struct {
	Payload json.RawMessage `json:"payload"`
}

// Kind returns the unique job type identifier used by River's job routing.
func (UpkeepPerformArgs) Kind() string { return "upkeep.perform" }

// PerformWorker submits payloads to the trigger executor. A payload
// that no longer holds commits nothing; that is the expected outcome
// of racing or delayed schedulers, not a failure.
type PerformWorker struct {
	river.WorkerDefaults[UpkeepPerformArgs]

	svc Upkeeper
}

// NewPerformWorker creates a perform worker for the given service.
func NewPerformWorker(svc Upkeeper) *PerformWorker {
	return &PerformWorker{svc: svc}
}

// Work submits a single payload.
func (w *PerformWorker) Work(ctx context.Context, job *river.Job[UpkeepPerformArgs]) error {
	committed, err := w.svc.PerformUpkeep(ctx, job.Args.Payload)
	if err != nil {
		// A malformed payload will never become valid; cancel instead
		// of burning retries.
		var decodeErr *domain.DecodeError
		if errors.As(err, &decodeErr) {
			return river.JobCancel(err)
		}
		return fmt.Errorf("performing upkeep: %w", err)
	}

	slog.InfoContext(ctx, "upkeep perform processed",
		"committed", committed,
		"job_id", job.ID,
		"attempt", job.Attempt,
	)
	return nil
}
