package domain

import (
	"encoding/json"
	"fmt"
	"time"
)

// Stage is one position in a token's ordered growth progression.
// Ordinals are contiguous starting at zero; the zero value is the
// stage every token is minted at.
type Stage int

const (
	StageBaby Stage = iota
	StageChild
	StageYouth
	StageAdult
	StageElder
)

// MaxStage is the final stage. Tokens never advance past it.
const MaxStage = StageElder

var stageNames = [...]string{"baby", "child", "youth", "adult", "elder"}

// Valid reports whether s lies within the closed enumeration.
func (s Stage) Valid() bool {
	return s >= StageBaby && s <= MaxStage
}

// Name returns the lowercase stage name, or "unknown" for values
// outside the enumeration.
func (s Stage) Name() string {
	if !s.Valid() {
		return "unknown"
	}
	return stageNames[s]
}

// Next returns the stage that follows s. ok is false at MaxStage or
// for values outside the enumeration.
func (s Stage) Next() (Stage, bool) {
	if !s.Valid() || s == MaxStage {
		return s, false
	}
	return s + 1, true
}

// StageFromName resolves a stage by its lowercase name.
func StageFromName(name string) (Stage, bool) {
	for i, n := range stageNames {
		if n == name {
			return Stage(i), true
		}
	}
	return 0, false
}

// MarshalJSON encodes the stage by name so payloads and API responses
// are self-describing. Values outside the enumeration are rejected.
func (s Stage) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return nil, fmt.Errorf("stage ordinal %d outside enumeration", int(s))
	}
	return json.Marshal(s.Name())
}

// UnmarshalJSON decodes a stage by name, rejecting unknown names
// rather than defaulting.
func (s *Stage) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	st, ok := StageFromName(name)
	if !ok {
		return fmt.Errorf("unknown stage %q", name)
	}
	*s = st
	return nil
}

// Transition defines a valid stage change: a token at Src may advance
// to Dst. Advancement is strictly single-step.
type Transition struct {
	Src Stage
	Dst Stage
}

// Transitions defines all valid stage changes, one per adjacent pair.
// This is domain knowledge consumed by the FSM adapter.
var Transitions = buildTransitions()

func buildTransitions() []Transition {
	out := make([]Transition, 0, int(MaxStage))
	for s := StageBaby; s < MaxStage; s++ {
		out = append(out, Transition{Src: s, Dst: s + 1})
	}
	return out
}

// Event represents an observable collection occurrence published to
// external consumers (indexers, UIs).
type Event string

const (
	EventMinted        Event = "minted"
	EventStageAdvanced Event = "stage_advanced"
)

// Token is the core domain entity: an addressable collectible subject
// to staged progression. Ownership mechanics beyond the owner field
// are out of scope.
type Token struct {
	ID        int64
	Owner     string
	Stage     Stage
	CreatedAt time.Time
	UpdatedAt time.Time
}

// NewToken creates a token at the minimum stage. The repository
// assigns the ID on insert.
func NewToken(owner string) Token {
	now := time.Now().UTC()
	return Token{
		Owner:     owner,
		Stage:     StageBaby,
		CreatedAt: now,
		UpdatedAt: now,
	}
}

// CollectionState is the collection-wide state aggregate: the global
// trigger clock, the optional update budget, and the last consumed
// oracle request id. Mutated only inside the executor's commit path,
// except for the explicit privileged budget reset.
type CollectionState struct {
	LastTriggerAt   time.Time
	Interval        time.Duration
	UpdateCount     int
	MaxUpdates      int // 0 disables the budget
	LatestRequestID string
}

// IntervalElapsed reports whether enough time has passed since the
// last committed advance.
func (cs CollectionState) IntervalElapsed(now time.Time) bool {
	return now.Sub(cs.LastTriggerAt) >= cs.Interval
}

// BudgetExhausted reports whether the bounded update budget has been
// used up. A zero MaxUpdates means no budget applies.
func (cs CollectionState) BudgetExhausted() bool {
	return cs.MaxUpdates > 0 && cs.UpdateCount >= cs.MaxUpdates
}
