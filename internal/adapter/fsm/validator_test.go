package fsm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/openmorph/metamorph/internal/adapter/fsm"
	"github.com/openmorph/metamorph/internal/domain"
)

func TestNext_WalksTheLadder(t *testing.T) {
	v := fsm.New()

	cases := []struct {
		from domain.Stage
		want domain.Stage
	}{
		{domain.StageBaby, domain.StageChild},
		{domain.StageChild, domain.StageYouth},
		{domain.StageYouth, domain.StageAdult},
		{domain.StageAdult, domain.StageElder},
	}

	for _, tc := range cases {
		t.Run(tc.from.Name(), func(t *testing.T) {
			got, err := v.Next(context.Background(), tc.from)
			if err != nil {
				t.Fatalf("Next(%q) failed: %v", tc.from.Name(), err)
			}
			if got != tc.want {
				t.Errorf("Next(%q) = %q, want %q", tc.from.Name(), got.Name(), tc.want.Name())
			}
		})
	}
}

func TestNext_MaxStage(t *testing.T) {
	v := fsm.New()

	_, err := v.Next(context.Background(), domain.StageElder)
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
	if invalid.From != domain.StageElder {
		t.Errorf("From = %q, want %q", invalid.From.Name(), "elder")
	}
}

func TestNext_UnknownStage(t *testing.T) {
	v := fsm.New()

	_, err := v.Next(context.Background(), domain.Stage(42))
	var invalid *domain.InvalidTransitionError
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidTransitionError, got %v", err)
	}
}

func TestNext_Stateless(t *testing.T) {
	v := fsm.New()

	// Repeated calls from the same stage never drift.
	for range 3 {
		got, err := v.Next(context.Background(), domain.StageBaby)
		if err != nil {
			t.Fatalf("Next failed: %v", err)
		}
		if got != domain.StageChild {
			t.Errorf("got %q, want %q", got.Name(), "child")
		}
	}
}
