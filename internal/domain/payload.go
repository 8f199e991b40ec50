package domain

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// PayloadKind discriminates TriggerPayload variants.
type PayloadKind string

const (
	// PayloadStageAdvance is the plain time-gated variant.
	PayloadStageAdvance PayloadKind = "stage.advance"
	// PayloadWeatherUpdate is the data-driven variant carrying the
	// oracle request id and a snapshot of its reading.
	PayloadWeatherUpdate PayloadKind = "weather.update"
)

// TriggerPayload carries one proposed transition from the advisory
// check to the authoritative perform. The executor treats every field
// as untrusted input and re-derives eligibility from live state.
type TriggerPayload struct {
	Kind      PayloadKind     `json:"kind"`
	TokenID   int64           `json:"token_id"`
	NextStage Stage           `json:"next_stage"`
	RequestID string          `json:"request_id,omitempty"`
	Reading   *WeatherReading `json:"reading,omitempty"`
}

// Encode serializes the payload for transport between check and perform.
func (p TriggerPayload) Encode() ([]byte, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return json.Marshal(p)
}

// DecodePayload parses and validates an opaque payload. Decoding fails
// closed: unknown fields, missing variant-required fields, or an
// unrecognized kind are rejected with a DecodeError.
func DecodePayload(raw []byte) (TriggerPayload, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var p TriggerPayload
	if err := dec.Decode(&p); err != nil {
		return TriggerPayload{}, &DecodeError{What: "trigger payload", Err: err}
	}
	if dec.More() {
		return TriggerPayload{}, &DecodeError{What: "trigger payload", Err: errors.New("trailing data")}
	}
	if err := p.validate(); err != nil {
		return TriggerPayload{}, &DecodeError{What: "trigger payload", Err: err}
	}
	return p, nil
}

func (p TriggerPayload) validate() error {
	if p.TokenID <= 0 {
		return fmt.Errorf("token id %d is not positive", p.TokenID)
	}
	if !p.NextStage.Valid() {
		return fmt.Errorf("next stage ordinal %d outside enumeration", int(p.NextStage))
	}

	switch p.Kind {
	case PayloadStageAdvance:
		if p.RequestID != "" || p.Reading != nil {
			return errors.New("stage advance payload carries oracle fields")
		}
	case PayloadWeatherUpdate:
		if p.RequestID == "" {
			return errors.New("weather update payload missing request id")
		}
		if p.Reading == nil {
			return errors.New("weather update payload missing reading snapshot")
		}
	default:
		return fmt.Errorf("unknown payload kind %q", p.Kind)
	}
	return nil
}
