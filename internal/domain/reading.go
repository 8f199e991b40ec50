package domain

import (
	"bytes"
	"encoding/json"
	"errors"
)

// WeatherReading is a timestamped external measurement keyed by an
// oracle request id. A reading with Timestamp == 0 is absent/invalid
// and must never drive a transition.
type WeatherReading struct {
	Timestamp         int64   `json:"timestamp"`
	PrecipitationType string  `json:"precipitation_type"`
	Precipitation1H   float64 `json:"precipitation_1h"`
	Precipitation24H  float64 `json:"precipitation_24h"`
	PressureHPa       int     `json:"pressure_hpa"`
	TemperatureC      int     `json:"temperature_c"`
	WindKPH           float64 `json:"wind_kph"`
	HumidityPct       int     `json:"humidity_pct"`
	UVIndex           int     `json:"uv_index"`
	Icon              string  `json:"icon"`
}

// Populated reports whether the reading carries real data. The oracle
// signals "not ready" with a zero timestamp.
func (r WeatherReading) Populated() bool {
	return r.Timestamp != 0
}

// Encode serializes the reading into the opaque wire form exchanged
// with the oracle collaborator.
func (r WeatherReading) Encode() ([]byte, error) {
	return json.Marshal(r)
}

// DecodeReading parses the oracle's opaque form. It fails closed: any
// shape mismatch (malformed JSON, unknown fields, trailing data)
// returns a DecodeError instead of a zero-filled reading.
func DecodeReading(raw []byte) (WeatherReading, error) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.DisallowUnknownFields()

	var r WeatherReading
	if err := dec.Decode(&r); err != nil {
		return WeatherReading{}, &DecodeError{What: "weather reading", Err: err}
	}
	if dec.More() {
		return WeatherReading{}, &DecodeError{What: "weather reading", Err: errors.New("trailing data")}
	}
	return r, nil
}
