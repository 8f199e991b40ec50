package domain

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"strconv"
)

// Descriptor is the consumer-facing metadata document synthesized for
// a token. Synthesis is pure: the same inputs always produce the same
// descriptor.
type Descriptor struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Image       string      `json:"image"`
	Attributes  []Attribute `json:"attributes,omitempty"`
}

// Attribute is a single display trait. Values are always rendered as
// text, including explicit signs for negative numbers.
type Attribute struct {
	TraitType string `json:"trait_type"`
	Value     string `json:"value"`
}

// StageImage returns the image file name for a stage, derived from the
// one-based stage index.
func StageImage(s Stage) string {
	return strconv.Itoa(int(s)+1) + ".png"
}

// StageDescriptor synthesizes the time-gated variant's descriptor from
// the token's current stage.
func StageDescriptor(token Token, baseURI string) Descriptor {
	return Descriptor{
		Name:        fmt.Sprintf("Morph #%d", token.ID),
		Description: fmt.Sprintf("A creature in its %s stage.", token.Stage.Name()),
		Image:       baseURI + StageImage(token.Stage),
		Attributes: []Attribute{
			{TraitType: "stage", Value: token.Stage.Name()},
		},
	}
}

// weatherImages maps the categorical precipitation type to an image
// file name. Unrecognized types fall back to clear.
var weatherImages = map[string]string{
	"rain":    "rain.png",
	"snow":    "snow.png",
	"sleet":   "sleet.png",
	"drizzle": "drizzle.png",
	"hail":    "hail.png",
}

// WeatherDescriptor synthesizes the data-driven variant's descriptor,
// embedding a snapshot of the reading's fields. Numeric fields are
// rendered as text; signed fields keep their explicit sign.
func WeatherDescriptor(token Token, r WeatherReading, baseURI string) Descriptor {
	image, ok := weatherImages[r.PrecipitationType]
	if !ok {
		image = "clear.png"
	}

	return Descriptor{
		Name:        fmt.Sprintf("Morph #%d", token.ID),
		Description: fmt.Sprintf("A creature in its %s stage, shaped by the weather.", token.Stage.Name()),
		Image:       baseURI + image,
		Attributes: []Attribute{
			{TraitType: "stage", Value: token.Stage.Name()},
			{TraitType: "observed_at", Value: strconv.FormatInt(r.Timestamp, 10)},
			{TraitType: "precipitation_type", Value: r.PrecipitationType},
			{TraitType: "precipitation_1h", Value: strconv.FormatFloat(r.Precipitation1H, 'f', -1, 64)},
			{TraitType: "precipitation_24h", Value: strconv.FormatFloat(r.Precipitation24H, 'f', -1, 64)},
			{TraitType: "pressure_hpa", Value: strconv.Itoa(r.PressureHPa)},
			{TraitType: "temperature_c", Value: strconv.Itoa(r.TemperatureC)},
			{TraitType: "wind_kph", Value: strconv.FormatFloat(r.WindKPH, 'f', -1, 64)},
			{TraitType: "humidity_pct", Value: strconv.Itoa(r.HumidityPct)},
			{TraitType: "uv_index", Value: strconv.Itoa(r.UVIndex)},
			{TraitType: "icon", Value: r.Icon},
		},
	}
}

// EncodeDescriptor renders the descriptor as a base64 JSON data URI,
// the reference form published to consumers.
func EncodeDescriptor(d Descriptor) (string, error) {
	b, err := json.Marshal(d)
	if err != nil {
		return "", fmt.Errorf("encoding descriptor: %w", err)
	}
	return "data:application/json;base64," + base64.StdEncoding.EncodeToString(b), nil
}
