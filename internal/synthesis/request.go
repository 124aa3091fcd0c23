package synthesis

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/url"
	"strconv"
	"strings"
)

// Field names as accepted from callers, in JSON bodies and query strings alike.
const (
	FieldText            = "text"
	FieldSpeaker         = "speaker"
	FieldSpeedScale      = "speed_scale"
	FieldPitchScale      = "pitch_scale"
	FieldIntonationScale = "intonation_scale"
	FieldVolumeScale     = "volume_scale"
)

const (
	DefaultSpeaker         = 1
	DefaultSpeedScale      = 1.0
	DefaultPitchScale      = 0.0
	DefaultIntonationScale = 1.0
	DefaultVolumeScale     = 1.0
)

// Closed interval a prosody value must lie in.
type bounds struct{ min, max float64 }

var (
	speedBounds      = bounds{0.5, 2.0}
	pitchBounds      = bounds{-0.15, 0.15}
	intonationBounds = bounds{0.0, 2.0}
	volumeBounds     = bounds{0.0, 2.0}
)

// Request is a validated synthesis request with defaults applied.
type Request struct {
	Text            string  `json:"text"`
	Speaker         int     `json:"speaker"`
	SpeedScale      float64 `json:"speed_scale"`
	PitchScale      float64 `json:"pitch_scale"`
	IntonationScale float64 `json:"intonation_scale"`
	VolumeScale     float64 `json:"volume_scale"`
}

// NewRequest returns a Request for text with every other field at its default.
func NewRequest(text string) Request {
	return Request{
		Text:            text,
		Speaker:         DefaultSpeaker,
		SpeedScale:      DefaultSpeedScale,
		PitchScale:      DefaultPitchScale,
		IntonationScale: DefaultIntonationScale,
		VolumeScale:     DefaultVolumeScale,
	}
}

// wireRequest distinguishes absent fields from zero values.
type wireRequest struct {
	Text            *string  `json:"text"`
	Speaker         *int     `json:"speaker"`
	SpeedScale      *float64 `json:"speed_scale"`
	PitchScale      *float64 `json:"pitch_scale"`
	IntonationScale *float64 `json:"intonation_scale"`
	VolumeScale     *float64 `json:"volume_scale"`
}

// DecodeJSON binds a JSON body into a Request, applies defaults and validates it.
// Unknown fields are ignored.
func DecodeJSON(r io.Reader) (Request, error) {
	var w wireRequest
	if err := json.NewDecoder(r).Decode(&w); err != nil {
		if errors.Is(err, io.EOF) {
			return Request{}, &ValidationError{Field: FieldText, Reason: "field required"}
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) && typeErr.Field != "" {
			return Request{}, &ValidationError{Field: typeErr.Field, Reason: "invalid type, expected " + typeErr.Type.String()}
		}
		return Request{}, &ValidationError{Field: "body", Reason: "invalid JSON: " + err.Error()}
	}

	req := NewRequest("")
	if w.Text == nil {
		return Request{}, &ValidationError{Field: FieldText, Reason: "field required"}
	}
	req.Text = *w.Text
	if w.Speaker != nil {
		req.Speaker = *w.Speaker
	}
	if w.SpeedScale != nil {
		req.SpeedScale = *w.SpeedScale
	}
	if w.PitchScale != nil {
		req.PitchScale = *w.PitchScale
	}
	if w.IntonationScale != nil {
		req.IntonationScale = *w.IntonationScale
	}
	if w.VolumeScale != nil {
		req.VolumeScale = *w.VolumeScale
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// FromQuery binds named query parameters into a Request, applies defaults and validates it.
func FromQuery(q url.Values) (Request, error) {
	if !q.Has(FieldText) {
		return Request{}, &ValidationError{Field: FieldText, Reason: "field required"}
	}
	req := NewRequest(q.Get(FieldText))

	if v, ok := lookup(q, FieldSpeaker); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Request{}, &ValidationError{Field: FieldSpeaker, Reason: "must be an integer"}
		}
		req.Speaker = n
	}

	floats := []struct {
		name string
		dst  *float64
	}{
		{FieldSpeedScale, &req.SpeedScale},
		{FieldPitchScale, &req.PitchScale},
		{FieldIntonationScale, &req.IntonationScale},
		{FieldVolumeScale, &req.VolumeScale},
	}
	for _, f := range floats {
		v, ok := lookup(q, f.name)
		if !ok {
			continue
		}
		x, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return Request{}, &ValidationError{Field: f.name, Reason: "must be a number"}
		}
		*f.dst = x
	}

	if err := req.Validate(); err != nil {
		return Request{}, err
	}
	return req, nil
}

// lookup treats an empty query value the same as an absent one.
func lookup(q url.Values, key string) (string, bool) {
	v := strings.TrimSpace(q.Get(key))
	return v, v != ""
}

// Validate checks the text and every prosody value against its closed interval.
func (r Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return &ValidationError{Field: FieldText, Reason: "must not be empty"}
	}
	checks := []struct {
		name string
		v    float64
		b    bounds
	}{
		{FieldSpeedScale, r.SpeedScale, speedBounds},
		{FieldPitchScale, r.PitchScale, pitchBounds},
		{FieldIntonationScale, r.IntonationScale, intonationBounds},
		{FieldVolumeScale, r.VolumeScale, volumeBounds},
	}
	for _, c := range checks {
		if math.IsNaN(c.v) || c.v < c.b.min || c.v > c.b.max {
			return &ValidationError{
				Field:  c.name,
				Reason: fmt.Sprintf("must be between %g and %g", c.b.min, c.b.max),
			}
		}
	}
	return nil
}
