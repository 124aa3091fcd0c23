package synthesis

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

// Engine-side AudioQuery keys the gateway overwrites.
const (
	QuerySpeedScale      = "speedScale"
	QueryPitchScale      = "pitchScale"
	QueryIntonationScale = "intonationScale"
	QueryVolumeScale     = "volumeScale"
)

// AudioQuery is the engine's intermediate query object. Only the prosody keys are
// interpreted; every other key keeps its raw JSON value and its original position.
type AudioQuery struct {
	keys   []string
	values map[string]json.RawMessage
}

// ParseAudioQuery decodes a JSON object, preserving key order.
func ParseAudioQuery(data []byte) (*AudioQuery, error) {
	dec := json.NewDecoder(bytes.NewReader(data))

	tok, err := dec.Token()
	if err != nil {
		return nil, fmt.Errorf("audio query: %w", err)
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return nil, errors.New("audio query: not a JSON object")
	}

	q := &AudioQuery{values: make(map[string]json.RawMessage)}
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, fmt.Errorf("audio query: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, fmt.Errorf("audio query: unexpected token %v", tok)
		}
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return nil, fmt.Errorf("audio query: value of %q: %w", key, err)
		}
		if _, dup := q.values[key]; !dup {
			q.keys = append(q.keys, key)
		}
		q.values[key] = raw
	}
	if _, err := dec.Token(); err != nil {
		return nil, fmt.Errorf("audio query: %w", err)
	}
	if dec.More() {
		return nil, errors.New("audio query: trailing data after object")
	}
	return q, nil
}

// Keys returns the keys in their original order.
func (q *AudioQuery) Keys() []string {
	return append([]string(nil), q.keys...)
}

// Get returns the raw JSON value of key.
func (q *AudioQuery) Get(key string) (json.RawMessage, bool) {
	v, ok := q.values[key]
	return v, ok
}

// SetFloat overwrites key, appending it if absent.
func (q *AudioQuery) SetFloat(key string, v float64) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("audio query: set %q: %w", key, err)
	}
	if _, ok := q.values[key]; !ok {
		q.keys = append(q.keys, key)
	}
	q.values[key] = raw
	return nil
}

// ApplyProsody overwrites exactly the four prosody keys with the request's values.
func (q *AudioQuery) ApplyProsody(req Request) error {
	fields := []struct {
		key string
		v   float64
	}{
		{QuerySpeedScale, req.SpeedScale},
		{QueryPitchScale, req.PitchScale},
		{QueryIntonationScale, req.IntonationScale},
		{QueryVolumeScale, req.VolumeScale},
	}
	for _, f := range fields {
		if err := q.SetFloat(f.key, f.v); err != nil {
			return err
		}
	}
	return nil
}

// MarshalJSON writes the object back with keys in their original order.
func (q *AudioQuery) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range q.keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		kb, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		buf.Write(kb)
		buf.WriteByte(':')
		buf.Write(q.values[k])
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
