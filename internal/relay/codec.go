package relay

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"reflect"
	"slices"
	"time"

	"notithing/internal/note"
)

// ProtocolVersion is the highest wire version this build understands.
const ProtocolVersion byte = 1

var (
	ErrUnsupportedType = errors.New("unsupported value type")
	ErrMalformed       = errors.New("malformed relay frame")
)

// Message is a decoded relay frame.
type Message struct {
	Hostname  string
	Timestamp float64 // unix seconds
	Note      *note.Notification
	// Raw is the JSON payload following the version byte.
	Raw []byte
}

// Time converts Timestamp to a time.Time.
func (m *Message) Time() time.Time {
	sec := int64(m.Timestamp)
	return time.Unix(sec, int64((m.Timestamp-float64(sec))*1e9))
}

type wireNote struct {
	AppName    string         `json:"app_name"`
	ReplacesID uint32         `json:"replaces_id"`
	Icon       string         `json:"icon"`
	Summary    string         `json:"summary"`
	Body       string         `json:"body"`
	Actions    []string       `json:"actions"`
	Hints      map[string]any `json:"hints"`
	Timeout    int32          `json:"timeout"`
	Plain      *note.Plain    `json:"plain,omitempty"`
}

// Codec converts notifications to and from relay frames.
type Codec struct {
	Hostname string
	Version  byte
	Now      func() time.Time
}

func NewCodec(hostname string) Codec {
	return Codec{Hostname: hostname, Version: ProtocolVersion, Now: time.Now}
}

// Encode produces version byte + JSON [hostname, timestamp, fields].
func (c Codec) Encode(n *note.Notification) ([]byte, error) {
	hints, err := Sanitize(n.Hints)
	if err != nil {
		return nil, fmt.Errorf("encode hints: %w", err)
	}
	w := wireNote{
		AppName:    n.AppName,
		ReplacesID: n.ReplacesID,
		Icon:       n.Icon,
		Summary:    n.Summary,
		Body:       n.Body,
		Actions:    n.Actions,
		Timeout:    n.Timeout,
		Plain:      n.Plain,
	}
	if hints != nil {
		w.Hints = hints.(map[string]any)
	}
	if w.Actions == nil {
		w.Actions = []string{}
	}
	if w.Hints == nil {
		w.Hints = map[string]any{}
	}

	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	at := now()
	ts := float64(at.Unix()) + float64(at.Nanosecond())/1e9
	payload, err := json.Marshal([]any{c.Hostname, ts, w})
	if err != nil {
		return nil, fmt.Errorf("encode relay frame: %w", err)
	}
	version := c.Version
	if version == 0 {
		version = ProtocolVersion
	}
	return append([]byte{version}, payload...), nil
}

// Decode parses a frame. Frames from a newer protocol version yield (nil, nil).
func (c Codec) Decode(frame []byte) (*Message, error) {
	if len(frame) == 0 {
		return nil, fmt.Errorf("%w: empty", ErrMalformed)
	}
	version := c.Version
	if version == 0 {
		version = ProtocolVersion
	}
	if frame[0] > version {
		return nil, nil
	}

	var parts []json.RawMessage
	if err := json.Unmarshal(frame[1:], &parts); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	if len(parts) != 3 {
		return nil, fmt.Errorf("%w: expected 3 elements, got %d", ErrMalformed, len(parts))
	}
	msg := &Message{Raw: frame[1:]}
	if err := json.Unmarshal(parts[0], &msg.Hostname); err != nil {
		return nil, fmt.Errorf("%w: hostname: %w", ErrMalformed, err)
	}
	if err := json.Unmarshal(parts[1], &msg.Timestamp); err != nil {
		return nil, fmt.Errorf("%w: timestamp: %w", ErrMalformed, err)
	}
	w := wireNote{Timeout: note.TimeoutDefault}
	if err := json.Unmarshal(parts[2], &w); err != nil {
		return nil, fmt.Errorf("%w: note: %w", ErrMalformed, err)
	}
	n := note.New(w.Summary, w.Body, msg.Time())
	if w.AppName != "" {
		n.AppName = w.AppName
	}
	n.ReplacesID = w.ReplacesID
	n.Icon = w.Icon
	n.Actions = w.Actions
	if w.Hints != nil {
		n.Hints = w.Hints
	}
	n.Timeout = w.Timeout
	n.Plain = w.Plain
	msg.Note = n
	return msg, nil
}

// Sanitize reduces v to the value types the wire format carries: nil, bools,
// integers, floats, strings, byte slices, slices and string-keyed maps of those.
// Anything else fails with ErrUnsupportedType.
func Sanitize(v any) (any, error) {
	switch x := v.(type) {
	case nil, bool, string, []byte,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64:
		return x, nil
	case map[string]any:
		out := make(map[string]any, len(x))
		for _, k := range slices.Sorted(maps.Keys(x)) {
			sv, err := Sanitize(x[k])
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = sv
		}
		return out, nil
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			sv, err := Sanitize(e)
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = sv
		}
		return out, nil
	}

	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Slice, reflect.Array:
		out := make([]any, rv.Len())
		for i := range out {
			sv, err := Sanitize(rv.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("[%d]: %w", i, err)
			}
			out[i] = sv
		}
		return out, nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("%w: map key %s", ErrUnsupportedType, rv.Type().Key())
		}
		out := make(map[string]any, rv.Len())
		iter := rv.MapRange()
		for iter.Next() {
			k := iter.Key().String()
			sv, err := Sanitize(iter.Value().Interface())
			if err != nil {
				return nil, fmt.Errorf("%q: %w", k, err)
			}
			out[k] = sv
		}
		return out, nil
	}
	return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, v)
}
