// pkg/events/detail.go
package events

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// DetailKind discriminates the closed value variant carried in event
// details. Producers hand us strings, numbers and bools; anything else
// must be stringified by the caller before logging.
type DetailKind int

const (
	DetailString DetailKind = iota
	DetailInt
	DetailFloat
	DetailBool
)

// Detail is a typed detail value. Keeping the original type (rather than
// coercing everything to string at the call site) lets serialization stay
// deterministic while pattern conditions still see a stable string form.
type Detail struct {
	kind DetailKind
	s    string
	i    int64
	f    float64
	b    bool
}

func String(v string) Detail  { return Detail{kind: DetailString, s: v} }
func Int(v int64) Detail      { return Detail{kind: DetailInt, i: v} }
func Float(v float64) Detail  { return Detail{kind: DetailFloat, f: v} }
func Bool(v bool) Detail      { return Detail{kind: DetailBool, b: v} }

func (d Detail) Kind() DetailKind { return d.kind }

// String returns the canonical string form used for condition matching
// and for the export document.
func (d Detail) String() string {
	switch d.kind {
	case DetailInt:
		return strconv.FormatInt(d.i, 10)
	case DetailFloat:
		return strconv.FormatFloat(d.f, 'g', -1, 64)
	case DetailBool:
		return strconv.FormatBool(d.b)
	default:
		return d.s
	}
}

func (d Detail) MarshalJSON() ([]byte, error) {
	switch d.kind {
	case DetailInt:
		return json.Marshal(d.i)
	case DetailFloat:
		return json.Marshal(d.f)
	case DetailBool:
		return json.Marshal(d.b)
	default:
		return json.Marshal(d.s)
	}
}

func (d *Detail) UnmarshalJSON(data []byte) error {
	if len(data) == 0 {
		return fmt.Errorf("empty detail value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*d = String(s)
		return nil
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*d = Bool(b)
		return nil
	default:
		// Integers round-trip exactly; everything else becomes a float.
		var i int64
		if err := json.Unmarshal(data, &i); err == nil {
			*d = Int(i)
			return nil
		}
		var f float64
		if err := json.Unmarshal(data, &f); err != nil {
			return fmt.Errorf("detail value is neither string, bool nor number: %s", data)
		}
		*d = Float(f)
		return nil
	}
}
