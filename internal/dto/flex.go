package dto

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Truthy decodes any JSON value. false, 0, "" and null are false; every
// other value is true.
type Truthy bool

func (t *Truthy) UnmarshalJSON(data []byte) error {
	raw := string(bytes.TrimSpace(data))
	switch raw {
	case "false", "null", `""`:
		*t = false
		return nil
	}
	if n, err := strconv.ParseFloat(raw, 64); err == nil {
		*t = n != 0
		return nil
	}
	*t = true
	return nil
}

// OptionalInt decodes a number or a numeric string. Anything else, null
// included, leaves it unset.
type OptionalInt struct {
	n   int
	set bool
}

func IntOf(n int) OptionalInt {
	return OptionalInt{n: n, set: true}
}

func (o *OptionalInt) UnmarshalJSON(data []byte) error {
	*o = OptionalInt{}
	raw := bytes.TrimSpace(data)
	if len(raw) > 0 && raw[0] == '"' {
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil
		}
		raw = []byte(strings.TrimSpace(s))
	}
	f, err := strconv.ParseFloat(string(raw), 64)
	if err != nil || math.IsInf(f, 0) || f != math.Trunc(f) {
		return nil
	}
	*o = IntOf(int(f))
	return nil
}

// Ptr returns nil when the value is unset.
func (o OptionalInt) Ptr() *int {
	if !o.set {
		return nil
	}
	n := o.n
	return &n
}
