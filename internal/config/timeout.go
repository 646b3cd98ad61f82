package config

import (
	"encoding/json"
	"fmt"
	"time"
)

// Timeout wraps time.Duration to support JSON/YAML marshaling
// of human-readable duration strings (e.g. "30s", "5m", "1h").
// Use as a pointer (*Timeout) in config structs so that nil means "not set".
type Timeout time.Duration

// NewTimeout creates a pointer to a Timeout set to the given time.Duration.
func NewTimeout(d time.Duration) *Timeout {
	v := Timeout(d)
	return &v
}

// Value returns the underlying time.Duration.
// Returns 0 when called on a nil pointer.
func (d *Timeout) Value() time.Duration {
	if d == nil {
		return 0
	}
	return time.Duration(*d)
}

func (d Timeout) String() string {
	return time.Duration(d).String()
}

func (d Timeout) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

func (d *Timeout) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return fmt.Errorf("failed to parse duration: %w", err)
	}

	switch value := v.(type) {
	case float64:
		*d = Timeout(time.Duration(value))
		return nil
	case string:
		tmp, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("invalid duration %q: must be a duration like 30s, 5m, or nanoseconds number: %w", value, err)
		}
		*d = Timeout(tmp)
		return nil
	default:
		return fmt.Errorf("duration must be a duration string or nanoseconds number, got %T", v)
	}
}
