package store

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const serverValueKey = ".sv"
const serverValueTimestamp = "timestamp"

// Timestamp is a server wall-clock value in milliseconds. A pending
// Timestamp is a placeholder that the store resolves at write time, so
// only resolved values are ever compared.
type Timestamp struct {
	millis  int64
	pending bool
}

// ServerTimestamp returns the placeholder for the store's clock.
func ServerTimestamp() Timestamp {
	return Timestamp{pending: true}
}

func TimestampFromMillis(millis int64) Timestamp {
	return Timestamp{millis: millis}
}

func (t Timestamp) Pending() bool {
	return t.pending
}

func (t Timestamp) Millis() int64 {
	return t.millis
}

func (t Timestamp) Time() time.Time {
	return time.UnixMilli(t.millis)
}

// After reports whether t is later than o. Pending values sort as zero.
func (t Timestamp) After(o Timestamp) bool {
	return t.millis > o.millis
}

func (t Timestamp) String() string {
	if t.pending {
		return "pending"
	}
	return fmt.Sprintf("%d", t.millis)
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.pending {
		return json.Marshal(map[string]string{serverValueKey: serverValueTimestamp})
	}
	return json.Marshal(t.millis)
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*t = Timestamp{}
		return nil
	}
	if b[0] == '{' {
		sv := map[string]string{}
		if err := json.Unmarshal(b, &sv); err != nil {
			return fmt.Errorf("invalid timestamp %s: %w", b, err)
		}
		if sv[serverValueKey] != serverValueTimestamp {
			return fmt.Errorf("invalid server value %s", b)
		}
		*t = ServerTimestamp()
		return nil
	}
	var f float64
	if err := json.Unmarshal(b, &f); err != nil {
		return fmt.Errorf("invalid timestamp %s: %w", b, err)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("invalid timestamp %s", b)
	}
	*t = TimestampFromMillis(int64(f))
	return nil
}

// isServerTimestamp reports whether a decoded JSON value is the placeholder.
func isServerTimestamp(v interface{}) bool {
	m, ok := v.(map[string]interface{})
	if !ok || len(m) != 1 {
		return false
	}
	s, ok := m[serverValueKey].(string)
	return ok && s == serverValueTimestamp
}
