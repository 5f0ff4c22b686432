package widget

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Timestamp decodes either createdAt encoding found in stored documents:
// the store-native {"seconds": s, "nanoseconds": n} object, or an
// epoch-derived value (milliseconds since the epoch, or an RFC 3339 string).
// The decoded time is normalized with NormalizeTime.
type Timestamp struct {
	time.Time
}

type nativeTimestamp struct {
	Seconds      *int64 `json:"seconds"`
	Nanoseconds  int64  `json:"nanoseconds"`
	USeconds     *int64 `json:"_seconds"`
	UNanoseconds int64  `json:"_nanoseconds"`
}

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	switch {
	case len(b) == 0 || bytes.Equal(b, []byte("null")):
		t.Time = time.Time{}
		return nil
	case b[0] == '{':
		var n nativeTimestamp
		if err := json.Unmarshal(b, &n); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		switch {
		case n.Seconds != nil:
			t.Time = NormalizeTime(time.Unix(*n.Seconds, n.Nanoseconds))
		case n.USeconds != nil:
			t.Time = NormalizeTime(time.Unix(*n.USeconds, n.UNanoseconds))
		default:
			return fmt.Errorf("decode timestamp: missing seconds in %s", b)
		}
		return nil
	case b[0] == '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		parsed, err := parseTimeString(s)
		if err != nil {
			return err
		}
		t.Time = parsed
		return nil
	default:
		ms, err := strconv.ParseFloat(string(b), 64)
		if err != nil {
			return fmt.Errorf("decode timestamp: %w", err)
		}
		t.Time = fromEpochMillis(ms)
		return nil
	}
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(t.Time.UTC().Format(time.RFC3339Nano))
}

func parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if ms, err := strconv.ParseFloat(s, 64); err == nil {
		return fromEpochMillis(ms), nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC1123, time.RFC1123Z} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return NormalizeTime(parsed), nil
		}
	}
	return time.Time{}, fmt.Errorf("decode timestamp: unrecognized time %q", s)
}

func fromEpochMillis(ms float64) time.Time {
	return NormalizeTime(time.UnixMicro(int64(ms * 1000)))
}

// NormalizeTime converts t to the single in-memory representation used for
// comment timestamps: UTC at microsecond precision.
func NormalizeTime(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC().Truncate(time.Microsecond)
}

// TimeAgo renders the age of t relative to now as shown in the widget.
func TimeAgo(t, now time.Time) string {
	minutes := int(now.Sub(t) / time.Minute)
	if minutes < 0 {
		minutes = 0
	}
	if minutes < 60 {
		return plural(minutes, "minute")
	}
	hours := minutes / 60
	if hours < 24 {
		return plural(hours, "hour")
	}
	return plural(hours/24, "day")
}

func plural(n int, unit string) string {
	if n == 1 {
		return fmt.Sprintf("%d %s ago", n, unit)
	}
	return fmt.Sprintf("%d %ss ago", n, unit)
}
