package widget

import (
	"encoding/json"
	"testing"
	"time"
)

func TestTimestamp_UnmarshalJSON(t *testing.T) {
	want := time.Date(2024, 1, 1, 0, 0, 0, 500_000_000, time.UTC)
	tests := []struct {
		name    string
		in      string
		want    time.Time
		wantErr bool
	}{
		{name: "Native", in: `{"seconds": 1704067200, "nanoseconds": 500000000}`, want: want},
		{name: "NativeUnderscored", in: `{"_seconds": 1704067200, "_nanoseconds": 500000000}`, want: want},
		{name: "EpochMillis", in: `1704067200500`, want: want},
		{name: "EpochMillisString", in: `"1704067200500"`, want: want},
		{name: "RFC3339", in: `"2024-01-01T01:00:00.5+01:00"`, want: want},
		{name: "Null", in: `null`, want: time.Time{}},
		{name: "MissingSeconds", in: `{"nanoseconds": 1}`, wantErr: true},
		{name: "Garbage", in: `"yesterday"`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var ts Timestamp
			err := json.Unmarshal([]byte(tt.in), &ts)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Got no error decoding %s", tt.in)
				}
				return
			}
			if err != nil {
				t.Fatalf("Could not decode %s: %v", tt.in, err)
			}
			if !ts.Time.Equal(tt.want) {
				t.Errorf("Got %v, want %v", ts.Time, tt.want)
			}
			if !ts.IsZero() && ts.Location() != time.UTC {
				t.Errorf("Got location %v, want UTC", ts.Location())
			}
		})
	}
}

func TestTimestamp_EncodingsAgree(t *testing.T) {
	var native, epoch Timestamp
	if err := json.Unmarshal([]byte(`{"seconds": 1704067200, "nanoseconds": 0}`), &native); err != nil {
		t.Fatal(err)
	}
	if err := json.Unmarshal([]byte(`1704067200000`), &epoch); err != nil {
		t.Fatal(err)
	}
	now := time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC)
	if a, b := TimeAgo(native.Time, now), TimeAgo(epoch.Time, now); a != b {
		t.Errorf("Got %q and %q for the same instant", a, b)
	}
}

func TestTimestamp_MarshalJSON(t *testing.T) {
	ts := Timestamp{time.Date(2024, 1, 1, 0, 0, 0, 0, time.FixedZone("X", 3600))}
	b, err := json.Marshal(ts)
	if err != nil {
		t.Fatal(err)
	}
	if got, want := string(b), `"2023-12-31T23:00:00Z"`; got != want {
		t.Errorf("Got %s, want %s", got, want)
	}
}

func TestNormalizeTime(t *testing.T) {
	in := time.Date(2024, 1, 1, 1, 0, 0, 123_456_789, time.FixedZone("X", 3600))
	got := NormalizeTime(in)
	want := time.Date(2024, 1, 1, 0, 0, 0, 123_456_000, time.UTC)
	if !got.Equal(want) || got.Nanosecond() != want.Nanosecond() {
		t.Errorf("Got %v, want %v", got, want)
	}
	if !NormalizeTime(time.Time{}).IsZero() {
		t.Error("Zero time should stay zero")
	}
}

func TestTimeAgo(t *testing.T) {
	now := time.Date(2024, 1, 10, 12, 0, 0, 0, time.UTC)
	tests := []struct {
		ago  time.Duration
		want string
	}{
		{0, "0 minutes ago"},
		{59 * time.Second, "0 minutes ago"},
		{time.Minute, "1 minute ago"},
		{59 * time.Minute, "59 minutes ago"},
		{90 * time.Minute, "1 hour ago"},
		{23*time.Hour + 59*time.Minute, "23 hours ago"},
		{25 * time.Hour, "1 day ago"},
		{72 * time.Hour, "3 days ago"},
		{-time.Hour, "0 minutes ago"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := TimeAgo(now.Add(-tt.ago), now); got != tt.want {
				t.Errorf("Got %q for %v, want %q", got, tt.ago, tt.want)
			}
		})
	}
}
