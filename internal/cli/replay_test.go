package cli

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
	"github.com/SmitUplenchwar2687/throttle/internal/replay"
)

// writeReplayFixture writes six requests for user1 one second apart and
// two for user2.
func writeReplayFixture(t *testing.T) string {
	t.Helper()

	var records []recorder.TrafficRecord
	for i := 0; i < 6; i++ {
		records = append(records, recorder.TrafficRecord{
			Timestamp: epoch.Add(time.Duration(i) * time.Second),
			Key:       "user1",
			Endpoint:  "GET /api/data",
		})
	}
	records = append(records,
		recorder.TrafficRecord{Timestamp: epoch, Key: "user2", Endpoint: "POST /api/events"},
		recorder.TrafficRecord{Timestamp: epoch.Add(time.Second), Key: "user2", Endpoint: "POST /api/events"},
	)

	path := filepath.Join(t.TempDir(), "traffic.json")
	if err := recorder.WriteFile(path, records); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	return path
}

type replayOutput struct {
	Events  []recorder.DecisionEvent `json:"events"`
	Summary replay.Summary           `json:"summary"`
}

func runReplay(t *testing.T, args ...string) replayOutput {
	t.Helper()
	out, err := execute(t, append([]string{"replay", "--json"}, args...)...)
	if err != nil {
		t.Fatalf("replay command failed: %v", err)
	}
	var got replayOutput
	if err := json.Unmarshal([]byte(out), &got); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, out)
	}
	return got
}

func TestNewReplayCmd_AppliesLimit(t *testing.T) {
	path := writeReplayFixture(t)

	got := runReplay(t, "--file", path, "--algorithm", "fixed_window", "--max-requests", "3", "--window", "1m")

	if got.Summary.TotalRecords != 8 || got.Summary.Replayed != 8 {
		t.Fatalf("summary = %+v, want 8 records replayed", got.Summary)
	}
	if ks := got.Summary.PerKey["user1"]; ks.Allowed != 3 || ks.Denied != 3 {
		t.Errorf("user1 = %+v, want 3 allowed and 3 denied", ks)
	}
	if ks := got.Summary.PerKey["user2"]; ks.Allowed != 2 || ks.Denied != 0 {
		t.Errorf("user2 = %+v, want 2 allowed", ks)
	}
	if len(got.Events) != 8 {
		t.Fatalf("events = %d, want 8", len(got.Events))
	}
	for i := 1; i < len(got.Events); i++ {
		if got.Events[i].Time.Before(got.Events[i-1].Time) {
			t.Fatalf("event %d is earlier than its predecessor", i)
		}
	}
}

func TestNewReplayCmd_Filters(t *testing.T) {
	path := writeReplayFixture(t)

	tests := []struct {
		name string
		args []string
		want int
	}{
		{"keys", []string{"--keys", "user2"}, 2},
		{"endpoint method", []string{"--endpoints", "post"}, 2},
		{"endpoint prefix", []string{"--endpoints", "/api/data"}, 6},
		{"since", []string{"--since", "2024-01-01T00:00:03Z"}, 3},
		{"until", []string{"--until", "2024-01-01T00:00:01Z"}, 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runReplay(t, append([]string{"--file", path}, tt.args...)...)
			if got.Summary.Filtered != tt.want {
				t.Errorf("filtered = %d, want %d", got.Summary.Filtered, tt.want)
			}
			if got.Summary.TotalRecords != 8 {
				t.Errorf("total = %d, want 8", got.Summary.TotalRecords)
			}
		})
	}
}

func TestNewReplayCmd_LoadsConfigFile(t *testing.T) {
	trafficPath := writeReplayFixture(t)
	configPath := filepath.Join(t.TempDir(), "throttle.yaml")
	config := `limiter:
  algorithm: sliding_window
  max_requests: 1
  window: 1m
`
	if err := os.WriteFile(configPath, []byte(config), 0o644); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}

	got := runReplay(t, "--file", trafficPath, "--config", configPath)
	if got.Summary.Allowed != 2 || got.Summary.Denied != 6 {
		t.Errorf("summary = %+v, want 2 allowed and 6 denied", got.Summary)
	}
}

func TestNewReplayCmd_TextOutput(t *testing.T) {
	path := writeReplayFixture(t)

	out, err := execute(t, "replay", "--file", path, "--algorithm", "fixed_window", "--max-requests", "3")
	if err != nil {
		t.Fatalf("replay command failed: %v", err)
	}
	for _, want := range []string{"--- Replay Summary ---", "Per key:", "user1: 3 allowed, 3 denied", "Deny rate: 37.5%"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestNewReplayCmd_Errors(t *testing.T) {
	path := writeReplayFixture(t)

	tests := map[string][]string{
		"missing file flag": {"replay"},
		"unreadable file":   {"replay", "--file", filepath.Join(t.TempDir(), "nope.json")},
		"bad since":         {"replay", "--file", path, "--since", "yesterday"},
		"bad algorithm":     {"replay", "--file", path, "--algorithm", "leaky"},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if _, err := execute(t, args...); err == nil {
				t.Fatalf("expected error for %v", args)
			}
		})
	}
}

func TestEarliest(t *testing.T) {
	records := []recorder.TrafficRecord{
		{Timestamp: epoch.Add(time.Minute)},
		{Timestamp: epoch},
		{Timestamp: epoch.Add(time.Second)},
	}
	if got := earliest(records); !got.Equal(epoch) {
		t.Errorf("earliest = %v, want %v", got, epoch)
	}
	if got := earliest(nil); !got.Equal(time.Unix(0, 0)) {
		t.Errorf("earliest(nil) = %v, want the Unix epoch", got)
	}
}
