package replay

import (
	"slices"
	"strings"
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/recorder"
)

// Filter selects records for replay. Zero fields match everything.
type Filter struct {
	Keys []string
	// Endpoints match a record when one pattern equals its endpoint, names
	// its method ("GET"), or is a prefix of its path ("/api").
	Endpoints []string
	Since     time.Time // inclusive
	Until     time.Time // exclusive
}

// Match reports whether r passes every set criterion.
func (f Filter) Match(r recorder.TrafficRecord) bool {
	if len(f.Keys) > 0 && !slices.Contains(f.Keys, r.Key) {
		return false
	}
	if len(f.Endpoints) > 0 && !matchEndpoint(f.Endpoints, r.Endpoint) {
		return false
	}
	if !f.Since.IsZero() && r.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && !r.Timestamp.Before(f.Until) {
		return false
	}
	return true
}

func matchEndpoint(patterns []string, endpoint string) bool {
	method, path, ok := strings.Cut(endpoint, " ")
	if !ok {
		method, path = "", endpoint
	}
	for _, p := range patterns {
		switch {
		case p == endpoint:
			return true
		case strings.HasPrefix(p, "/") && strings.HasPrefix(path, p):
			return true
		case method != "" && strings.EqualFold(p, method):
			return true
		}
	}
	return false
}
