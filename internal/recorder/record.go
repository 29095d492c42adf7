package recorder

import (
	"time"

	"github.com/SmitUplenchwar2687/throttle/internal/limiter"
)

// TrafficRecord is one captured request.
type TrafficRecord struct {
	ID        string            `json:"id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Key       string            `json:"key"`      // client address, user id, api key
	Endpoint  string            `json:"endpoint"` // "GET /api/data"
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// DecisionEvent pairs a record with the decision it produced.
type DecisionEvent struct {
	Record   TrafficRecord    `json:"record"`
	Decision limiter.Decision `json:"decision"`
	Time     time.Time        `json:"time"`
}
