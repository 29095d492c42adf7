// Package recorder captures request traffic for later replay.
package recorder

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/google/uuid"

	"github.com/SmitUplenchwar2687/throttle/internal/clock"
)

// Recorder captures traffic records. Safe for concurrent use.
type Recorder struct {
	mu      sync.Mutex
	records []TrafficRecord
	stream  *json.Encoder
	clock   clock.Clock
}

// Option configures a Recorder.
type Option func(*Recorder)

// WithClock sets the clock used to timestamp records that arrive without one.
func WithClock(c clock.Clock) Option {
	return func(r *Recorder) {
		if c != nil {
			r.clock = c
		}
	}
}

// New creates a Recorder. If w is non-nil, each record is also written to w
// as one line of JSON as it arrives.
func New(w io.Writer, opts ...Option) *Recorder {
	r := &Recorder{clock: clock.NewRealClock()}
	if w != nil {
		r.stream = json.NewEncoder(w)
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Record stores rec, assigning an ID and timestamp if they are missing, and
// returns the stored record.
func (r *Recorder) Record(rec TrafficRecord) (TrafficRecord, error) {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.Timestamp.IsZero() {
		rec.Timestamp = r.clock.Now()
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.records = append(r.records, rec)
	if r.stream != nil {
		if err := r.stream.Encode(rec); err != nil {
			return rec, fmt.Errorf("stream record: %w", err)
		}
	}
	return rec, nil
}

// Records returns a copy of all recorded traffic.
func (r *Recorder) Records() []TrafficRecord {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]TrafficRecord, len(r.records))
	copy(out, r.records)
	return out
}

func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.records)
}

// ExportJSON writes all records to w as an indented JSON array.
func (r *Recorder) ExportJSON(w io.Writer) error {
	return WriteJSON(w, r.Records())
}

// ExportFile writes all records to path as a JSON array.
func (r *Recorder) ExportFile(path string) error {
	return WriteFile(path, r.Records())
}

// WriteJSON writes records to w as an indented JSON array.
func WriteJSON(w io.Writer, records []TrafficRecord) error {
	if records == nil {
		records = []TrafficRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(records)
}

// WriteFile writes records to path as a JSON array.
func WriteFile(path string, records []TrafficRecord) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteJSON(f, records); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// LoadJSON reads records written either as a JSON array or as one JSON
// object per line.
func LoadJSON(r io.Reader) ([]TrafficRecord, error) {
	br := bufio.NewReader(r)
	first, err := peekNonSpace(br)
	if err == io.EOF {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	dec := json.NewDecoder(br)
	if first == '[' {
		var records []TrafficRecord
		if err := dec.Decode(&records); err != nil {
			return nil, fmt.Errorf("decode records: %w", err)
		}
		return records, nil
	}

	var records []TrafficRecord
	for {
		var rec TrafficRecord
		err := dec.Decode(&rec)
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("decode record %d: %w", len(records)+1, err)
		}
		records = append(records, rec)
	}
}

// LoadFile reads records from path.
func LoadFile(path string) ([]TrafficRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return LoadJSON(f)
}

func peekNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.ReadByte()
		if err != nil {
			return 0, err
		}
		switch b {
		case ' ', '\t', '\r', '\n':
		default:
			return b, br.UnreadByte()
		}
	}
}
