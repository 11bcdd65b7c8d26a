package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Sink receives records. Implementations must be safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, record Record) error
}

// JSONLinesSink writes one JSON object per line.
type JSONLinesSink struct {
	mu  sync.Mutex
	enc *json.Encoder
}

// NewJSONLinesSink returns a sink writing to w.
func NewJSONLinesSink(w io.Writer) *JSONLinesSink {
	return &JSONLinesSink{enc: json.NewEncoder(w)}
}

// Write implements Sink.
func (s *JSONLinesSink) Write(_ context.Context, record Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.enc.Encode(record); err != nil {
		return fmt.Errorf("write record %s: %w", record.Key, err)
	}
	return nil
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(ctx context.Context, record Record) error

// Write implements Sink.
func (f SinkFunc) Write(ctx context.Context, record Record) error { return f(ctx, record) }
