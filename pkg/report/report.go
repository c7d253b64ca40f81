// Package report defines the sink that taskflow components hand failures to.
//
// Library code never prints. Per-job failures go to JobFailed; structural
// faults that the component cannot recover from go to Fault, in addition to
// being returned to the component's owner.
package report

import (
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Sink receives failures from pools, consumers and governors.
// Implementations must be safe for concurrent use.
type Sink interface {
	// JobFailed is called once for every job that ends Failed, Cancelled
	// or timed out while a consumer awaited it.
	JobFailed(id uuid.UUID, err error)

	// Fault is called for structural errors.
	Fault(err error)
}

// Nop returns a Sink that discards everything.
func Nop() Sink {
	return nopSink{}
}

type nopSink struct{}

func (nopSink) JobFailed(uuid.UUID, error) {}
func (nopSink) Fault(error)                {}

// zapSink logs failures with a structured zap logger.
type zapSink struct {
	log *zap.Logger
}

// NewZap returns a Sink that logs job failures at warn level and faults at
// error level. A nil logger falls back to the global zap logger.
func NewZap(log *zap.Logger) Sink {
	if log == nil {
		log = zap.L()
	}
	return &zapSink{log: log.Named("taskflow")}
}

func (s *zapSink) JobFailed(id uuid.UUID, err error) {
	s.log.Warn("job failed", zap.Stringer("job_id", id), zap.Error(err))
}

func (s *zapSink) Fault(err error) {
	s.log.Error("structural fault", zap.Error(err))
}

// OrNop returns s, or a no-op sink when s is nil.
func OrNop(s Sink) Sink {
	if s == nil {
		return Nop()
	}
	return s
}
