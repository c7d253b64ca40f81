package report

import (
	"errors"
	"testing"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/vnykmshr/taskflow/internal/testutil"
)

func TestZapSink(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	sink := NewZap(zap.New(core))

	id := uuid.New()
	sink.JobFailed(id, errors.New("boom"))
	sink.Fault(errors.New("intake corrupted"))

	entries := logs.All()
	testutil.AssertEqual(t, len(entries), 2)

	testutil.AssertEqual(t, entries[0].Level, zapcore.WarnLevel)
	testutil.AssertEqual(t, entries[0].Message, "job failed")
	testutil.AssertEqual(t, entries[0].LoggerName, "taskflow")
	testutil.AssertEqual(t, entries[0].ContextMap()["job_id"].(string), id.String())

	testutil.AssertEqual(t, entries[1].Level, zapcore.ErrorLevel)
	testutil.AssertEqual(t, entries[1].ContextMap()["error"].(string), "intake corrupted")
}

func TestOrNop(t *testing.T) {
	s := OrNop(nil)
	s.JobFailed(uuid.Nil, errors.New("ignored"))
	s.Fault(errors.New("ignored"))

	custom := NewZap(zap.NewNop())
	testutil.AssertEqual(t, OrNop(custom), custom)
}
