package logging_test

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/studio1767/s3shift/internal/logging"
)

func TestTaskTracksProgress(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	progress := logging.NewProgress(zap.New(core))

	task := progress.Start("moving", 100)
	task.Advance(30)
	task.Advance(20)
	require.Equal(t, int64(50), task.Completed())
	require.Equal(t, int64(100), task.Total())

	task.Set(10, 10)
	require.Equal(t, int64(10), task.Completed())

	task.Complete()
	task.Complete()
	require.True(t, task.Done())
	require.Equal(t, 1, logs.FilterMessage("task complete").Len())
	require.Equal(t, 1, logs.FilterMessage("task started").Len())
}

func TestWarnGoesToLogger(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	progress := logging.NewProgress(zap.New(core))

	progress.Warn("stats unavailable", zap.Int("attempt", 3))

	entries := logs.FilterMessage("stats unavailable").All()
	require.Len(t, entries, 1)
	require.Equal(t, zapcore.WarnLevel, entries[0].Level)
	require.Equal(t, int64(3), entries[0].ContextMap()["attempt"])
}

func TestNilTaskIsSafe(t *testing.T) {
	var task *logging.Task
	task.Advance(1)
	task.Set(1, 2)
	task.Complete()
	require.Zero(t, task.Completed())
	require.False(t, task.Done())
}

func TestHelpersReportTheirCaller(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logging.Set(zap.New(core, zap.AddCaller()))
	defer logging.Set(zap.NewNop())

	logging.Info("from the test")
	logging.Named("child").Info("from a named logger")

	entries := logs.All()
	require.Len(t, entries, 2)
	for _, entry := range entries {
		require.True(t, entry.Caller.Defined)
		require.Equal(t, "progress_test.go", filepath.Base(entry.Caller.File))
	}
}
