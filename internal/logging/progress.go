package logging

import (
	"sync"

	humanize "github.com/dustin/go-humanize"
	"go.uber.org/zap"
)

// Progress receives the observations the engine makes while it works:
// tasks being started, advanced and completed, plus warnings. Rendering
// is up to the sink.
type Progress interface {
	Start(name string, total int64) *Task
	Warn(msg string, fields ...zap.Field)
}

// Task is one tracked unit of work. A zero total means unknown.
type Task struct {
	mu        sync.Mutex
	name      string
	total     int64
	completed int64
	done      bool
	logger    *zap.Logger
}

// Advance adds n to the completed amount.
func (t *Task) Advance(n int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.completed += n
	completed, total := t.completed, t.total
	t.mu.Unlock()

	t.logger.Debug("advance",
		zap.String("task", t.name),
		zap.Int64("completed", completed),
		zap.Int64("total", total),
	)
}

// Set overwrites the completed and total amounts.
func (t *Task) Set(completed, total int64) {
	if t == nil {
		return
	}
	t.mu.Lock()
	t.completed = completed
	t.total = total
	t.mu.Unlock()

	t.logger.Debug("update",
		zap.String("task", t.name),
		zap.Int64("completed", completed),
		zap.Int64("total", total),
	)
}

// Complete marks the task finished. Calling it twice is harmless.
func (t *Task) Complete() {
	if t == nil {
		return
	}
	t.mu.Lock()
	if t.done {
		t.mu.Unlock()
		return
	}
	t.done = true
	completed := t.completed
	t.mu.Unlock()

	t.logger.Info("task complete",
		zap.String("task", t.name),
		zap.Int64("completed", completed),
		zap.String("size", humanize.Comma(completed)),
	)
}

func (t *Task) Completed() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.completed
}

func (t *Task) Total() int64 {
	if t == nil {
		return 0
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.total
}

func (t *Task) Done() bool {
	if t == nil {
		return false
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.done
}

type zapProgress struct {
	logger *zap.Logger
}

// NewProgress returns a Progress that reports through logger. A nil
// logger means the global one.
func NewProgress(logger *zap.Logger) Progress {
	if logger == nil {
		logger = L()
	}
	return &zapProgress{logger: logger}
}

// Discard returns a Progress that drops everything.
func Discard() Progress {
	return &zapProgress{logger: zap.NewNop()}
}

func (p *zapProgress) Start(name string, total int64) *Task {
	p.logger.Info("task started", zap.String("task", name), zap.Int64("total", total))
	return &Task{
		name:   name,
		total:  total,
		logger: p.logger,
	}
}

func (p *zapProgress) Warn(msg string, fields ...zap.Field) {
	p.logger.Warn(msg, fields...)
}
