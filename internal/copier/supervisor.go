package copier

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/studio1767/s3shift/internal/logging"
	"github.com/studio1767/s3shift/internal/metrics"
)

const (
	DefaultWarmup         = 10 * time.Second
	DefaultInterval       = time.Second
	DefaultStallThreshold = 300
	DefaultTimeout        = 15 * time.Minute
)

// Request describes one copy job.
type Request struct {
	Source      string
	Destination string
	DestPath    string
	Port        string
	// SizeHint is the expected byte count, used as the progress total.
	SizeHint int64
	// Timeout bounds how long the stats endpoint may stay unreachable.
	Timeout time.Duration
}

// Supervisor runs an external copier and watches its progress through
// the copier's stats endpoint, killing it when it stalls or goes silent.
type Supervisor struct {
	Launcher       Launcher
	Stats          StatsClient
	Progress       logging.Progress
	Warmup         time.Duration
	Interval       time.Duration
	StallThreshold int
}

// Config is the copy section of a job.
type Config struct {
	Binary         string
	Args           []string
	LogFile        string
	Warmup         time.Duration
	Interval       time.Duration
	StallThreshold int
}

// New returns a supervisor that launches cfg.Binary and reads its stats
// over HTTP. Zero durations and thresholds take the defaults.
func New(cfg Config, progress logging.Progress) *Supervisor {
	s := &Supervisor{
		Launcher: &ExecLauncher{
			Binary:  cfg.Binary,
			Args:    cfg.Args,
			LogFile: cfg.LogFile,
		},
		Stats:          NewStatsClient(nil),
		Progress:       progress,
		Warmup:         cfg.Warmup,
		Interval:       cfg.Interval,
		StallThreshold: cfg.StallThreshold,
	}
	if s.Warmup == 0 {
		s.Warmup = DefaultWarmup
	}
	if s.Interval == 0 {
		s.Interval = DefaultInterval
	}
	if s.StallThreshold == 0 {
		s.StallThreshold = DefaultStallThreshold
	}
	return s
}

// Copy launches the copier for req and supervises it until it exits, is
// killed or ctx is cancelled. It returns the last byte count the copier
// reported.
func (s *Supervisor) Copy(ctx context.Context, req Request) (int64, error) {
	if _, err := strconv.ParseUint(req.Port, 10, 16); err != nil {
		return 0, &ErrInvalidArgument{fmt.Sprintf("port must be numeric: %q", req.Port)}
	}
	if req.Timeout == 0 {
		req.Timeout = DefaultTimeout
	}

	progress := s.Progress
	if progress == nil {
		progress = logging.Discard()
	}
	log := logging.Named("copier")

	proc, err := s.Launcher.Launch(ctx, req)
	if err != nil {
		metrics.RecordCopyRun("failed")
		return 0, fmt.Errorf("launching copier: %w", err)
	}
	log.Info("copier started",
		zap.String("source", req.Source),
		zap.String("destination", req.Destination),
		zap.String("path", req.DestPath),
		zap.String("port", req.Port),
	)

	task := progress.Start("copying", req.SizeHint)
	defer task.Complete()

	start := time.Now()
	policy := Policy{Timeout: req.Timeout, StallThreshold: s.StallThreshold}

	var (
		previous int64
		observed int64
		total    int64
		stalls   int
	)

	kill := func(outcome string) {
		if err := proc.Kill(); err != nil {
			log.Warn("killing copier", zap.Error(err))
		}
		<-proc.Done()
		metrics.RecordCopyRun(outcome)
	}

	wait := time.NewTimer(s.Warmup)
	defer wait.Stop()

	for {
		select {
		case <-proc.Done():
			if err := proc.Wait(); err != nil {
				log.Warn("copier exited with error", zap.Error(err))
			}
			log.Info("copier finished", zap.Int64("bytes", observed))
			metrics.RecordCopyRun("completed")
			return observed, nil
		case <-ctx.Done():
			kill("cancelled")
			return observed, ctx.Err()
		case <-wait.C:
		}
		wait.Reset(s.Interval)

		// the copier may have exited while we slept
		select {
		case <-proc.Done():
			continue
		default:
		}

		stats, err := s.Stats.Stats(ctx, req.Port)
		obs := Observation{
			Elapsed:     time.Since(start),
			Previous:    previous,
			Stalls:      stalls,
			QueryFailed: err != nil,
		}
		if err == nil {
			obs.Current = stats.Bytes
		}
		metrics.RecordCopyPoll(obs.Current, err == nil)

		var verdict Verdict
		verdict, stalls = policy.Decide(obs)

		switch verdict {
		case Retry:
			log.Debug("copier stats unavailable", zap.Error(err))
		case TimedOut:
			log.Error("copier unreachable, killing", zap.Duration("timeout", req.Timeout), zap.Error(err))
			kill("timed_out")
			return observed, &ErrTimedOut{timeout: req.Timeout, bytes: observed}
		case Stalled:
			observed = obs.Current
			log.Error("copier stalled, killing", zap.Int("polls", stalls), zap.Int64("bytes", observed))
			kill("stalled")
			return observed, &ErrStalled{polls: stalls, bytes: observed}
		case Continue:
			total += Progressed(previous, obs.Current)
			previous = obs.Current
			observed = obs.Current
			task.Set(total, req.SizeHint)
		}
	}
}
