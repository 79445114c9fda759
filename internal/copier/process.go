package copier

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// Process is a running copier.
type Process interface {
	// Done is closed once the process has exited.
	Done() <-chan struct{}
	Kill() error
	// Wait returns the exit error once Done is closed.
	Wait() error
}

type Launcher interface {
	Launch(ctx context.Context, req Request) (Process, error)
}

// ExecLauncher starts the copier binary with the request's positional
// arguments after Args. Output goes to LogFile, or is discarded when
// LogFile is empty.
type ExecLauncher struct {
	Binary  string
	Args    []string
	Dir     string
	LogFile string
}

func (l *ExecLauncher) Launch(ctx context.Context, req Request) (Process, error) {
	args := append([]string{}, l.Args...)
	args = append(args, req.Source, req.Destination, req.DestPath, req.Port)

	// the supervisor owns the lifetime, so no CommandContext here
	cmd := exec.Command(l.Binary, args...)
	cmd.Dir = l.Dir

	var logf *os.File
	if l.LogFile != "" {
		var err error
		logf, err = os.OpenFile(l.LogFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0644)
		if err != nil {
			return nil, fmt.Errorf("opening copier log: %w", err)
		}
		cmd.Stdout = logf
		cmd.Stderr = logf
	}

	if err := cmd.Start(); err != nil {
		if logf != nil {
			logf.Close()
		}
		return nil, fmt.Errorf("starting %s: %w", l.Binary, err)
	}

	p := &execProcess{
		cmd:  cmd,
		done: make(chan struct{}),
	}
	go func() {
		err := cmd.Wait()
		if logf != nil {
			logf.Close()
		}
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		close(p.done)
	}()

	return p, nil
}

type execProcess struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu  sync.Mutex
	err error
}

func (p *execProcess) Done() <-chan struct{} {
	return p.done
}

func (p *execProcess) Kill() error {
	select {
	case <-p.done:
		return nil
	default:
	}
	err := p.cmd.Process.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func (p *execProcess) Wait() error {
	<-p.done
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
