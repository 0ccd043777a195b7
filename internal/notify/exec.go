package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/shlex"

	"github.com/wesm/coursesync/internal/course"
)

// ExecHook runs an external executor command for every
// OfflineSyncTriggered event. The entries are written to the
// command's stdin as JSON. An OfflineSyncCancelled event, or a
// new trigger, kills the running command.
type ExecHook struct {
	argv []string

	// runMu serializes Start and Stop so a run is never
	// replaced without being stopped.
	runMu  sync.Mutex
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// live counts runs whose goroutine has not returned.
	live atomic.Int32
}

// NewExecHook parses command with shell quoting rules.
func NewExecHook(command string) (*ExecHook, error) {
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, fmt.Errorf("parsing executor command: %w", err)
	}
	if len(argv) == 0 {
		return nil, errors.New("executor command is empty")
	}
	return &ExecHook{argv: argv}, nil
}

// Attach subscribes the hook to bus and returns a function
// that unsubscribes it and stops any running command.
func (h *ExecHook) Attach(bus *Bus) func() {
	stopTrigger := bus.Observe(OfflineSyncTriggered, func(ev Event) {
		h.Start(ev.Entries)
	})
	stopCancel := bus.Observe(OfflineSyncCancelled, func(Event) {
		h.Stop()
	})
	return func() {
		stopTrigger()
		stopCancel()
		h.Stop()
	}
}

// Start launches the executor for entries, replacing any run
// still in progress.
func (h *ExecHook) Start(entries []course.Entry) {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	h.stop()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	h.mu.Lock()
	h.cancel = cancel
	h.done = done
	h.mu.Unlock()

	h.live.Add(1)
	go func() {
		defer close(done)
		defer h.live.Add(-1)
		defer cancel()
		if err := h.run(ctx, entries); err != nil {
			slog.Warn("executor failed",
				"command", h.argv[0], "err", err)
		}
	}()
}

// Stop kills the running command, if any, and waits for it to
// exit.
func (h *ExecHook) Stop() {
	h.runMu.Lock()
	defer h.runMu.Unlock()
	h.stop()
}

func (h *ExecHook) stop() {
	h.mu.Lock()
	cancel, done := h.cancel, h.done
	h.cancel, h.done = nil, nil
	h.mu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Wait blocks until the current run, if any, exits.
func (h *ExecHook) Wait() {
	h.mu.Lock()
	done := h.done
	h.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (h *ExecHook) run(ctx context.Context, entries []course.Entry) error {
	if entries == nil {
		entries = []course.Entry{}
	}
	payload, err := json.Marshal(entries)
	if err != nil {
		return fmt.Errorf("encoding entries: %w", err)
	}

	cmd := exec.CommandContext(ctx, h.argv[0], h.argv[1:]...)
	cmd.Stdin = bytes.NewReader(payload)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	cmd.WaitDelay = time.Second

	slog.Info("executor started",
		"command", h.argv[0], "entries", len(entries))
	err = cmd.Run()
	if ctx.Err() != nil {
		slog.Info("executor cancelled", "command", h.argv[0])
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: %s", err, strings.TrimSpace(out.String()))
	}
	slog.Info("executor finished", "command", h.argv[0])
	return nil
}
