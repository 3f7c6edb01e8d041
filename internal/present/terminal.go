package present

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/MeKo-Tech/qrlens/internal/scan"
)

// TerminalOptions configures a Terminal presenter.
type TerminalOptions struct {
	Format   string
	AutoCopy bool
	AutoOpen bool
	// Input receives result commands, one per line: empty line or "n" scans
	// again, "c" copies, "o" opens, "s" shares. Nil disables interaction.
	Input io.Reader
	// DismissAfter resumes scanning automatically after this delay when
	// there is no Input. Zero keeps the result shown until ctx ends.
	DismissAfter time.Duration
	Logger       *slog.Logger
}

// Terminal prints detections and runs the result actions.
type Terminal struct {
	out     io.Writer
	actions *Actions
	opts    TerminalOptions
	logger  *slog.Logger

	mu    sync.Mutex
	lines <-chan string
}

// NewTerminal creates a terminal presenter writing to out.
func NewTerminal(out io.Writer, actions *Actions, opts TerminalOptions) *Terminal {
	if opts.Format == "" {
		opts.Format = FormatText
	}
	if actions == nil {
		actions = NewActions("", "")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Terminal{out: out, actions: actions, opts: opts, logger: logger}
}

// Present shows d and waits for the user (or the dismiss timer) before
// calling dismiss.
func (t *Terminal) Present(ctx context.Context, d scan.Detection, dismiss func()) {
	r := NewResult(d)

	if path, err := t.actions.Snapshot(d.Seq, d.Image); err != nil {
		t.logger.Warn("Snapshot failed", "error", err)
	} else {
		r.Snapshot = path
	}
	if t.opts.AutoCopy {
		t.runCopy(r)
	}
	if t.opts.AutoOpen && r.URL != "" {
		t.runOpen(r)
	}

	t.mu.Lock()
	err := Write(t.out, t.opts.Format, r)
	t.mu.Unlock()
	if err != nil {
		t.logger.Error("Failed to write result", "error", err)
	}

	switch {
	case t.opts.Input != nil:
		t.interact(ctx, r, d, dismiss)
	case t.opts.DismissAfter > 0:
		timer := time.NewTimer(t.opts.DismissAfter)
		defer timer.Stop()
		select {
		case <-ctx.Done():
		case <-timer.C:
			dismiss()
		}
	}
}

func (t *Terminal) interact(ctx context.Context, r Result, d scan.Detection, dismiss func()) {
	lines := t.inputLines()
	t.prompt(r)
	for {
		select {
		case <-ctx.Done():
			return
		case line, ok := <-lines:
			if !ok {
				return
			}
			switch strings.ToLower(strings.TrimSpace(line)) {
			case "", "n", "next":
				dismiss()
				return
			case "c", "copy":
				t.runCopy(r)
			case "o", "open":
				t.runOpen(r)
			case "s", "share":
				if path, err := t.actions.Share(r, d.Image); err != nil {
					t.note("share failed: %v", err)
				} else {
					t.note("shared to %s", path)
				}
			default:
				t.prompt(r)
			}
		}
	}
}

// inputLines starts a single reader goroutine for the lifetime of the
// presenter so consecutive detections share one stdin reader.
func (t *Terminal) inputLines() <-chan string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.lines != nil {
		return t.lines
	}
	ch := make(chan string)
	go func() {
		defer close(ch)
		sc := bufio.NewScanner(t.opts.Input)
		for sc.Scan() {
			ch <- sc.Text()
		}
	}()
	t.lines = ch
	return ch
}

func (t *Terminal) prompt(r Result) {
	actions := "[enter] scan again  [c] copy  [s] share"
	if r.URL != "" {
		actions += "  [o] open"
	}
	t.note("%s", actions)
}

func (t *Terminal) note(format string, args ...any) {
	if t.opts.Format != FormatText {
		// Keep machine-readable output clean.
		t.logger.Info(fmt.Sprintf(format, args...))
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	fmt.Fprintf(t.out, format+"\n", args...)
}

func (t *Terminal) runCopy(r Result) {
	if err := t.actions.Copy(r.Payload); err != nil {
		t.note("copy failed: %v", err)
		return
	}
	t.note("copied to clipboard")
}

func (t *Terminal) runOpen(r Result) {
	u, err := t.actions.Open(r.Payload)
	if err != nil {
		t.note("open failed: %v", err)
		return
	}
	t.note("opened %s", u)
}
