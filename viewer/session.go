package viewer

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/hupe1980/arraywin/cancel"
	"github.com/hupe1980/arraywin/dataset"
	"github.com/hupe1980/arraywin/window"
)

// Sink receives the output of a Session.
type Sink interface {
	// OnFrame is called for every partial and final frame, in order.
	OnFrame(ctx context.Context, f Frame)
	// OnZoomInRequired is called instead of loading when w is too wide.
	OnZoomInRequired(ctx context.Context, w Window)
	// OnError is called when a load fails. Cancellation is not reported.
	OnError(ctx context.Context, err error)
}

// SinkFuncs adapts plain functions to Sink. Nil fields are ignored.
type SinkFuncs struct {
	Frame          func(ctx context.Context, f Frame)
	ZoomInRequired func(ctx context.Context, w Window)
	Error          func(ctx context.Context, err error)
}

func (s SinkFuncs) OnFrame(ctx context.Context, f Frame) {
	if s.Frame != nil {
		s.Frame(ctx, f)
	}
}

func (s SinkFuncs) OnZoomInRequired(ctx context.Context, w Window) {
	if s.ZoomInRequired != nil {
		s.ZoomInRequired(ctx, w)
	}
}

func (s SinkFuncs) OnError(ctx context.Context, err error) {
	if s.Error != nil {
		s.Error(ctx, err)
	}
}

// Retainer is implemented by caches that can pin the active window.
type Retainer interface {
	Retain(w dataset.Range)
}

// Session serializes window loads for one view. Starting a request cancels
// the token of the one before it, so at most one attempt is in flight.
type Session struct {
	assembler *window.Assembler
	plan      Plan
	sink      Sink
	logger    *slog.Logger

	mu     sync.Mutex
	gen    uint64
	active *cancel.Token
}

// SessionOption configures a Session.
type SessionOption func(*Session)

// WithSessionLogger sets the session logger.
func WithSessionLogger(l *slog.Logger) SessionOption {
	return func(s *Session) {
		if l != nil {
			s.logger = l
		}
	}
}

// NewSession creates a session delivering frames to sink.
func NewSession(a *window.Assembler, plan Plan, sink Sink, optFns ...SessionOption) *Session {
	if sink == nil {
		sink = SinkFuncs{}
	}
	s := &Session{
		assembler: a,
		plan:      plan,
		sink:      sink,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, fn := range optFns {
		fn(s)
	}
	return s
}

// Plan returns the session's plan.
func (s *Session) Plan() Plan {
	return s.plan
}

// RequestWindow loads [startSec, endSec] progressively. It supersedes any
// request still running, then calls the assembler with a fresh token until
// the window completes.
//
// It returns nil on completion or when zoom-in is required, an error
// matching window.ErrCancelled when superseded or cancelled, and the load
// error otherwise (which is also passed to Sink.OnError).
func (s *Session) RequestWindow(ctx context.Context, startSec, endSec float64) error {
	if s.assembler == nil || s.assembler.Loader() == nil {
		return window.ErrNotInitialized
	}

	gen := s.supersede()
	w := s.plan.Window(startSec, endSec)

	if w.ZoomInRequired {
		s.logger.DebugContext(ctx, "zoom in required",
			slog.Float64("start_sec", startSec),
			slog.Float64("end_sec", endSec),
			slog.Float64("max_visible_sec", s.plan.MaxVisibleDuration),
		)
		if s.current(gen) {
			s.sink.OnZoomInRequired(ctx, w)
		}
		return nil
	}

	if r, ok := s.assembler.Loader().Cache().(Retainer); ok {
		r.Retain(w.Range())
	}

	for attempt := 1; ; attempt++ {
		tok := cancel.New()
		if !s.activate(gen, tok) {
			return window.ErrCancelled
		}

		res, err := s.assembler.GetConcatenatedChunk(ctx, w.Start, w.End, tok)
		current := s.deactivate(gen, tok)
		if err != nil {
			if errors.Is(err, window.ErrCancelled) {
				s.logger.DebugContext(ctx, "window request cancelled", slog.Int("start", w.Start), slog.Int("end", w.End))
				return err
			}
			s.logger.ErrorContext(ctx, "window request failed",
				slog.Int("start", w.Start),
				slog.Int("end", w.End),
				slog.String("error", err.Error()),
			)
			if current {
				s.sink.OnError(ctx, err)
			}
			return err
		}
		if !current {
			return window.ErrCancelled
		}

		s.sink.OnFrame(ctx, Frame{Window: w, Result: res, Plan: s.plan})
		if res.Completed {
			s.logger.DebugContext(ctx, "window complete",
				slog.Int("start", w.Start),
				slog.Int("end", w.End),
				slog.Int("attempts", attempt),
			)
			return nil
		}
	}
}

// Cancel aborts the active request, if any.
func (s *Session) Cancel() {
	s.supersede()
}

// supersede starts a new generation and cancels the active token.
func (s *Session) supersede() uint64 {
	s.mu.Lock()
	s.gen++
	gen := s.gen
	tok := s.active
	s.active = nil
	s.mu.Unlock()

	if tok != nil {
		tok.Cancel()
	}
	return gen
}

func (s *Session) current(gen uint64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen
}

func (s *Session) activate(gen uint64, tok *cancel.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	s.active = tok
	return true
}

func (s *Session) deactivate(gen uint64, tok *cancel.Token) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active == tok {
		s.active = nil
	}
	return s.gen == gen
}
