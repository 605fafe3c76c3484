package poller

import (
	"context"
	"errors"
	"fmt"
	log "log/slog"
	"sync"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/google/uuid"

	"voxm2m/internal/nlu"
	"voxm2m/internal/session"
	"voxm2m/pkg/m2m"
)

const (
	DefaultInterval         = 4 * time.Second
	DefaultRecognizeTimeout = 60 * time.Second
)

// Fetcher reads a resource from the store.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (any, error)
}

type Dispatcher interface {
	Dispatch(ctx context.Context, a nlu.Action) (nlu.Target, error)
	Send(ctx context.Context, t nlu.Target) error
}

// ArchiveSink keeps a copy of every extracted record.
type ArchiveSink interface {
	Save(ctx context.Context, source string, recs []m2m.Record) error
}

// ClipSink keeps a copy of every assembled payload.
type ClipSink interface {
	Store(ctx context.Context, source, sessionID string, clip []byte) error
}

type Opts struct {
	Name string
	Path string

	Interval         time.Duration
	Threshold        float64
	RecognizeTimeout time.Duration
	// Retries bounds how many times a failed store write is attempted in
	// total. Values below 2 disable the retry.
	Retries int

	Store      Fetcher
	Recognizer nlu.Recognizer
	Catalog    nlu.Catalog
	Dispatcher Dispatcher

	Archive    ArchiveSink
	Clips      ClipSink
	OnDispatch func(nlu.Command, nlu.Target)
}

// Poller drives one record stream. All pipeline state is owned by the
// goroutine calling Run or Cycle; only the status snapshot is shared.
type Poller struct {
	opts    Opts
	asm     *session.Assembler
	cursor  session.Cursor
	pending *nlu.Target
	tries   int
	trigger chan struct{}

	mu     sync.Mutex
	status Status
}

func New(opts Opts) (*Poller, error) {
	if opts.Store == nil || opts.Recognizer == nil || opts.Dispatcher == nil {
		return nil, errors.New("poller: store, recognizer and dispatcher are required")
	}
	if opts.Path == "" {
		return nil, errors.New("poller: empty source path")
	}
	if opts.Interval < 0 {
		return nil, fmt.Errorf("poller: negative interval %s", opts.Interval)
	}
	if opts.Threshold < 0 || opts.Threshold > 1 {
		return nil, fmt.Errorf("poller: threshold %v outside [0, 1]", opts.Threshold)
	}
	if opts.Interval == 0 {
		opts.Interval = DefaultInterval
	}
	if opts.RecognizeTimeout <= 0 {
		opts.RecognizeTimeout = DefaultRecognizeTimeout
	}
	if opts.Name == "" {
		opts.Name = opts.Path
	}

	return &Poller{
		opts:    opts,
		asm:     session.NewAssembler(),
		trigger: make(chan struct{}, 1),
		status:  Status{Source: opts.Name, State: IDLE},
	}, nil
}

func (p *Poller) Name() string { return p.opts.Name }

// Run polls until ctx is cancelled. The timer is re-armed only after a cycle
// finishes, so cycles never overlap.
func (p *Poller) Run(ctx context.Context) error {
	log.Info("Poller started", "source", p.opts.Name, "path", p.opts.Path, "interval", p.opts.Interval)

	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info("Poller stopped", "source", p.opts.Name)
			return nil
		case <-timer.C:
		case <-p.trigger:
			timer.Stop()
		}

		start := time.Now()
		p.Cycle(ctx)
		took := time.Since(start)

		wait := p.opts.Interval - took
		if wait < 0 {
			log.Warn("Cycle overran interval", "source", p.opts.Name, "took", took, "interval", p.opts.Interval)
			wait = 0
		}

		p.setState(SLEEPING)
		timer.Reset(wait)
	}
}

// Trigger requests an immediate cycle. Requests made while one is already
// queued are coalesced.
func (p *Poller) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()

	st := p.status
	if st.Pending != nil {
		t := *st.Pending
		st.Pending = &t
	}
	return st
}

// Cycle runs one fetch-to-dispatch pass. Errors are logged and reported; the
// returned error is for callers that want to observe the outcome.
func (p *Poller) Cycle(ctx context.Context) error {
	lg := log.With("source", p.opts.Name, "cycle", uuid.NewString())

	p.update(func(s *Status) {
		s.State = IDLE
		s.Cycles++
		s.LastCycleAt = time.Now()
		s.LastError = ""
	})

	p.retryPending(ctx, lg)

	p.setState(FETCHING)
	raw, err := p.opts.Store.Fetch(ctx, p.opts.Path)
	if err != nil {
		return p.fail(lg, "fetch", err)
	}

	fp := m2m.Fingerprint(raw)
	if fp == p.cursor.LastFingerprint {
		p.setState(SKIPPED)
		p.update(func(s *Status) { s.Skipped++ })
		lg.Debug("Response unchanged", "fingerprint", fp)
		return nil
	}

	p.setState(ASSEMBLING)
	recs := m2m.Extract(raw)
	if p.opts.Archive != nil && len(recs) > 0 {
		if err := p.opts.Archive.Save(ctx, p.opts.Name, recs); err != nil {
			lg.Warn("Failed to archive records", "err", err)
		}
	}
	st := p.asm.Ingest(recs)
	lg.Debug("Ingested", "records", len(recs), "applied", st.Applied, "dropped", st.Dropped, "skipped", st.Skipped)
	p.update(func(s *Status) { s.Sessions = p.asm.Len() })

	p.setState(SELECTING)
	id, sess, ok := session.Select(p.asm.Sessions(), p.cursor)
	if !ok {
		// Everything in this response is ingested, so an identical one
		// next time has nothing to add.
		p.cursor.LastFingerprint = fp
		p.update(func(s *Status) {
			s.State = NONE_READY
			s.LastFingerprint = fp
		})
		lg.Debug("No complete session", "sessions", p.asm.Len())
		return nil
	}

	p.setState(BUILDING)
	clip, err := session.Build(sess)
	if err != nil {
		return p.fail(lg, "build", err)
	}

	// The session is consumed from here on, whatever recognition says.
	p.cursor = session.Cursor{LastFingerprint: fp, LastSessionID: id}
	p.update(func(s *Status) {
		s.Built++
		s.LastFingerprint = fp
		s.LastSessionID = id
	})
	lg.Info("Session assembled", "session", id, "bytes", len(clip), "chunks", sess.Total)

	if p.opts.Clips != nil {
		if err := p.opts.Clips.Store(ctx, p.opts.Name, id, clip); err != nil {
			lg.Warn("Failed to store clip", "session", id, "err", err)
		}
	}

	p.setState(RECOGNIZING)
	rctx, cancel := context.WithTimeout(ctx, p.opts.RecognizeTimeout)
	rec, err := p.opts.Recognizer.Recognize(rctx, clip)
	cancel()
	if err != nil {
		return p.fail(lg, "recognize", fmt.Errorf("session %s: %w", id, err))
	}

	cmd, ok := p.opts.Catalog.Accept(rec, p.opts.Threshold)
	if !ok {
		if rec != nil {
			lg.Info("No command recognized", "session", id, "text", rec.Text, "closest", rec.Command, "score", rec.Score)
		} else {
			lg.Info("No command recognized", "session", id)
		}
		return nil
	}

	lg.Info("Command recognized", "session", id, "phrase", cmd.Phrase, "action", cmd.Action, "score", cmd.Score)

	p.setState(DISPATCHING)
	return p.dispatch(ctx, lg, *cmd)
}

func (p *Poller) dispatch(ctx context.Context, lg *log.Logger, cmd nlu.Command) error {
	// A new command supersedes whatever is still waiting for delivery.
	if p.pending != nil {
		lg.Warn("Dropping superseded pending command", "device", p.pending.Device, "con", p.pending.Wire)
		p.clearPending()
	}

	target, err := p.opts.Dispatcher.Dispatch(ctx, cmd.Action)
	if err != nil {
		var me *nlu.MappingError
		if !errors.As(err, &me) && p.opts.Retries > 1 {
			p.pending, p.tries = &target, 1
			p.update(func(s *Status) {
				t := target
				s.Pending, s.PendingAttempts = &t, 1
			})
		}
		return p.fail(lg, "dispatch", err)
	}

	p.delivered(cmd, target)
	return nil
}

func (p *Poller) retryPending(ctx context.Context, lg *log.Logger) {
	if p.pending == nil {
		return
	}

	t := *p.pending
	p.setState(DISPATCHING)
	p.tries++

	if err := p.opts.Dispatcher.Send(ctx, t); err != nil {
		if p.tries >= p.opts.Retries {
			lg.Error("Giving up on command", "device", t.Device, "con", t.Wire, "attempts", p.tries, "err", err)
			p.report("dispatch", err)
			p.clearPending()
			return
		}
		lg.Warn("Retry failed", "device", t.Device, "con", t.Wire, "attempt", p.tries, "err", err)
		tries := p.tries
		p.update(func(s *Status) { s.PendingAttempts = tries })
		return
	}

	lg.Info("Retried command delivered", "device", t.Device, "con", t.Wire, "attempt", p.tries)
	p.clearPending()
	p.delivered(nlu.Command{Action: nlu.Action{Device: t.Device}}, t)
}

func (p *Poller) delivered(cmd nlu.Command, t nlu.Target) {
	p.update(func(s *Status) {
		s.Dispatched++
		if cmd.Phrase != "" {
			c := cmd
			s.LastCommand = &c
		}
	})
	if p.opts.OnDispatch != nil {
		p.opts.OnDispatch(cmd, t)
	}
}

func (p *Poller) clearPending() {
	p.pending, p.tries = nil, 0
	p.update(func(s *Status) {
		s.Pending, s.PendingAttempts = nil, 0
	})
}

func (p *Poller) fail(lg *log.Logger, stage string, err error) error {
	lg.Error("Cycle failed", "stage", stage, "err", err)
	p.update(func(s *Status) { s.LastError = stage + ": " + err.Error() })
	p.report(stage, err)
	return err
}

func (p *Poller) report(stage string, err error) {
	sentry.WithScope(func(scope *sentry.Scope) {
		scope.SetTag("stage", stage)
		scope.SetTag("source", p.opts.Name)
		sentry.CaptureException(err)
	})
}

func (p *Poller) setState(st State) {
	p.update(func(s *Status) { s.State = st })
}

func (p *Poller) update(fn func(*Status)) {
	p.mu.Lock()
	fn(&p.status)
	p.mu.Unlock()
}
