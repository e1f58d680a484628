package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"faceattend/internal/attendance"
	"faceattend/internal/enrollment"
	"faceattend/internal/faceclient"
	"faceattend/internal/facematch"
	"faceattend/internal/frame"
	"faceattend/internal/metrics"
)

const (
	DefaultPresenceInterval = time.Second
	DefaultMatchInterval    = 1500 * time.Millisecond

	subscriberBuffer = 32
)

// Extractor turns a frame into a face descriptor.
type Extractor interface {
	Ready() bool
	Extract(ctx context.Context, f frame.Frame) (facematch.Descriptor, bool, error)
}

// Directory is the read side of the enrollment store used during matching.
type Directory interface {
	Candidates(ctx context.Context) ([]facematch.Candidate, error)
	Get(ctx context.Context, id string) (enrollment.User, error)
}

// Ledger records check-ins.
type Ledger interface {
	RecordCheckIn(ctx context.Context, userID, userName string, ts time.Time) (attendance.Record, attendance.Status, error)
}

// frameClearer is implemented by sources that keep frames between sessions.
type frameClearer interface {
	Clear()
}

type Config struct {
	PresenceInterval time.Duration
	MatchInterval    time.Duration
	Threshold        float64
}

// Controller drives one scan session at a time. All session state is owned by
// a single loop goroutine; callers talk to it through commands.
type Controller struct {
	extractor Extractor
	directory Directory
	ledger    Ledger
	frames    frame.Source
	matcher   facematch.Matcher
	cfg       Config
	now       func() time.Time

	mu      sync.Mutex
	loop    *loop
	snap    Snapshot
	subs    map[int]chan Event
	nextSub int
}

type loop struct {
	cmds   chan command
	done   chan struct{}
	cancel context.CancelFunc
}

type commandKind int

const (
	cmdStartScanning commandKind = iota
	cmdStopScanning
	cmdReset
	cmdClose
)

type command struct {
	kind  commandKind
	reply chan error
}

type attemptKind int

const (
	attemptPresence attemptKind = iota
	attemptMatch
)

type attemptResult struct {
	kind       attemptKind
	generation uint64
	descriptor facematch.Descriptor
	found      bool
	err        error
}

func NewController(extractor Extractor, directory Directory, ledger Ledger, frames frame.Source, cfg Config) *Controller {
	if cfg.PresenceInterval <= 0 {
		cfg.PresenceInterval = DefaultPresenceInterval
	}
	if cfg.MatchInterval <= 0 {
		cfg.MatchInterval = DefaultMatchInterval
	}
	if cfg.Threshold <= 0 {
		cfg.Threshold = facematch.DefaultThreshold
	}
	return &Controller{
		extractor: extractor,
		directory: directory,
		ledger:    ledger,
		frames:    frames,
		matcher:   facematch.New(cfg.Threshold),
		cfg:       cfg,
		now:       time.Now,
		subs:      make(map[int]chan Event),
	}
}

// Start opens a session and begins presence polling. Starting a running
// session is a no-op. The session outlives ctx; Close ends it.
func (c *Controller) Start(ctx context.Context) error {
	if !c.extractor.Ready() {
		c.publish(Event{Kind: EventError, State: Idle, Message: msgModelUnavailable, Err: faceclient.ErrModelUnavailable})
		return faceclient.ErrModelUnavailable
	}

	c.mu.Lock()
	if c.loop != nil {
		c.mu.Unlock()
		return nil
	}
	runCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l := &loop{
		cmds:   make(chan command),
		done:   make(chan struct{}),
		cancel: cancel,
	}
	c.loop = l
	c.mu.Unlock()

	s := &runState{c: c, l: l, results: make(chan attemptResult, 1)}
	s.transition(Detecting)
	go s.run(runCtx)
	return nil
}

// StartScanning moves a detecting session into matching.
func (c *Controller) StartScanning() error { return c.send(cmdStartScanning) }

// StopScanning returns a matching session to detecting. In-flight results are dropped.
func (c *Controller) StopScanning() error { return c.send(cmdStopScanning) }

// Reset clears a resolved outcome and resumes presence polling.
func (c *Controller) Reset() error { return c.send(cmdReset) }

// Close ends the session and stops all timers. Closing an idle controller is a no-op.
func (c *Controller) Close() error {
	err := c.send(cmdClose)
	if errors.Is(err, ErrNotStarted) {
		return nil
	}
	return err
}

// Running reports whether a session is open.
func (c *Controller) Running() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loop != nil
}

// Snapshot returns the current session view.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := c.snap
	if snap.User != nil {
		u := *snap.User
		snap.User = &u
	}
	if snap.Record != nil {
		r := *snap.Record
		snap.Record = &r
	}
	return snap
}

// Subscribe registers a listener for session events. Slow listeners miss
// events rather than blocking the session. The returned func unsubscribes
// and closes the channel.
func (c *Controller) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	c.mu.Lock()
	id := c.nextSub
	c.nextSub++
	c.subs[id] = ch
	c.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			c.mu.Lock()
			delete(c.subs, id)
			c.mu.Unlock()
			close(ch)
		})
	}
}

func (c *Controller) send(kind commandKind) error {
	c.mu.Lock()
	l := c.loop
	c.mu.Unlock()
	if l == nil {
		return ErrNotStarted
	}
	cmd := command{kind: kind, reply: make(chan error, 1)}
	select {
	case l.cmds <- cmd:
	case <-l.done:
		return ErrNotStarted
	}
	select {
	case err := <-cmd.reply:
		return err
	case <-l.done:
		if kind == cmdClose {
			return nil
		}
		return ErrNotStarted
	}
}

// publish updates the snapshot from ev and fans it out to subscribers.
func (c *Controller) publish(ev Event) {
	if ev.At.IsZero() {
		ev.At = c.now()
	}
	if ev.Err != nil && ev.Error == "" {
		ev.Error = ev.Err.Error()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.snap = Snapshot{
		State:       ev.State,
		Outcome:     ev.Outcome,
		FaceVisible: ev.FaceVisible,
		User:        ev.User,
		Record:      ev.Record,
		Message:     ev.Message,
		Error:       ev.Error,
	}
	for id, ch := range c.subs {
		select {
		case ch <- ev:
		default:
			slog.Debug("session event dropped", "subscriber", id, "kind", ev.Kind)
		}
	}
}

// runState is owned by the loop goroutine.
type runState struct {
	c       *Controller
	l       *loop
	results chan attemptResult

	state       State
	outcome     Outcome
	faceVisible bool
	user        *UserView
	record      *attendance.Record
	message     string
	errText     string

	matchTicker *time.Ticker
	inFlight    bool
	// matchDue is set when a match tick arrives while an extraction is busy.
	matchDue   bool
	generation uint64
	// matchGen is the generation that matching results must carry to be applied.
	matchGen uint64
}

func (s *runState) run(ctx context.Context) {
	presence := time.NewTicker(s.c.cfg.PresenceInterval)
	defer presence.Stop()
	defer s.stopMatching()
	defer func() {
		s.detach()
		s.l.cancel()
		close(s.l.done)
	}()

	for {
		var matchC <-chan time.Time
		if s.matchTicker != nil {
			matchC = s.matchTicker.C
		}

		select {
		case <-ctx.Done():
			s.shutdown()
			return
		case cmd := <-s.l.cmds:
			stop, err := s.handle(cmd.kind)
			cmd.reply <- err
			if stop {
				return
			}
		case <-presence.C:
			if !s.inFlight {
				s.dispatch(ctx, attemptPresence)
			}
		case <-matchC:
			if s.state != Matching {
				break
			}
			if s.inFlight {
				s.matchDue = true
			} else {
				s.dispatch(ctx, attemptMatch)
			}
		case res := <-s.results:
			s.inFlight = false
			if s.apply(ctx, res) {
				return
			}
			if s.matchDue && s.state == Matching {
				s.dispatch(ctx, attemptMatch)
			}
		}
	}
}

func (s *runState) handle(kind commandKind) (stop bool, err error) {
	switch kind {
	case cmdStartScanning:
		if s.state != Detecting {
			return false, fmt.Errorf("%w: cannot scan while %s", ErrInvalidTransition, s.state)
		}
		s.clearResolution()
		s.generation++
		s.matchGen = s.generation
		s.matchTicker = time.NewTicker(s.c.cfg.MatchInterval)
		s.transition(Matching)
	case cmdStopScanning:
		if s.state != Matching {
			return false, nil
		}
		s.stopMatching()
		s.transition(Detecting)
	case cmdReset:
		switch s.state {
		case Resolved:
			s.clearResolution()
			s.transition(Idle)
			s.transition(Detecting)
		case Detecting:
			s.clearResolution()
			s.transition(Detecting)
		default:
			return false, fmt.Errorf("%w: cannot reset while %s", ErrInvalidTransition, s.state)
		}
	case cmdClose:
		s.shutdown()
		return true, nil
	}
	return false, nil
}

// dispatch starts one extraction off the loop goroutine.
func (s *runState) dispatch(ctx context.Context, kind attemptKind) {
	s.inFlight = true
	s.generation++
	gen := s.generation
	if kind == attemptMatch {
		s.matchGen = gen
		s.matchDue = false
	}
	frames, extractor, results := s.c.frames, s.c.extractor, s.results
	go func() {
		res := attemptResult{kind: kind, generation: gen}
		f, err := frames.Frame(ctx)
		if err == nil {
			res.descriptor, res.found, res.err = extractor.Extract(ctx, f)
		} else {
			res.err = err
		}
		// results has room for the single in-flight attempt.
		results <- res
	}()
}

// apply handles an extraction result and reports whether the session ended.
func (s *runState) apply(ctx context.Context, res attemptResult) bool {
	if res.err != nil {
		switch {
		case errors.Is(res.err, faceclient.ErrModelUnavailable):
			s.fail(msgModelUnavailable, res.err)
			return true
		case errors.Is(res.err, frame.ErrCameraAccessDenied):
			s.fail(msgCameraDenied, res.err)
			return true
		case errors.Is(res.err, context.Canceled):
			return false
		case !errors.Is(res.err, frame.ErrNoFrame):
			slog.Warn("face extraction failed", "err", res.err)
			if res.kind == attemptMatch {
				metrics.ScanAttempts.WithLabelValues("error").Inc()
			}
		}
		res.found = false
	}

	if s.state == Idle {
		return false
	}
	s.setFaceVisible(res.found)

	if res.kind != attemptMatch {
		return false
	}
	if s.state != Matching || res.generation != s.matchGen {
		return false
	}
	if res.err != nil {
		return false
	}
	if !res.found {
		metrics.ScanAttempts.WithLabelValues("no_face").Inc()
		return false
	}
	s.match(ctx, res.descriptor)
	return false
}

func (s *runState) match(ctx context.Context, d facematch.Descriptor) {
	candidates, err := s.c.directory.Candidates(ctx)
	if err != nil {
		slog.Warn("load candidates failed", "err", err)
		metrics.ScanAttempts.WithLabelValues("error").Inc()
		return
	}
	candidates, skipped := facematch.Comparable(candidates, len(d))
	if len(skipped) > 0 {
		slog.Warn("candidates with a different descriptor length ignored", "dim", len(d), "user_ids", skipped)
	}
	result, ok := s.c.matcher.Match(d, candidates)
	if !ok {
		s.unknown()
		return
	}
	user, err := s.c.directory.Get(ctx, result.ID)
	if errors.Is(err, enrollment.ErrNotFound) {
		// removed between the candidate read and now
		s.unknown()
		return
	}
	if err != nil {
		slog.Warn("load matched user failed", "user_id", result.ID, "err", err)
		metrics.ScanAttempts.WithLabelValues("error").Inc()
		return
	}
	metrics.ScanAttempts.WithLabelValues("matched").Inc()

	rec, status, err := s.c.ledger.RecordCheckIn(ctx, user.ID, user.Name, s.c.now())
	if err != nil {
		slog.Error("record check-in failed", "user_id", user.ID, "err", err)
		s.stopMatching()
		s.message = msgLedgerFailed
		s.errText = err.Error()
		s.state = Detecting
		metrics.SessionTransitions.WithLabelValues(Detecting.String()).Inc()
		s.emit(EventError, err)
		return
	}

	s.stopMatching()
	s.user = viewOf(user)
	s.record = &rec
	s.errText = ""
	if status == attendance.AlreadyPresentToday {
		s.outcome = AlreadyPresent
		s.message = fmt.Sprintf("Welcome back, %s! Your attendance was already marked for today.", user.Name)
	} else {
		s.outcome = Success
		s.message = fmt.Sprintf("Welcome, %s! Your attendance has been marked at %s.", user.Name, rec.CheckInTime.Format("15:04"))
	}
	slog.Info("face matched", "user_id", user.ID, "distance", result.Distance, "status", status.String())
	s.transitionWith(Resolved, result.Distance)
}

func (s *runState) unknown() {
	metrics.ScanAttempts.WithLabelValues("unknown").Inc()
	s.c.publish(Event{
		Kind:        EventAttempt,
		State:       s.state,
		Outcome:     Unknown,
		FaceVisible: s.faceVisible,
		Message:     "Face not recognized.",
	})
}

func (s *runState) setFaceVisible(v bool) {
	if s.faceVisible == v {
		return
	}
	s.faceVisible = v
	s.emit(EventPresence, nil)
}

func (s *runState) fail(msg string, err error) {
	slog.Error("scan session failed", "err", err)
	s.detach()
	s.clearFrames()
	s.stopMatching()
	s.clearResolution()
	s.faceVisible = false
	s.message = msg
	s.errText = err.Error()
	s.state = Idle
	metrics.SessionTransitions.WithLabelValues(Idle.String()).Inc()
	s.emit(EventError, err)
}

// detach releases the controller for a new session. The final events of a
// session are published after detach so observers can restart right away.
func (s *runState) detach() {
	s.c.mu.Lock()
	if s.c.loop == s.l {
		s.c.loop = nil
	}
	s.c.mu.Unlock()
}

func (s *runState) shutdown() {
	s.detach()
	s.clearFrames()
	s.stopMatching()
	s.clearResolution()
	s.faceVisible = false
	s.transition(Idle)
}

// clearFrames drops the captured frame so a later session cannot match it.
func (s *runState) clearFrames() {
	if fc, ok := s.c.frames.(frameClearer); ok {
		fc.Clear()
	}
}

func (s *runState) stopMatching() {
	if s.matchTicker != nil {
		s.matchTicker.Stop()
		s.matchTicker = nil
	}
	s.matchDue = false
	// Any in-flight match result now carries a stale generation.
	s.generation++
	s.matchGen = 0
}

func (s *runState) clearResolution() {
	s.outcome = OutcomeNone
	s.user = nil
	s.record = nil
	s.message = ""
	s.errText = ""
}

func (s *runState) transition(to State) {
	s.transitionWith(to, 0)
}

func (s *runState) transitionWith(to State, distance float64) {
	s.state = to
	metrics.SessionTransitions.WithLabelValues(to.String()).Inc()
	ev := s.event(EventState, nil)
	ev.Distance = distance
	s.c.publish(ev)
}

func (s *runState) emit(kind EventKind, err error) {
	s.c.publish(s.event(kind, err))
}

func (s *runState) event(kind EventKind, err error) Event {
	ev := Event{
		Kind:        kind,
		State:       s.state,
		Outcome:     s.outcome,
		FaceVisible: s.faceVisible,
		User:        s.user,
		Record:      s.record,
		Message:     s.message,
		Error:       s.errText,
		Err:         err,
	}
	return ev
}
