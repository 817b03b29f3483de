package learning

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/emberfix/repaird/internal/feedback"
	"github.com/emberfix/repaird/internal/knowledge"
	"github.com/emberfix/repaird/internal/logging"
	"github.com/emberfix/repaird/internal/session"
)

// ErrAlreadyRunning indicates Start was called on a running scheduler.
var ErrAlreadyRunning = errors.New("learning: scheduler already running")

// ErrUnknownPattern indicates an approval request for a pattern the
// scheduler never mined.
var ErrUnknownPattern = errors.New("learning: unknown learned pattern")

const (
	defaultInterval = time.Hour
	runTimeout      = 5 * time.Minute
)

// Scheduler runs the mining loop on a fixed interval. It is the only
// writer of learned rules: runs are serialized by a mutex and each run
// republishes the knowledge snapshot through the store's atomic swap.
type Scheduler struct {
	interval time.Duration
	miner    *Miner
	sessions *session.MemoryStore
	feedback feedback.Store
	loader   *knowledge.Loader
	store    *knowledge.Store
	logger   *logging.Logger

	// mu protects running, stopCh and learned.
	mu      sync.Mutex
	running bool
	stopCh  chan struct{}

	// learned accumulates mined patterns across runs, keyed by pattern
	// ID so re-mined groups update in place.
	learned map[string]*knowledge.Pattern
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithInterval sets the time between mining runs.
func WithInterval(d time.Duration) SchedulerOption {
	return func(s *Scheduler) {
		if d > 0 {
			s.interval = d
		}
	}
}

// NewScheduler creates a scheduler. Call Start to begin scheduled runs,
// or RunOnce for a single synchronous pass.
func NewScheduler(
	miner *Miner,
	sessions *session.MemoryStore,
	fb feedback.Store,
	loader *knowledge.Loader,
	store *knowledge.Store,
	logger *logging.Logger,
	opts ...SchedulerOption,
) *Scheduler {
	if logger == nil {
		logger = logging.NewNop()
	}
	s := &Scheduler{
		interval: defaultInterval,
		miner:    miner,
		sessions: sessions,
		feedback: fb,
		loader:   loader,
		store:    store,
		logger:   logger,
		learned:  make(map[string]*knowledge.Pattern),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins the background mining loop. Idempotent in the sense that
// a second Start on a running scheduler fails without spawning another
// goroutine.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return ErrAlreadyRunning
	}
	s.stopCh = make(chan struct{})
	s.running = true

	s.logger.Info(context.Background(), "learning scheduler started",
		zap.Duration("interval", s.interval),
	)
	go s.run(s.stopCh)
	return nil
}

// Stop signals the background loop to exit. Safe to call on a stopped
// scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return
	}
	s.running = false
	close(s.stopCh)
	s.logger.Info(context.Background(), "learning scheduler stopped")
}

func (s *Scheduler) run(stopCh chan struct{}) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "learning scheduler panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
			s.mu.Lock()
			s.running = false
			s.mu.Unlock()
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.safeRun()
		case <-stopCh:
			return
		}
	}
}

// safeRun wraps one run with panic recovery so a bad batch never kills
// the loop.
func (s *Scheduler) safeRun() {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error(context.Background(), "learning run panicked",
				zap.Any("panic", r),
				zap.Stack("stack"),
			)
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	if _, err := s.RunOnce(ctx); err != nil {
		s.logger.Error(ctx, "learning run failed", zap.Error(err))
	}
}

// RunOnce executes a single mining pass: scan finished sessions, join
// with feedback, promote candidates, merge with earlier runs and
// publish a new snapshot.
func (s *Scheduler) RunOnce(ctx context.Context) (*Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.runLocked(ctx)
}

func (s *Scheduler) runLocked(ctx context.Context) (*Report, error) {
	var outcomes []Outcome
	s.sessions.ForEach(func(sess *session.Session) {
		if out, ok := OutcomeFrom(sess); ok {
			outcomes = append(outcomes, out)
		}
	})

	records, err := s.feedback.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("listing feedback: %w", err)
	}

	report := s.miner.Mine(outcomes, records)

	for _, p := range report.Promoted {
		if prev, ok := s.learned[p.ID]; ok && prev.Approved {
			// Approval survives re-mining; stats still refresh.
			p.Approved = true
		}
		s.learned[p.ID] = p
	}

	if err := s.publishLocked(); err != nil {
		return nil, err
	}

	s.logger.Info(ctx, "learning run completed",
		zap.Int("sessions_scanned", report.SessionsScanned),
		zap.Int("candidates", report.Candidates),
		zap.Int("promoted", len(report.Promoted)),
		zap.Int("rejected", report.Rejected),
	)
	return report, nil
}

// publishLocked republishes static rules plus all accumulated learned
// patterns. Caller holds mu.
func (s *Scheduler) publishLocked() error {
	patterns := make([]*knowledge.Pattern, 0, len(s.learned))
	for _, p := range s.learned {
		patterns = append(patterns, p)
	}
	sort.Slice(patterns, func(i, j int) bool { return patterns[i].ID < patterns[j].ID })

	snap, err := s.loader.Extend(patterns, nil)
	if err != nil {
		return fmt.Errorf("building snapshot: %w", err)
	}
	s.store.Publish(snap)
	return nil
}

// Approve marks a mined pattern as approved and republishes so future
// sessions can use it. No-op error when the pattern was never mined.
func (s *Scheduler) Approve(ctx context.Context, patternID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.learned[patternID]
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownPattern, patternID)
	}
	if p.Approved {
		return nil
	}
	p.Approved = true

	if err := s.publishLocked(); err != nil {
		return err
	}
	s.logger.Info(ctx, "learned pattern approved", zap.String("pattern_id", patternID))
	return nil
}

// Pending returns mined patterns awaiting approval, sorted by ID.
func (s *Scheduler) Pending() []*knowledge.Pattern {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*knowledge.Pattern
	for _, p := range s.learned {
		if !p.Approved {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
