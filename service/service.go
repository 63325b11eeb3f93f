/*
Package service runs commands against stored businesses.

PURPOSE:
  The simulation core is an in-memory, single-writer value. The service
  turns it into something many HTTP requests or CLI runs can share:

    lock(id) -> load snapshot -> restore -> command -> snapshot -> save -> unlock

  A command that fails is never saved, so the stored business is always
  the state after the last successful command.

SEE ALSO:
  - lock/lock.go: per-business serialization
  - store/sqlite/sqlite.go: persistence
  - api/handlers.go: the HTTP surface built on Update and View
*/
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/warp/harvest-engine/calendar"
	"github.com/warp/harvest-engine/catalog"
	"github.com/warp/harvest-engine/lock"
	"github.com/warp/harvest-engine/metrics"
	"github.com/warp/harvest-engine/sim"
	"github.com/warp/harvest-engine/store/sqlite"
)

var (
	ErrNotFound      = errors.New("business not found")
	ErrAlreadyExists = errors.New("business already exists")
)

// Store is the persistence the service needs.
type Store interface {
	Save(ctx context.Context, snap sim.Snapshot) error
	Load(ctx context.Context, businessID string) (sim.Snapshot, error)
	Exists(ctx context.Context, businessID string) (bool, error)
	Delete(ctx context.Context, businessID string) error
	ListBusinesses(ctx context.Context) ([]sqlite.BusinessRecord, error)
}

type Service struct {
	store       Store
	locker      lock.Locker
	metrics     *metrics.Metrics
	log         logrus.FieldLogger
	lockTimeout time.Duration
}

// Option configures a Service.
type Option func(*Service)

func WithMetrics(m *metrics.Metrics) Option { return func(s *Service) { s.metrics = m } }

func WithLogger(log logrus.FieldLogger) Option { return func(s *Service) { s.log = log } }

// WithLockTimeout bounds how long a command waits for a busy business.
func WithLockTimeout(d time.Duration) Option { return func(s *Service) { s.lockTimeout = d } }

func New(store Store, locker lock.Locker, opts ...Option) *Service {
	s := &Service{
		store:       store,
		locker:      locker,
		log:         logrus.StandardLogger(),
		lockTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// LIFECYCLE
// =============================================================================

// CreateRequest starts a business from a preset or an explicit config.
// Exactly one of Preset and Config must be set.
type CreateRequest struct {
	BusinessID string
	Name       string
	Preset     string
	StartDate  calendar.Date
	Config     *sim.Config
}

// Create builds, books and stores a new business.
func (s *Service) Create(ctx context.Context, req CreateRequest) (sim.Summary, error) {
	start := time.Now()
	summary, err := s.create(ctx, req)
	return summary, s.metrics.ObserveCommand("create", start, err)
}

func (s *Service) create(ctx context.Context, req CreateRequest) (sim.Summary, error) {
	cfg, err := s.buildConfig(req)
	if err != nil {
		return sim.Summary{}, err
	}

	unlock, err := s.acquire(ctx, cfg.BusinessID)
	if err != nil {
		return sim.Summary{}, err
	}
	defer unlock()

	exists, err := s.store.Exists(ctx, cfg.BusinessID)
	if err != nil {
		return sim.Summary{}, err
	}
	if exists {
		return sim.Summary{}, fmt.Errorf("%w: %s", ErrAlreadyExists, cfg.BusinessID)
	}

	b, err := sim.New(cfg, sim.WithLogger(s.log))
	if err != nil {
		return sim.Summary{}, err
	}
	if err := s.store.Save(ctx, b.Snapshot()); err != nil {
		return sim.Summary{}, err
	}
	s.log.WithFields(logrus.Fields{"business": cfg.BusinessID, "kind": cfg.Kind}).Info("business created")
	return b.State(), nil
}

func (s *Service) buildConfig(req CreateRequest) (sim.Config, error) {
	id := req.BusinessID
	if id == "" {
		id = uuid.NewString()
	}
	if req.Config != nil {
		cfg := *req.Config
		cfg.BusinessID = id
		if cfg.StartDate.IsZero() {
			cfg.StartDate = req.StartDate
		}
		return cfg, nil
	}

	tpl, err := catalog.Preset(req.Preset)
	if err != nil {
		return sim.Config{}, err
	}
	startDate := req.StartDate
	if startDate.IsZero() {
		startDate = calendar.FromTime(time.Now())
	}
	cfg, err := tpl.Config(id, startDate)
	if err != nil {
		return sim.Config{}, err
	}
	if req.Name != "" {
		cfg.Name = req.Name
	}
	return cfg, nil
}

func (s *Service) List(ctx context.Context) ([]sqlite.BusinessRecord, error) {
	return s.store.ListBusinesses(ctx)
}

func (s *Service) Delete(ctx context.Context, businessID string) error {
	unlock, err := s.acquire(ctx, businessID)
	if err != nil {
		return err
	}
	defer unlock()

	if err := s.store.Delete(ctx, businessID); err != nil {
		return s.mapNotFound(err)
	}
	s.log.WithField("business", businessID).Info("business deleted")
	return nil
}

// =============================================================================
// COMMANDS & QUERIES
// =============================================================================

// Update runs fn with exclusive access to the business and saves the result
// if fn succeeds.
func (s *Service) Update(ctx context.Context, businessID, command string, fn func(*sim.Business) error) error {
	start := time.Now()
	return s.metrics.ObserveCommand(command, start, s.update(ctx, businessID, command, fn))
}

func (s *Service) update(ctx context.Context, businessID, command string, fn func(*sim.Business) error) error {
	unlock, err := s.acquire(ctx, businessID)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := s.restore(ctx, businessID)
	if err != nil {
		return err
	}
	if err := fn(b); err != nil {
		s.log.WithError(err).WithFields(logrus.Fields{
			"business": businessID,
			"command":  command,
		}).Debug("command rejected")
		return err
	}
	return s.store.Save(ctx, b.Snapshot())
}

// View runs fn on a freshly loaded copy of the business under the same lock
// as Update, so it never sees another process's half-written save. Nothing
// is saved.
func (s *Service) View(ctx context.Context, businessID string, fn func(*sim.Business) error) error {
	unlock, err := s.acquire(ctx, businessID)
	if err != nil {
		return err
	}
	defer unlock()

	b, err := s.restore(ctx, businessID)
	if err != nil {
		return err
	}
	return fn(b)
}

// Advance simulates days and records their activity. The summary is the
// state that was saved.
func (s *Service) Advance(ctx context.Context, businessID string, days int) ([]sim.DayReport, sim.Summary, error) {
	var (
		reports []sim.DayReport
		summary sim.Summary
	)
	err := s.Update(ctx, businessID, "advance", func(b *sim.Business) error {
		var err error
		if reports, err = b.AdvanceDays(days); err != nil {
			return err
		}
		summary = b.State()
		return nil
	})
	if err != nil {
		return nil, sim.Summary{}, err
	}
	s.metrics.ObserveDays(summary.Kind, reports)
	return reports, summary, nil
}

// acquire takes the business lock, waiting at most lockTimeout. The returned
// func releases it even if ctx has been cancelled meanwhile.
func (s *Service) acquire(ctx context.Context, businessID string) (func(), error) {
	lockCtx, cancel := context.WithTimeout(ctx, s.lockTimeout)
	defer cancel()
	release, err := s.locker.Lock(lockCtx, businessID)
	if err != nil {
		return nil, err
	}
	return func() {
		if err := release(context.WithoutCancel(ctx)); err != nil {
			s.log.WithError(err).WithField("business", businessID).Warn("lock release failed")
		}
	}, nil
}

func (s *Service) restore(ctx context.Context, businessID string) (*sim.Business, error) {
	snap, err := s.store.Load(ctx, businessID)
	if err != nil {
		return nil, s.mapNotFound(err)
	}
	log := s.log.WithField("business", businessID)
	b, err := sim.Restore(snap, sim.WithLogger(log))
	if err != nil {
		log.WithError(err).Error("stored business failed reconciliation")
		return nil, err
	}
	return b, nil
}

func (s *Service) mapNotFound(err error) error {
	if errors.Is(err, sqlite.ErrNotFound) {
		return fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	return err
}

// IsNotFound extends sim.IsNotFound with missing businesses.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, catalog.ErrUnknownPreset) || sim.IsNotFound(err)
}

// IsConflict reports a state clash: an existing id or a busy business.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyExists) || errors.Is(err, lock.ErrBusy)
}
