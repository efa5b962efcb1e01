// Package sweep runs periodic maintenance: evicting idle rate-limit windows
// and pruning old delivery-log rows.
package sweep

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"meetmail/internal/ratelimit"
	"meetmail/internal/storage"
	logx "meetmail/pkg/logx"
)

const (
	defaultSchedule = "*/5 * * * *"
	defaultKeep     = 168 * time.Hour
)

type Config struct {
	Enabled  bool
	Schedule string // cron spec, default "*/5 * * * *"
	// Keep bounds the retained delivery-log window.
	Keep time.Duration
}

type Sweeper struct {
	log     logx.Logger
	limiter *ratelimit.Limiter
	store   storage.Store
	keep    time.Duration

	c *cron.Cron
}

// New builds a sweeper. Limiter and store may each be nil; the job skips
// whichever is absent.
func New(cfg Config, log logx.Logger, limiter *ratelimit.Limiter, store storage.Store) (*Sweeper, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	spec := strings.TrimSpace(cfg.Schedule)
	if spec == "" {
		spec = defaultSchedule
	}
	keep := cfg.Keep
	if keep <= 0 {
		keep = defaultKeep
	}

	s := &Sweeper{log: log, limiter: limiter, store: store, keep: keep}
	// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
	parser := cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)
	s.c = cron.New(cron.WithParser(parser))
	if _, err := s.c.AddFunc(spec, s.runOnce); err != nil {
		return nil, errors.New("sweep: bad schedule " + spec + ": " + err.Error())
	}
	return s, nil
}

func (s *Sweeper) Start() {
	if s == nil {
		return
	}
	s.c.Start()
}

func (s *Sweeper) Stop() {
	if s == nil {
		return
	}
	<-s.c.Stop().Done()
}

func (s *Sweeper) runOnce() {
	start := time.Now()
	evicted := 0
	if s.limiter != nil {
		evicted = s.limiter.Sweep()
	}
	pruned := 0
	if s.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		n, err := s.store.PruneDeliveries(ctx, time.Now().Add(-s.keep))
		cancel()
		if err != nil {
			s.log.Warn("delivery log prune failed", logx.Err(err))
		} else {
			pruned = n
		}
	}
	s.log.Debug("sweep completed",
		logx.Int("evicted_identities", evicted),
		logx.Int("pruned_deliveries", pruned),
		logx.Duration("took", time.Since(start)))
}

// RunNow triggers one sweep synchronously (startup and tests).
func (s *Sweeper) RunNow() {
	if s == nil {
		return
	}
	s.runOnce()
}
