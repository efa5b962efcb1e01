// Package app wires the process: configuration, logging, the dispatch
// pipeline and its HTTP boundary, plus the optional persistence and
// maintenance services.
package app

import (
	"context"
	"sync"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"meetmail/internal/config"
	"meetmail/internal/dispatch"
	"meetmail/internal/eventbus"
	"meetmail/internal/invite"
	"meetmail/internal/ratelimit"
	"meetmail/internal/recorder"
	"meetmail/internal/server"
	"meetmail/internal/storage"
	"meetmail/internal/sweep"
	"meetmail/internal/template"
	"meetmail/internal/timeparse"
	"meetmail/internal/transport"
	"meetmail/internal/transport/smtp"
	logx "meetmail/pkg/logx"
)

type App struct {
	cfgPath string

	cfgm *config.Manager
	log  logx.Logger
	logs *logx.Service
	bus  eventbus.Bus

	store   storage.Store
	limiter *ratelimit.Limiter
	engine  *dispatch.Engine
	rec     *recorder.Recorder
	sweeper *sweep.Sweeper
	srv     *server.Server
	mailer  *smtp.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup
	errCh  chan error
}

func New(cfgPath string) (*App, error) {
	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		return nil, err
	}

	logSvc, log := logx.New(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})
	log = log.With(logx.String("comp", "app"))

	bus := eventbus.New()

	smtpCfg, err := mapSMTPConfig(cfg)
	if err != nil {
		return nil, err
	}
	mailer, err := smtp.New(smtpCfg, log.With(logx.String("comp", "smtp")))
	if err != nil {
		return nil, err
	}

	tmpl, err := template.Load(cfg.Template.Path)
	if err != nil {
		return nil, err
	}

	rlCfg, err := mapRateLimitConfig(cfg)
	if err != nil {
		return nil, err
	}
	limiter := ratelimit.New(rlCfg)

	tpCfg, err := mapTimeparseConfig(cfg)
	if err != nil {
		return nil, err
	}
	parser := timeparse.New(tpCfg)

	host := invite.Attendee{Name: cfg.Meeting.HostName, Email: cfg.Meeting.HostEmail}
	builder := invite.NewBuilder(invite.Config{
		Organizer: host,
		Host:      host,
		Location:  cfg.Meeting.Location,
	})

	// Storage (optional)
	var store storage.Store
	if sc, enabled, err := mapStorageConfig(cfg); err != nil {
		return nil, err
	} else if enabled {
		st, err := storage.Open(sc, log.With(logx.String("comp", "storage")))
		if err != nil {
			return nil, err
		}
		store = st
		log.Info("storage enabled", logx.String("driver", sc.Driver))
	}

	dpCfg, err := mapDispatchConfig(cfg)
	if err != nil {
		return nil, err
	}
	engine, err := dispatch.New(dpCfg, dispatch.Content{
		Sender:   transport.Address{Name: cfg.SMTP.SenderName, Email: cfg.SMTP.SenderAddr},
		Host:     transport.Address{Name: cfg.Meeting.HostName, Email: cfg.Meeting.HostEmail},
		Location: cfg.Meeting.Location,
	}, dispatch.Deps{
		Log:       log.With(logx.String("comp", "dispatch")),
		Limiter:   limiter,
		Parser:    parser,
		Builder:   builder,
		Template:  tmpl,
		Submitter: mailer,
		Bus:       bus,
	})
	if err != nil {
		return nil, err
	}

	rec := recorder.New(log.With(logx.String("comp", "recorder")), bus, store)

	swCfg, err := mapSweepConfig(cfg)
	if err != nil {
		return nil, err
	}
	sweeper, err := sweep.New(swCfg, log.With(logx.String("comp", "sweep")), limiter, store)
	if err != nil {
		return nil, err
	}

	srvCfg, err := mapServerConfig(cfg, rlCfg)
	if err != nil {
		return nil, err
	}
	srv := server.New(srvCfg, log.With(logx.String("comp", "http")), engine, mailer, store)

	return &App{
		cfgPath: cfgPath,
		cfgm:    cfgm,
		log:     log,
		logs:    logSvc,
		bus:     bus,
		store:   store,
		limiter: limiter,
		engine:  engine,
		rec:     rec,
		sweeper: sweeper,
		srv:     srv,
		mailer:  mailer,
		errCh:   make(chan error, 1),
	}, nil
}

// Err surfaces the first fatal error from a background service (if any).
func (a *App) Err() <-chan error { return a.errCh }

func (a *App) Start(ctx context.Context) error {
	ctx, a.cancel = context.WithCancel(ctx)

	// transactional config reload: validate before commit/publish
	a.cfgm.SetLogger(a.log.With(logx.String("comp", "config")))
	a.cfgm.SetValidator(func(c context.Context, cfg *config.Config) error {
		if _, err := mapRateLimitConfig(cfg); err != nil {
			return err
		}
		if _, err := mapDispatchConfig(cfg); err != nil {
			return err
		}
		if _, err := mapTimeparseConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSMTPConfig(cfg); err != nil {
			return err
		}
		if _, _, err := mapStorageConfig(cfg); err != nil {
			return err
		}
		if _, err := mapSweepConfig(cfg); err != nil {
			return err
		}
		return nil
	})

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.cfgm.Watch(ctx); err != nil && ctx.Err() == nil {
			a.log.Warn("config watch stopped", logx.Err(err))
		}
	}()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		a.rec.Run(ctx)
	}()

	a.sweeper.Start()

	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		if err := a.srv.Start(ctx); err != nil {
			a.log.Error("http server failed", logx.Err(err))
			select {
			case a.errCh <- err:
			default:
			}
			a.cancel()
		}
	}()

	// hot reload config fan-out
	sub := a.cfgm.Subscribe(8)
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		defer a.cfgm.Unsubscribe(sub)
		for {
			select {
			case <-ctx.Done():
				return
			case newCfg, ok := <-sub:
				if !ok {
					return
				}
				a.applyReload(newCfg)
			}
		}
	}()

	a.notifySystemd(ctx)

	a.log.Info("meetmail started")
	return nil
}

// applyReload pushes the hot-reloadable sections into running components.
// Server, SMTP, template and storage changes need a restart.
func (a *App) applyReload(cfg *config.Config) {
	a.logs.Apply(logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	})

	if rlCfg, err := mapRateLimitConfig(cfg); err == nil {
		a.limiter.Apply(rlCfg)
	} else {
		a.log.Warn("invalid rate_limit config; keeping previous", logx.Err(err))
	}
	if dpCfg, err := mapDispatchConfig(cfg); err == nil {
		a.engine.Apply(dpCfg)
	} else {
		a.log.Warn("invalid dispatch config; keeping previous", logx.Err(err))
	}
	a.log.Info("config reloaded")
}

// notifySystemd reports readiness and feeds the watchdog when the process
// runs under systemd Type=notify. No-ops elsewhere.
func (a *App) notifySystemd(ctx context.Context) {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	interval, err := daemon.SdWatchdogEnabled(false)
	if err != nil || interval <= 0 {
		return
	}
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()
		t := time.NewTicker(interval / 2)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				_, _ = daemon.SdNotify(false, daemon.SdNotifyWatchdog)
			}
		}
	}()
}

func (a *App) Stop(ctx context.Context) error {
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)
	if a.cancel != nil {
		a.cancel()
	}
	a.sweeper.Stop()

	done := make(chan struct{})
	go func() {
		a.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		a.log.Warn("shutdown deadline exceeded")
	}

	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn("storage close failed", logx.Err(err))
		}
	}
	a.log.Info("meetmail stopped")
	if a.logs != nil {
		_ = a.logs.Close()
	}
	return nil
}
