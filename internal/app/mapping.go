package app

import (
	"errors"
	"strings"
	"time"

	"meetmail/internal/config"
	"meetmail/internal/dispatch"
	"meetmail/internal/ratelimit"
	"meetmail/internal/server"
	"meetmail/internal/storage"
	"meetmail/internal/sweep"
	"meetmail/internal/timeparse"
	"meetmail/internal/transport/smtp"
)

func mapSMTPConfig(cfg *config.Config) (smtp.Config, error) {
	sc := cfg.SMTP
	if strings.TrimSpace(sc.Host) == "" {
		return smtp.Config{}, errors.New("smtp.host is required")
	}
	timeout, err := sc.SubmitTimeout()
	if err != nil {
		return smtp.Config{}, err
	}
	startTLS := true
	if sc.StartTLS != nil {
		startTLS = *sc.StartTLS
	}
	return smtp.Config{
		Host:     sc.Host,
		Port:     sc.Port,
		Username: sc.Username,
		Password: sc.Password,
		Timeout:  timeout,
		StartTLS: startTLS,
	}, nil
}

func mapRateLimitConfig(cfg *config.Config) (ratelimit.Config, error) {
	rc := cfg.RateLimit
	window, err := rc.WindowDuration()
	if err != nil {
		return ratelimit.Config{}, err
	}
	return ratelimit.Config{
		Enabled:     rc.Enabled,
		Window:      window,
		MaxRequests: rc.MaxRequests,
	}, nil
}

func mapDispatchConfig(cfg *config.Config) (dispatch.Config, error) {
	dc := cfg.Dispatch
	base, err := dc.RetryBaseDelay()
	if err != nil {
		return dispatch.Config{}, err
	}
	maxDelay, err := dc.RetryDelayCap()
	if err != nil {
		return dispatch.Config{}, err
	}
	timeout, err := dc.RequestTimeout()
	if err != nil {
		return dispatch.Config{}, err
	}
	return dispatch.Config{
		MaxAttempts:   dc.MaxAttempts,
		RetryBase:     base,
		RetryMaxDelay: maxDelay,
		RatePerSec:    dc.RatePerSec,
		Timeout:       timeout,
	}, nil
}

func mapTimeparseConfig(cfg *config.Config) (timeparse.Config, error) {
	mc := cfg.Meeting
	dur, err := mc.MeetingDuration()
	if err != nil {
		return timeparse.Config{}, err
	}
	var home *time.Location
	if tz := strings.TrimSpace(mc.HomeTimezone); tz != "" {
		home, err = time.LoadLocation(tz)
		if err != nil {
			return timeparse.Config{}, errors.New("meeting.home_timezone: invalid " + tz)
		}
	}
	return timeparse.Config{Home: home, MeetingDuration: dur}, nil
}

// mapStorageConfig returns (cfg, enabled, err).
func mapStorageConfig(cfg *config.Config) (storage.Config, bool, error) {
	if cfg.Storage == nil {
		return storage.Config{}, false, nil
	}
	sc := cfg.Storage
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" || driver == "none" {
		return storage.Config{}, false, nil
	}
	busy, err := sc.BusyTimeoutDuration()
	if err != nil {
		return storage.Config{}, false, err
	}
	return storage.Config{
		Driver:      driver,
		Path:        sc.Path,
		BusyTimeout: busy,
	}, true, nil
}

func mapSweepConfig(cfg *config.Config) (sweep.Config, error) {
	out := sweep.Config{}
	if cfg.Sweep != nil {
		out.Enabled = cfg.Sweep.Enabled
		out.Schedule = cfg.Sweep.Schedule
	}
	if cfg.Storage != nil {
		keep, err := cfg.Storage.Retention()
		if err != nil {
			return sweep.Config{}, err
		}
		out.Keep = keep
	}
	return out, nil
}

func mapServerConfig(cfg *config.Config, rl ratelimit.Config) (server.Config, error) {
	sc := cfg.Server
	readTimeout, err := sc.ReadTimeoutDuration()
	if err != nil {
		return server.Config{}, err
	}
	writeTimeout, err := sc.WriteTimeoutDuration()
	if err != nil {
		return server.Config{}, err
	}
	maxReq := rl.MaxRequests
	if maxReq <= 0 {
		maxReq = 10
	}
	windowSec := int(rl.Window / time.Second)
	if windowSec <= 0 {
		windowSec = 60
	}
	return server.Config{
		Addr:              sc.Addr,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		CORSOrigins:       sc.CORSOrigins,
		RateWindowSeconds: windowSec,
		RateMaxRequests:   maxReq,
	}, nil
}
