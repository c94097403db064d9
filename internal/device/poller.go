package device

import (
	"context"
	"errors"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/isapi"
	"github.com/maciej-or/hikvision-next/internal/metrics"
)

type PollerConfig struct {
	Interval    time.Duration
	MaxInflight int
	TimeBudget  time.Duration
}

// jitter returns a random delay of up to a twentieth of the interval,
// spreading the first round after a restart.
func jitter(interval time.Duration) time.Duration {
	if interval <= 0 {
		return 0
	}
	return rand.N(interval/20 + 1)
}

// EventsPoller re-reads event enabled states and storage status on the fast
// cadence. Pushes keep alerts fresh; this keeps the toggle and disk views
// honest when someone changes the device behind our back.
type EventsPoller struct {
	mgr *Manager
	cfg PollerConfig
	log zerolog.Logger

	sem      chan struct{}
	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewEventsPoller(mgr *Manager, cfg PollerConfig, log zerolog.Logger) *EventsPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 5 * time.Minute
	}
	if cfg.MaxInflight <= 0 {
		cfg.MaxInflight = 4
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = time.Minute
	}
	return &EventsPoller{
		mgr:      mgr,
		cfg:      cfg,
		log:      log,
		sem:      make(chan struct{}, cfg.MaxInflight),
		stopChan: make(chan struct{}),
	}
}

func (p *EventsPoller) Start() {
	p.wg.Add(1)
	go p.runLoop()
}

// Stop waits for the loop and any in-flight device polls.
func (p *EventsPoller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *EventsPoller) runLoop() {
	defer p.wg.Done()
	select {
	case <-p.stopChan:
		return
	case <-time.After(jitter(p.cfg.Interval)):
	}
	p.pollAll()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

func (p *EventsPoller) pollAll() {
	for _, dev := range p.mgr.All() {
		if !dev.Online() {
			continue
		}
		select {
		case p.sem <- struct{}{}:
			p.wg.Add(1)
			go func(d *Device) {
				defer p.wg.Done()
				defer func() { <-p.sem }()
				p.pollDevice(d)
			}(dev)
		default:
			metrics.PollErrorsTotal.WithLabelValues("events", "capacity_full").Inc()
		}
	}
}

func (p *EventsPoller) pollDevice(d *Device) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TimeBudget)
	defer cancel()

	start := time.Now()
	err := d.RefreshEventStates(ctx)
	if err == nil && len(d.Client.Storage) > 0 {
		if serr := d.RefreshStorage(ctx); serr != nil {
			ObserveError(serr)
			if errors.Is(serr, isapi.ErrConnectivity) {
				err = serr
			}
		}
	}
	metrics.PollDuration.WithLabelValues("events").Observe(time.Since(start).Seconds())

	if err != nil {
		metrics.PollErrorsTotal.WithLabelValues("events", "refresh").Inc()
		if errors.Is(err, isapi.ErrConnectivity) {
			d.setOnline(false)
			p.log.Warn().Err(err).Str("device", d.Client.Host()).Msg("device unreachable, marked offline")
		}
	}
}

// InfrequentPoller handles the slow-moving state: holiday mode, the
// notification-host target, and reconnecting devices that dropped offline.
// Devices are visited sequentially; the work per device is a handful of
// requests.
type InfrequentPoller struct {
	mgr *Manager
	cfg PollerConfig
	log zerolog.Logger

	stopChan chan struct{}
	wg       sync.WaitGroup
}

func NewInfrequentPoller(mgr *Manager, cfg PollerConfig, log zerolog.Logger) *InfrequentPoller {
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Minute
	}
	if cfg.TimeBudget <= 0 {
		cfg.TimeBudget = 2 * time.Minute
	}
	return &InfrequentPoller{
		mgr:      mgr,
		cfg:      cfg,
		log:      log,
		stopChan: make(chan struct{}),
	}
}

func (p *InfrequentPoller) Start() {
	p.wg.Add(1)
	go p.runLoop()
}

func (p *InfrequentPoller) Stop() {
	close(p.stopChan)
	p.wg.Wait()
}

func (p *InfrequentPoller) runLoop() {
	defer p.wg.Done()
	select {
	case <-p.stopChan:
		return
	case <-time.After(jitter(p.cfg.Interval)):
	}
	p.pollAll()

	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-p.stopChan:
			return
		case <-ticker.C:
			p.pollAll()
		}
	}
}

func (p *InfrequentPoller) pollAll() {
	for _, dev := range p.mgr.All() {
		select {
		case <-p.stopChan:
			return
		default:
		}
		p.pollDevice(dev)
	}
}

func (p *InfrequentPoller) pollDevice(d *Device) {
	ctx, cancel := context.WithTimeout(context.Background(), p.cfg.TimeBudget)
	defer cancel()

	if !d.Online() {
		p.mgr.Connect(ctx, d)
		return
	}

	start := time.Now()
	failed := false
	if d.Client.Capabilities.SupportHolidayMode {
		if err := d.RefreshHoliday(ctx); err != nil {
			ObserveError(err)
			failed = true
		}
	}
	if d.Client.Capabilities.SupportAlarmServer {
		if p.mgr.externalURL != "" {
			// A no-op while the device still points at us; heals the
			// target when someone redirected it.
			if err := d.Client.SetAlarmServer(ctx, p.mgr.externalURL, AlarmPath); err != nil {
				ObserveError(err)
				failed = true
			}
		}
		if err := d.RefreshAlarmServer(ctx); err != nil {
			ObserveError(err)
			failed = true
		}
	}
	metrics.PollDuration.WithLabelValues("infrequent").Observe(time.Since(start).Seconds())
	if failed {
		metrics.PollErrorsTotal.WithLabelValues("infrequent", "refresh").Inc()
	}
}
