package device

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/maciej-or/hikvision-next/internal/config"
)

// Manager owns the set of device sessions, keyed by configured host so
// reloads can diff against the running set before serials are known.
type Manager struct {
	externalURL string
	log         zerolog.Logger

	mu      sync.RWMutex
	devices map[string]*Device
}

func NewManager(externalURL string, log zerolog.Logger) *Manager {
	return &Manager{
		externalURL: externalURL,
		log:         log,
		devices:     make(map[string]*Device),
	}
}

// Apply reconciles the running set against the configuration: unknown hosts
// are added and connected in parallel, removed hosts are dropped. A device
// that fails to connect stays registered offline; the infrequent poller
// retries it.
func (m *Manager) Apply(ctx context.Context, cfgs []config.Device) {
	want := make(map[string]config.Device, len(cfgs))
	for _, dc := range cfgs {
		want[strings.TrimRight(dc.Host, "/")] = dc
	}

	m.mu.Lock()
	var added []*Device
	for host, dc := range want {
		if _, ok := m.devices[host]; ok {
			continue
		}
		dev := New(dc, m.log)
		m.devices[host] = dev
		added = append(added, dev)
	}
	for host, dev := range m.devices {
		if _, ok := want[host]; !ok {
			delete(m.devices, host)
			dev.setOnline(false)
			m.log.Info().Str("device", host).Msg("device removed from configuration")
		}
	}
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, dev := range added {
		wg.Add(1)
		go func(d *Device) {
			defer wg.Done()
			m.Connect(ctx, d)
		}(dev)
	}
	wg.Wait()
}

// Connect establishes or re-establishes one device session.
func (m *Manager) Connect(ctx context.Context, d *Device) {
	if err := d.Connect(ctx, m.externalURL); err != nil {
		m.log.Error().Err(err).Str("device", d.Client.Host()).Msg("device connect failed")
		return
	}
	info := d.Client.DeviceInfo
	m.log.Info().
		Str("device", d.Client.Host()).
		Str("serial", info.SerialNo).
		Str("model", info.Model).
		Bool("nvr", info.IsNVR).
		Int("cameras", len(d.Client.Cameras)).
		Int("events", len(d.Client.SupportedEvents)).
		Msg("device connected")
}

// All returns the devices ordered by host for stable listings.
func (m *Manager) All() []*Device {
	m.mu.RLock()
	defer m.mu.RUnlock()
	hosts := make([]string, 0, len(m.devices))
	for host := range m.devices {
		hosts = append(hosts, host)
	}
	sort.Strings(hosts)
	out := make([]*Device, 0, len(hosts))
	for _, host := range hosts {
		out = append(out, m.devices[host])
	}
	return out
}

func (m *Manager) BySerial(serial string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, d := range m.devices {
		if strings.EqualFold(d.Client.DeviceInfo.SerialNo, serial) {
			return d, true
		}
	}
	return nil, false
}

// Resolve finds the device an alert came from. V2 notifications carry the
// serial, V1 only the MAC; a single configured device absorbs alerts that
// identify neither.
func (m *Manager) Resolve(serial, mac string) (*Device, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if serial != "" {
		for _, d := range m.devices {
			if strings.EqualFold(d.Client.DeviceInfo.SerialNo, serial) {
				return d, true
			}
		}
	}
	if mac != "" {
		for _, d := range m.devices {
			if d.Client.DeviceInfo.MacAddress != "" && strings.EqualFold(d.Client.DeviceInfo.MacAddress, mac) {
				return d, true
			}
		}
	}
	if len(m.devices) == 1 {
		for _, d := range m.devices {
			return d, true
		}
	}
	return nil, false
}
