// Package manager implements the Bluetooth Manager (C7): the
// source-selection policy, Apple manufacturer-data fast filter,
// callback dispatch, disappearance tracking, and connection-slot
// accounting that sit above the scanners.
//
// Grounded on houneTeam-pible_go's internal/bluetooth/bluez_manager.go
// (the single struct owning scanner state, device history, and
// periodic sweeps from one control loop) generalized from an
// adapter-lifecycle owner into the advertisement-routing owner spec §4.7
// describes.
package manager

import (
	"btcore/internal/config"
	"btcore/internal/consolelog"
	"btcore/internal/reactor"
	"btcore/internal/scanner"
	"btcore/internal/serviceinfo"
	"btcore/internal/tracker"
)

// appleManufacturerID is the manufacturer id spec §4.7.2 filters on.
const appleManufacturerID = 0x004C

// Manager owns all shared advertisement-routing state: histories,
// callback registries, and allocation maps. Every exported method is
// meant to be called from a single goroutine (spec §5); there is no
// internal locking.
type Manager struct {
	cfg     config.Config
	tracker *tracker.Tracker

	allHistory         map[string]*serviceinfo.ServiceInfo
	connectableHistory map[string]*serviceinfo.ServiceInfo

	dispatch     *dispatcher
	unavailable  *unavailableTracker
	allocation   *allocationTable
	registration *registry

	nowFn func() float64
}

// New constructs a Manager. nowFn supplies monotonic seconds so tests
// control time explicitly.
func New(cfg config.Config, nowFn func() float64) *Manager {
	m := &Manager{
		cfg:                cfg,
		tracker:            tracker.New(),
		allHistory:         map[string]*serviceinfo.ServiceInfo{},
		connectableHistory: map[string]*serviceinfo.ServiceInfo{},
		nowFn:              nowFn,
	}
	m.dispatch = newDispatcher()
	m.unavailable = newUnavailableTracker()
	m.allocation = newAllocationTable()
	m.registration = newRegistry(m)
	return m
}

// ScannerAdvReceived is the scanner.Publisher boundary (spec §4.7's
// scanner_adv_received): runs source-selection, the Apple fast filter,
// history updates, tracker collection, and callback dispatch, all
// synchronously (spec §5: "strictly synchronous and must not suspend").
func (m *Manager) ScannerAdvReceived(new *serviceinfo.ServiceInfo) {
	old, hadOld := m.allHistory[new.Address]
	if hadOld && !m.accept(new, old) {
		return
	}

	m.allHistory[new.Address] = new
	if new.Connectable {
		m.connectableHistory[new.Address] = new
	}
	m.tracker.Collect(new.Address, new.Source, new.Time)

	if m.isAppleOnlyFilteredOut(new) {
		return
	}
	m.dispatch.fanOut(new)
}

// accept implements spec §4.7.1's source-selection policy.
func (m *Manager) accept(new, old *serviceinfo.ServiceInfo) bool {
	if new.Source == old.Source {
		return true
	}
	if int(new.RSSI)-int(old.RSSI) >= int(m.cfg.RSSISwitchThreshold) {
		return true
	}
	measured, hasMeasured := m.tracker.Interval(new.Address)
	fallback, hasFallback := m.tracker.FallbackInterval(new.Address)
	stale := m.cfg.StaleSeconds(measured, fallback, hasMeasured, hasFallback)
	return new.Time-old.Time > stale
}

// isAppleOnlyFilteredOut implements spec §4.7.2: an advertisement whose
// only content is non-matching Apple manufacturer data is dropped
// before dispatch (history has already been updated by the caller).
func (m *Manager) isAppleOnlyFilteredOut(si *serviceinfo.ServiceInfo) bool {
	appleData, isApple := si.ManufacturerData[appleManufacturerID]
	if !isApple {
		return false
	}
	if si.Name != "" || len(si.ServiceUUIDs) > 0 || len(si.ServiceData) > 0 {
		return false
	}
	if len(si.ManufacturerData) > 1 {
		return false // other manufacturer ids present, not Apple-only
	}
	if len(appleData) == 0 {
		return true
	}
	return !m.cfg.IsAppleAllowedFirstByte(appleData[0])
}

// DiscoveredDevice pairs the platform device handle with its
// advertisement projection (spec §6:
// async_all_discovered_devices() -> sequence<(device, advertisement)>).
type DiscoveredDevice struct {
	Device       any
	Advertisement *serviceinfo.Advertisement
}

// AllDiscoveredDevices returns every device currently in history.
func (m *Manager) AllDiscoveredDevices() []DiscoveredDevice {
	out := make([]DiscoveredDevice, 0, len(m.allHistory))
	for _, si := range m.allHistory {
		out = append(out, DiscoveredDevice{Device: si.Device, Advertisement: si.Advertisement()})
	}
	return out
}

// DiscoveredServiceInfo returns the connectable or full history
// snapshot (spec §6: async_discovered_service_info(connectable: bool)).
func (m *Manager) DiscoveredServiceInfo(connectable bool) []*serviceinfo.ServiceInfo {
	src := m.allHistory
	if connectable {
		src = m.connectableHistory
	}
	out := make([]*serviceinfo.ServiceInfo, 0, len(src))
	for _, si := range src {
		out = append(out, si)
	}
	return out
}

// History returns the live all_history map for persistence (spec §6's
// persisted-state contract); callers must treat it as read-only.
func (m *Manager) History() map[string]*serviceinfo.ServiceInfo {
	return m.allHistory
}

// Restore reinjects a previously persisted history map without routing
// it through ScannerAdvReceived, so accept() and tracker collection
// never run against restored entries and last_detection/expiry timers
// are not disturbed (spec §6: "restoring from disk must not trigger
// expiry callbacks").
func (m *Manager) Restore(history map[string]*serviceinfo.ServiceInfo) {
	for addr, si := range history {
		m.allHistory[addr] = si
		if si.Connectable {
			m.connectableHistory[addr] = si
		}
	}
}

// StartPeriodicSweeps begins the unavailable-tracking tick (spec
// §4.7.4) on the configured cadence.
func (m *Manager) StartPeriodicSweeps() reactor.CancelFunc {
	return reactor.Every(m.cfg.UnavailableSweepInterval, func() {
		m.runUnavailableSweep(m.nowFn())
	})
}

// ScannerQuietDiagnostic is the hook a Local scanner's watchdog calls
// into (spec §4.5: "emit a scanner-gone-quiet diagnostic"); wired via
// scanner.Local.OnQuiet by the process that constructs both.
func (m *Manager) ScannerQuietDiagnostic(source string) {
	consolelog.Line("WATCHDOG", consolelog.ColorYellow, "scanner "+source+" gone quiet")
}

var _ scanner.Publisher = (*Manager)(nil)
