// Package scanner implements the Base Scanner (C3), Remote Scanner (C4),
// and Local Scanner (C5) components.
//
// Grounded on houneTeam-pible_go's internal/bluetooth/scanner.go
// (StartContinuousScanAndConnect's inFlight/lastConnAttempt maps) for
// connect-slot bookkeeping, generalized from a connect-worker-pool gate
// into the per-scanner state spec §3 names.
package scanner

import "btcore/internal/serviceinfo"

// Publisher is the manager-facing boundary a scanner pushes accepted
// advertisements through (spec §4.7's scanner_adv_received). Modeled as
// a non-owning interface per Design Notes ("never shared ownership" for
// the manager<->scanner back-reference).
type Publisher interface {
	ScannerAdvReceived(si *serviceinfo.ServiceInfo)
}

// Base holds the ScannerState fields of spec §3 shared by every scanner
// kind. All mutation happens from the single reactor goroutine; no
// internal locking.
type Base struct {
	Adapter     string
	Source      string
	Connectable bool
	Name        string
	Mode        Mode
	Scanning    bool

	lastDetectionMonotonic float64
	startTimeMonotonic     float64

	connectingCount   int
	connectFailures   map[string]int
	connectInProgress map[string]float64
	discovered        map[string]*serviceinfo.ServiceInfo

	publisher           Publisher
	onConnectingChanged func(adapter string, inProgress int)
}

// NewBase constructs a Base scanner. publisher receives accepted
// advertisements via ScannerAdvReceived.
func NewBase(adapter, source string, connectable bool, mode Mode, publisher Publisher) *Base {
	return &Base{
		Adapter:           adapter,
		Source:            source,
		Connectable:       connectable,
		Mode:              mode,
		connectFailures:   map[string]int{},
		connectInProgress: map[string]float64{},
		discovered:        map[string]*serviceinfo.ServiceInfo{},
		publisher:         publisher,
	}
}

// GetDiscoveredDeviceAdvertisementData returns the device handle and
// advertisement projection last recorded for address on this scanner.
func (b *Base) GetDiscoveredDeviceAdvertisementData(address string) (device any, adv *serviceinfo.Advertisement, ok bool) {
	si, found := b.discovered[address]
	if !found {
		return nil, nil, false
	}
	return si.Device, si.Advertisement(), true
}

// TimeSinceLastDetection returns now minus the last time this scanner
// accepted any advertisement.
func (b *Base) TimeSinceLastDetection(now float64) float64 {
	return now - b.lastDetectionMonotonic
}

// ConnectionsInProgress returns the current connect-slot count,
// maintaining spec §3's invariant connecting_count == |connect_in_progress|.
func (b *Base) ConnectionsInProgress() int {
	return b.connectingCount
}

// ConnectionFailures returns the recorded failure count for address on
// this scanner.
func (b *Base) ConnectionFailures(address string) int {
	return b.connectFailures[address]
}

// SetConnectingNotifier registers the callback invoked after every
// change to this scanner's in-flight connection count, keyed by adapter
// (spec §4.7.5 trigger (a): "a scanner reports add_connecting/
// finished_connecting"). Wired by Manager.RegisterScanner to
// Manager.OnConnectingChanged.
func (b *Base) SetConnectingNotifier(fn func(adapter string, inProgress int)) {
	b.onConnectingChanged = fn
}

// AddConnecting records a new in-flight connection attempt for address,
// starting at monotonic time now.
func (b *Base) AddConnecting(address string, now float64) {
	if _, already := b.connectInProgress[address]; already {
		return
	}
	b.connectInProgress[address] = now
	b.connectingCount = len(b.connectInProgress)
	b.notifyConnectingChanged()
}

// FinishedConnecting clears address's in-flight entry. If connected is
// false, the address's failure count is incremented.
func (b *Base) FinishedConnecting(address string, connected bool) {
	if _, ok := b.connectInProgress[address]; !ok {
		return
	}
	delete(b.connectInProgress, address)
	b.connectingCount = len(b.connectInProgress)
	if !connected {
		b.connectFailures[address]++
	}
	b.notifyConnectingChanged()
}

// ClearConnectionHistory resets all connect-slot bookkeeping atomically.
func (b *Base) ClearConnectionHistory() {
	b.connectInProgress = map[string]float64{}
	b.connectingCount = 0
	b.connectFailures = map[string]int{}
	b.notifyConnectingChanged()
}

func (b *Base) notifyConnectingChanged() {
	if b.onConnectingChanged != nil {
		b.onConnectingChanged(b.Adapter, b.connectingCount)
	}
}

// ScoreConnectionPaths implements spec §4.3's scoring formula:
// score = rssi_diff - k1*in_progress_on_scanner - k2*previous_failures_on_scanner,
// evaluated against this scanner as the candidate connection path for
// some address. Higher wins.
func (b *Base) ScoreConnectionPaths(rssiDiff float64, address string, k1, k2 float64) float64 {
	return rssiDiff - k1*float64(b.ConnectionsInProgress()) - k2*float64(b.ConnectionFailures(address))
}

// recordDiscovered stores si under its own address in this scanner's
// discovered table, enforcing spec §3's invariant discovered[a].source
// == self.source, and advances the last-detection clock.
func (b *Base) recordDiscovered(si *serviceinfo.ServiceInfo) {
	if si.Source != b.Source {
		return
	}
	b.discovered[si.Address] = si
	if si.Time > b.lastDetectionMonotonic {
		b.lastDetectionMonotonic = si.Time
	}
}

// FreeSlotCount returns the configured slot total minus connections
// currently in progress, floored at 0. The manager does not call it and
// does not rank connection paths, so no free-slot tie-break is applied.
func (b *Base) FreeSlotCount(totalSlots int) int {
	free := totalSlots - b.connectingCount
	if free < 0 {
		return 0
	}
	return free
}

// Discovered returns the address->ServiceInfo table for this scanner
// (spec §4.7.6's unregister walks this to re-run source-selection).
func (b *Base) Discovered() map[string]*serviceinfo.ServiceInfo {
	return b.discovered
}

// Publish forwards an accepted advertisement to the manager boundary.
func (b *Base) Publish(si *serviceinfo.ServiceInfo) {
	b.recordDiscovered(si)
	if b.publisher != nil {
		b.publisher.ScannerAdvReceived(si)
	}
}
