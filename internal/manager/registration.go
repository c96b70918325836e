package manager

import (
	"btcore/internal/reactor"
	"btcore/internal/scanner"
	"btcore/internal/serviceinfo"
)

// registrationCallback fires with (scanner, added) whenever a scanner
// registers or unregisters (spec §4.7.6/§6).
type registrationCallback func(s *scanner.Base, added bool)

// registry tracks every scanner registered with the manager, indexed
// by source and by adapter (spec §4.7.6).
type registry struct {
	m *Manager

	connectable   map[string]*scanner.Base
	nonConnect    map[string]*scanner.Base
	bySource      map[string]*scanner.Base
	byAdapter     map[string][]*scanner.Base
	callbacks     []registrationCallback
}

func newRegistry(m *Manager) *registry {
	return &registry{
		m:           m,
		connectable: map[string]*scanner.Base{},
		nonConnect:  map[string]*scanner.Base{},
		bySource:    map[string]*scanner.Base{},
		byAdapter:   map[string][]*scanner.Base{},
	}
}

// RegisterScannerRegistrationCallback fires callback on every scanner
// register/unregister (spec §6).
func (m *Manager) RegisterScannerRegistrationCallback(callback func(s *scanner.Base, added bool)) reactor.CancelFunc {
	r := m.registration
	r.callbacks = append(r.callbacks, callback)
	idx := len(r.callbacks) - 1
	return func() {
		if idx < len(r.callbacks) {
			r.callbacks[idx] = func(*scanner.Base, bool) {}
		}
	}
}

// RegisterScanner places base into the appropriate connectable/non-
// connectable set, indexes it by source and adapter, and fires
// scanner_registration_callbacks with added=true (spec §4.7.6). The
// returned cancel handle unregisters it.
func (m *Manager) RegisterScanner(base *scanner.Base) reactor.CancelFunc {
	r := m.registration

	if base.Connectable {
		r.connectable[base.Source] = base
	} else {
		r.nonConnect[base.Source] = base
	}
	r.bySource[base.Source] = base
	r.byAdapter[base.Adapter] = append(r.byAdapter[base.Adapter], base)
	base.SetConnectingNotifier(func(adapter string, _ int) {
		inProgress := 0
		for _, s := range r.byAdapter[adapter] {
			inProgress += s.ConnectionsInProgress()
		}
		m.OnConnectingChanged(adapter, inProgress)
	})

	r.notify(base, true)

	return func() { m.unregisterScanner(base) }
}

// unregisterScanner implements spec §4.7.6's unregister: removes base
// from every index, fires scanner_registration_callbacks with
// added=false, then re-runs source-selection for every address base had
// discovered to elect an alternate owner (or disappear the device if
// none remains).
func (m *Manager) unregisterScanner(base *scanner.Base) {
	r := m.registration

	delete(r.connectable, base.Source)
	delete(r.nonConnect, base.Source)
	delete(r.bySource, base.Source)
	adapterScanners := r.byAdapter[base.Adapter]
	for i, s := range adapterScanners {
		if s == base {
			r.byAdapter[base.Adapter] = append(adapterScanners[:i], adapterScanners[i+1:]...)
			break
		}
	}

	r.notify(base, false)

	for addr := range base.Discovered() {
		if cur, ok := m.allHistory[addr]; !ok || cur.Source != base.Source {
			continue // the address's current history is no longer owned by base
		}
		m.reelect(addr, base)
	}
}

func (r *registry) notify(base *scanner.Base, added bool) {
	snapshot := append([]registrationCallback(nil), r.callbacks...)
	for _, cb := range snapshot {
		invokeRegistrationCallbackSafely(cb, base, added)
	}
}

func invokeRegistrationCallbackSafely(cb registrationCallback, base *scanner.Base, added bool) {
	defer func() { recover() }()
	cb(base, added)
}

// reelect implements the "re-run source-selection to elect an
// alternate owner" half of spec §4.7.6: among every still-registered
// scanner's discovered table for addr, pick the freshest observation;
// if none remain, the address disappears.
func (m *Manager) reelect(addr string, unregistering *scanner.Base) {
	var best *serviceinfo.ServiceInfo

	for _, s := range m.registration.bySource {
		if s == unregistering {
			continue
		}
		si, ok := s.Discovered()[addr]
		if !ok {
			continue
		}
		if best == nil || si.Time > best.Time {
			best = si
		}
	}

	if best == nil {
		m.fireDisappeared(addr)
		return
	}

	m.allHistory[addr] = best
	if best.Connectable {
		m.connectableHistory[addr] = best
	}
}
