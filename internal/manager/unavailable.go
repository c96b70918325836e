package manager

import "btcore/internal/reactor"

// addressCallback is a registered per-address or disappearance callback,
// keyed by a stable id (not its slice position) so cancellation removes
// the right entry regardless of registration/cancellation order (spec
// Design Notes: "returned cancel-handles close over that identity and
// remove in O(1)").
type addressCallback struct {
	id int
	fn func(address string)
}

// unavailableTracker holds the per-address and disappearance callback
// registries consulted by the periodic sweep (spec §4.7.4).
type unavailableTracker struct {
	perAddress  map[string][]*addressCallback
	disappeared []*addressCallback
	nextID      int
}

func newUnavailableTracker() *unavailableTracker {
	return &unavailableTracker{perAddress: map[string][]*addressCallback{}}
}

// RegisterUnavailableCallback fires callback once when address is
// evicted from history for going stale (spec §6).
func (m *Manager) RegisterUnavailableCallback(address string, callback func(address string)) reactor.CancelFunc {
	u := m.unavailable
	u.nextID++
	id := u.nextID
	u.perAddress[address] = append(u.perAddress[address], &addressCallback{id: id, fn: callback})
	return func() { u.removePerAddress(address, id) }
}

func (u *unavailableTracker) removePerAddress(address string, id int) {
	cbs := u.perAddress[address]
	for i, cb := range cbs {
		if cb.id == id {
			u.perAddress[address] = append(cbs[:i], cbs[i+1:]...)
			return
		}
	}
}

// RegisterDisappearedCallback fires callback whenever any address's
// sole source is unregistered and no alternate owner can be elected
// (spec §4.7.6/§6).
func (m *Manager) RegisterDisappearedCallback(callback func(address string)) reactor.CancelFunc {
	u := m.unavailable
	u.nextID++
	id := u.nextID
	u.disappeared = append(u.disappeared, &addressCallback{id: id, fn: callback})
	return func() { u.removeDisappeared(id) }
}

func (u *unavailableTracker) removeDisappeared(id int) {
	for i, cb := range u.disappeared {
		if cb.id == id {
			u.disappeared = append(u.disappeared[:i], u.disappeared[i+1:]...)
			return
		}
	}
}

// runUnavailableSweep implements spec §4.7.4: walk all_history evicting
// anything older than its effective_expiry, firing the per-address
// unavailable callbacks; invariant 6 requires the sweep to be
// idempotent, which holds because entries are only ever evicted once.
func (m *Manager) runUnavailableSweep(now float64) {
	stale := m.staleAddresses(now)
	for _, addr := range stale {
		delete(m.allHistory, addr)
		delete(m.connectableHistory, addr)
		m.tracker.RemoveAddress(addr)
		m.fireUnavailable(addr)
	}
}

func (m *Manager) staleAddresses(now float64) []string {
	var stale []string
	for addr, info := range m.allHistory {
		if now-info.Time > m.effectiveExpiry(addr) {
			stale = append(stale, addr)
		}
	}
	return stale
}

func (m *Manager) effectiveExpiry(addr string) float64 {
	measured, hasMeasured := m.tracker.Interval(addr)
	fallback, hasFallback := m.tracker.FallbackInterval(addr)
	return m.cfg.EffectiveExpiry(measured, fallback, hasMeasured, hasFallback)
}

func (m *Manager) fireUnavailable(addr string) {
	// snapshot: a callback may unregister itself mid-dispatch (spec §4.7.4).
	snapshot := append([]*addressCallback(nil), m.unavailable.perAddress[addr]...)
	delete(m.unavailable.perAddress, addr)
	for _, cb := range snapshot {
		invokeAddressCallbackSafely(cb.fn, addr)
	}
}

// fireDisappeared evicts addr from history (if a prior sole-source
// sweep determined no alternate owner exists) and fires every
// registered disappeared callback.
func (m *Manager) fireDisappeared(addr string) {
	delete(m.allHistory, addr)
	delete(m.connectableHistory, addr)
	m.tracker.RemoveAddress(addr)

	snapshot := append([]*addressCallback(nil), m.unavailable.disappeared...)
	for _, cb := range snapshot {
		invokeAddressCallbackSafely(cb.fn, addr)
	}
}

func invokeAddressCallbackSafely(cb func(address string), addr string) {
	defer func() { recover() }()
	cb(addr)
}
