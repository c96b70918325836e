package manager

import "btcore/internal/reactor"

// Allocation is the per-adapter connection-slot snapshot delivered to
// allocation callbacks (spec §4.7.5).
type Allocation struct {
	Slots     int
	Allocated int
	Free      int
}

type allocationSubscription struct {
	id       int
	adapter  string
	callback func(Allocation)
}

// allocationTable tracks per-adapter slot totals/usage and the
// coalesced notify trigger for each adapter.
type allocationTable struct {
	totals   map[string]int
	used     map[string]int
	subs     []*allocationSubscription
	nextID   int
	triggers map[string]func()
}

func newAllocationTable() *allocationTable {
	return &allocationTable{
		totals:   map[string]int{},
		used:     map[string]int{},
		triggers: map[string]func(){},
	}
}

// SetAdapterSlots declares the total connection-slot count for adapter.
func (m *Manager) SetAdapterSlots(adapter string, slots int) {
	m.allocation.totals[adapter] = slots
	m.notifyAllocation(adapter)
}

// RegisterAllocationCallback fires callback with adapter's current slot
// snapshot whenever it changes (spec §6).
func (m *Manager) RegisterAllocationCallback(adapter string, callback func(Allocation)) reactor.CancelFunc {
	a := m.allocation
	a.nextID++
	id := a.nextID
	a.subs = append(a.subs, &allocationSubscription{id: id, adapter: adapter, callback: callback})
	return func() {
		for i, sub := range a.subs {
			if sub.id == id {
				a.subs = append(a.subs[:i], a.subs[i+1:]...)
				return
			}
		}
	}
}

// OnConnectingChanged is invoked by scanner registration bookkeeping
// whenever add_connecting/finished_connecting changes an adapter's
// used-slot count (spec §4.7.5 trigger (a)).
func (m *Manager) OnConnectingChanged(adapter string, inProgress int) {
	m.allocation.used[adapter] = inProgress
	m.scheduleAllocationNotify(adapter)
}

// OnConnectionsReported is invoked when the management-protocol codec
// resolves a GET_CONNECTIONS completion (spec §4.7.5 trigger (b)).
func (m *Manager) OnConnectionsReported(adapter string, activeConnections int) {
	m.allocation.used[adapter] = activeConnections
	m.scheduleAllocationNotify(adapter)
}

// scheduleAllocationNotify coalesces bursts of allocation changes for
// one adapter into a single notify tick (spec §4.7.5: "coalescing
// window: one event-loop iteration").
func (m *Manager) scheduleAllocationNotify(adapter string) {
	a := m.allocation
	trigger, ok := a.triggers[adapter]
	if !ok {
		trigger = reactor.Coalesce(func() { m.notifyAllocation(adapter) })
		a.triggers[adapter] = trigger
	}
	trigger()
}

func (m *Manager) notifyAllocation(adapter string) {
	a := m.allocation
	total := a.totals[adapter]
	used := a.used[adapter]
	free := total - used
	if free < 0 {
		free = 0
	}
	snap := Allocation{Slots: total, Allocated: used, Free: free}

	for _, sub := range a.subs {
		if sub.adapter == adapter {
			sub.callback(snap)
		}
	}
}
