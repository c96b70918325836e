package manager

import (
	"testing"
	"time"

	"btcore/internal/config"
	"btcore/internal/scanner"
	"btcore/internal/serviceinfo"
)

func newTestManager() *Manager {
	return New(config.NewBuilder().Build(), func() float64 { return 0 })
}

func si(address, source string, rssi int8, t float64, connectable bool) *serviceinfo.ServiceInfo {
	return serviceinfo.New("", address, rssi, nil, nil, nil, source, nil, nil, connectable, t, 0, nil)
}

// S1: source switch on RSSI.
func TestSourceSwitchOnRSSIThreshold(t *testing.T) {
	m := newTestManager()
	const addr = "AA:BB:CC:DD:EE:01"

	var received []string
	m.RegisterCallback(Filter{}, func(device any, adv *serviceinfo.Advertisement) {
		received = append(received, "fired")
	})

	m.ScannerAdvReceived(si(addr, "s1", -80, 100.0, false))
	m.ScannerAdvReceived(si(addr, "s2", -85, 100.5, false)) // rssi diff -5, dropped
	m.ScannerAdvReceived(si(addr, "s2", -60, 101.0, false)) // rssi diff +20 >= 16, accepted

	if m.allHistory[addr].Source != "s2" {
		t.Fatalf("expected s2 to own history after third event, got %q", m.allHistory[addr].Source)
	}
	if len(received) != 2 {
		t.Fatalf("expected 2 subscriber invocations (first and third; the second is dropped by policy before dispatch), got %d", len(received))
	}
}

// S2: stale takeover.
func TestStaleTakeover(t *testing.T) {
	m := newTestManager()
	const addr = "AA:BB:CC:DD:EE:02"

	m.ScannerAdvReceived(si(addr, "s1", -70, 100.0, false))
	m.ScannerAdvReceived(si(addr, "s2", -75, 200.0, false)) // gap 100 > default stale(63)

	if m.allHistory[addr].Source != "s2" {
		t.Fatalf("expected stale takeover by s2, got %q", m.allHistory[addr].Source)
	}
}

// S4: Apple filter.
func TestAppleFastFilterDropsNonMatchingFirstByte(t *testing.T) {
	m := newTestManager()
	const addr = "AA:BB:CC:DD:EE:04"

	fired := 0
	m.RegisterCallback(Filter{}, func(device any, adv *serviceinfo.Advertisement) { fired++ })

	dropped := serviceinfo.New("", addr, -50, map[uint16][]byte{0x004C: {0x07, 0x00}}, nil, nil, "s1", nil, nil, false, 1.0, 0, nil)
	m.ScannerAdvReceived(dropped)
	if fired != 0 {
		t.Fatalf("expected non-matching Apple advertisement to be dropped before dispatch")
	}
	if _, ok := m.allHistory[addr]; !ok {
		t.Fatalf("expected history to still be updated for the dropped advertisement")
	}

	accepted := serviceinfo.New("", addr, -50, map[uint16][]byte{0x004C: {0x02, 0x00}}, nil, nil, "s1", nil, nil, false, 2.0, 0, nil)
	m.ScannerAdvReceived(accepted)
	if fired != 1 {
		t.Fatalf("expected matching Apple advertisement to reach subscriber, fired=%d", fired)
	}
}

// Invariant 4: dispatching through N subscribers with K failures yields
// exactly N-K successful invocations.
func TestDispatchIsolatesCallbackFailures(t *testing.T) {
	m := newTestManager()
	successes := 0
	m.RegisterCallback(Filter{}, func(device any, adv *serviceinfo.Advertisement) { panic("boom") })
	m.RegisterCallback(Filter{}, func(device any, adv *serviceinfo.Advertisement) { successes++ })
	m.RegisterCallback(Filter{}, func(device any, adv *serviceinfo.Advertisement) { panic("boom2") })
	m.RegisterCallback(Filter{}, func(device any, adv *serviceinfo.Advertisement) { successes++ })

	m.ScannerAdvReceived(si("AA:BB:CC:DD:EE:05", "s1", -50, 1.0, false))

	if successes != 2 {
		t.Fatalf("expected exactly 2 successful invocations out of 4 subscribers, got %d", successes)
	}
}

func TestDispatchFilterMatchesOnlyIntersectingUUIDs(t *testing.T) {
	m := newTestManager()
	fired := 0
	m.RegisterCallback(Filter{UUIDs: []string{"face"}}, func(device any, adv *serviceinfo.Advertisement) { fired++ })

	noMatch := serviceinfo.New("", "AA:BB", -50, nil, nil, []string{"other"}, "s1", nil, nil, false, 1.0, 0, nil)
	m.ScannerAdvReceived(noMatch)
	if fired != 0 {
		t.Fatalf("expected no match for disjoint uuid sets")
	}

	match := serviceinfo.New("", "AA:BB", -50, nil, nil, []string{"face"}, "s1", nil, nil, false, 2.0, 0, nil)
	m.ScannerAdvReceived(match)
	if fired != 1 {
		t.Fatalf("expected match when uuid sets intersect")
	}
}

// Invariant 6: expiry idempotency.
func TestUnavailableSweepIsIdempotent(t *testing.T) {
	m := newTestManager()
	m.ScannerAdvReceived(si("AA:BB", "s1", -50, 0.0, false))

	m.runUnavailableSweep(1000.0)
	if _, ok := m.allHistory["AA:BB"]; ok {
		t.Fatalf("expected address evicted by first sweep")
	}

	fired := 0
	m.RegisterUnavailableCallback("AA:BB", func(address string) { fired++ })
	m.runUnavailableSweep(1000.0)
	if fired != 0 {
		t.Fatalf("expected second sweep to emit no further callbacks, fired=%d", fired)
	}
}

// Cancelling two unavailable callbacks on the same address out of order
// must not leak the survivor: the cancel handle removes by stable id,
// never by captured slice position.
func TestUnavailableCallbackCancelIsStableUnderOutOfOrderRemoval(t *testing.T) {
	m := newTestManager()

	var firedA, firedB int
	cancelA := m.RegisterUnavailableCallback("AA:BB", func(address string) { firedA++ })
	cancelB := m.RegisterUnavailableCallback("AA:BB", func(address string) { firedB++ })

	cancelA()
	cancelB()

	m.ScannerAdvReceived(si("AA:BB", "s1", -50, 0.0, false))
	m.runUnavailableSweep(1000.0)

	if firedA != 0 || firedB != 0 {
		t.Fatalf("expected both cancelled callbacks to stay silent, firedA=%d firedB=%d", firedA, firedB)
	}
}

func TestUnavailableCallbackFiresOnEviction(t *testing.T) {
	m := newTestManager()
	m.ScannerAdvReceived(si("AA:BB", "s1", -50, 0.0, false))

	var gotAddr string
	m.RegisterUnavailableCallback("AA:BB", func(address string) { gotAddr = address })
	m.runUnavailableSweep(1000.0)

	if gotAddr != "AA:BB" {
		t.Fatalf("expected unavailable callback fired with AA:BB, got %q", gotAddr)
	}
}

// Invariant 2: connectable_history subset of all_history, connectable==true.
func TestConnectableHistoryInvariant(t *testing.T) {
	m := newTestManager()
	m.ScannerAdvReceived(si("AA:BB", "s1", -50, 1.0, true))

	entry, ok := m.connectableHistory["AA:BB"]
	if !ok || !entry.Connectable {
		t.Fatalf("expected connectable history entry, got %+v ok=%v", entry, ok)
	}
	if _, ok := m.allHistory["AA:BB"]; !ok {
		t.Fatalf("expected connectable entries to also appear in all_history")
	}
}

// Slot allocation coalescing (S6).
func TestAllocationNotifyCoalescesBurst(t *testing.T) {
	m := newTestManager()
	m.SetAdapterSlots("hci0", 4)

	calls := 0
	var last Allocation
	m.RegisterAllocationCallback("hci0", func(a Allocation) {
		calls++
		last = a
	})

	m.OnConnectingChanged("hci0", 1)
	m.OnConnectingChanged("hci0", 2)
	m.OnConnectingChanged("hci0", 3)

	deadline := time.Now().Add(time.Second)
	for calls == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	// give any extra (incorrectly uncoalesced) tick a chance to land
	// before asserting exactly one call fired for the whole burst.
	time.Sleep(20 * time.Millisecond)

	if calls != 1 {
		t.Fatalf("expected exactly one coalesced notification, got %d", calls)
	}
	if last.Allocated != 3 || last.Free != 1 {
		t.Fatalf("expected final snapshot allocated=3 free=1, got %+v", last)
	}
}

// Base.AddConnecting/FinishedConnecting wired end-to-end through
// RegisterScanner to the manager's allocation table (spec §4.7.5
// trigger (a)).
func TestRegisteredScannerConnectingCountReachesAllocation(t *testing.T) {
	m := newTestManager()
	m.SetAdapterSlots("hci0", 4)
	s1 := scanner.NewBase("hci0", "s1", false, scanner.ModeNone, m)
	m.RegisterScanner(s1)

	calls := 0
	var last Allocation
	m.RegisterAllocationCallback("hci0", func(a Allocation) {
		calls++
		last = a
	})

	s1.AddConnecting("AA:BB", 1.0)
	s1.AddConnecting("CC:DD", 2.0)
	s1.FinishedConnecting("AA:BB", true)

	deadline := time.Now().Add(time.Second)
	for calls == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	if calls == 0 {
		t.Fatalf("expected scanner connect-slot bookkeeping to reach the allocation callback")
	}
	if last.Allocated != 1 || last.Free != 3 {
		t.Fatalf("expected final snapshot allocated=1 free=3, got %+v", last)
	}
}

// Scanner registration and re-election.
func TestUnregisterReelectsAlternateOwner(t *testing.T) {
	m := newTestManager()

	pub1 := &fakeManagerPublisher{}
	s1 := scanner.NewBase("hci0", "s1", false, scanner.ModeNone, m)
	s2 := scanner.NewBase("hci0", "s2", false, scanner.ModeNone, m)
	cancel1 := m.RegisterScanner(s1)
	m.RegisterScanner(s2)
	_ = pub1

	s1.Publish(si("AA:BB", "s1", -50, 1.0, false))
	s2.Publish(si("AA:BB", "s2", -90, 0.5, false)) // weaker/older, dropped by policy

	cancel1()

	if _, ok := m.allHistory["AA:BB"]; !ok {
		t.Fatalf("expected re-election to keep the address alive via s2")
	}
}

func TestUnregisterDisappearsWhenNoAlternateOwner(t *testing.T) {
	m := newTestManager()
	s1 := scanner.NewBase("hci0", "s1", false, scanner.ModeNone, m)
	cancel1 := m.RegisterScanner(s1)

	var disappeared string
	m.RegisterDisappearedCallback(func(address string) { disappeared = address })

	s1.Publish(si("AA:BB", "s1", -50, 1.0, false))
	cancel1()

	if disappeared != "AA:BB" {
		t.Fatalf("expected disappeared callback for AA:BB, got %q", disappeared)
	}
	if _, ok := m.allHistory["AA:BB"]; ok {
		t.Fatalf("expected address removed from history after disappearance")
	}
}

type fakeManagerPublisher struct{}

func (fakeManagerPublisher) ScannerAdvReceived(si *serviceinfo.ServiceInfo) {}
