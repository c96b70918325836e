package manager

import (
	"btcore/internal/consolelog"
	"btcore/internal/reactor"
	"btcore/internal/serviceinfo"
)

// Filter restricts a callback to advertisements whose service UUIDs
// intersect UUIDs. An empty Filter matches everything (spec §4.7.3).
type Filter struct {
	UUIDs []string
}

type subscription struct {
	id       int
	callback func(device any, adv *serviceinfo.Advertisement)
	filter   Filter
}

// dispatcher holds the registered callbacks fanned out to on every
// accepted, non-filtered advertisement.
type dispatcher struct {
	subs   []*subscription
	nextID int
}

func newDispatcher() *dispatcher {
	return &dispatcher{}
}

// RegisterCallback subscribes callback to every accepted advertisement
// whose service UUIDs match filter (spec §6:
// register_callback(callback, filters={"UUIDs": [...]})).
func (m *Manager) RegisterCallback(filter Filter, callback func(device any, adv *serviceinfo.Advertisement)) reactor.CancelFunc {
	return m.dispatch.register(filter, callback)
}

func (d *dispatcher) register(filter Filter, callback func(device any, adv *serviceinfo.Advertisement)) reactor.CancelFunc {
	d.nextID++
	id := d.nextID
	sub := &subscription{id: id, callback: callback, filter: filter}
	d.subs = append(d.subs, sub)
	return func() { d.unregister(id) }
}

func (d *dispatcher) unregister(id int) {
	for i, sub := range d.subs {
		if sub.id == id {
			d.subs = append(d.subs[:i], d.subs[i+1:]...)
			return
		}
	}
}

// fanOut invokes every matching subscriber, isolating any one failure
// (spec §4.7.3/§7: "a callback raising an exception is logged and
// skipped; one failure must not prevent others from running"). If no
// subscribers are registered, the advertisement projection is never
// materialized (spec §4.7.3: "Materialising advertisement_data is
// skipped entirely if bleak_callbacks is empty").
func (d *dispatcher) fanOut(si *serviceinfo.ServiceInfo) {
	if len(d.subs) == 0 {
		return
	}
	// snapshot so a callback unregistering itself mid-dispatch doesn't
	// perturb this pass (spec §4.7.4 applies the same rule to sweeps).
	snapshot := append([]*subscription(nil), d.subs...)
	var adv *serviceinfo.Advertisement

	for _, sub := range snapshot {
		if !matches(sub.filter, si.ServiceUUIDs) {
			continue
		}
		if adv == nil {
			adv = si.Advertisement()
		}
		invokeSafely(sub.callback, si.Device, adv)
	}
}

func matches(filter Filter, serviceUUIDs []string) bool {
	if len(filter.UUIDs) == 0 {
		return true
	}
	for _, want := range filter.UUIDs {
		for _, have := range serviceUUIDs {
			if want == have {
				return true
			}
		}
	}
	return false
}

// invokeSafely recovers a panicking callback, treating it the same as
// spec §7's CallbackFailure: logged and absorbed.
func invokeSafely(callback func(device any, adv *serviceinfo.Advertisement), device any, adv *serviceinfo.Advertisement) {
	defer func() {
		if r := recover(); r != nil {
			consolelog.Linef("[CALLBACK]", consolelog.ColorRed, "subscriber panicked: %v", r)
		}
	}()
	callback(device, adv)
}
