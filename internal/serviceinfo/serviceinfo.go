// Package serviceinfo holds the immutable per-advertisement record (C1)
// shared by every scanner and the manager.
package serviceinfo

// ServiceInfo is an immutable snapshot of one BLE advertisement. Fields are
// set once at construction; callers must treat a published ServiceInfo as
// read-only.
type ServiceInfo struct {
	Name             string
	Address          string
	RSSI             int8
	ManufacturerData map[uint16][]byte
	ServiceData      map[string][]byte
	ServiceUUIDs     []string
	Source           string
	Device           any
	Raw              []byte
	Connectable      bool
	Time             float64 // monotonic seconds
	TxPower          int
	Details          any // opaque platform/address-type data, never special-cased

	adv *Advertisement
}

// New builds a ServiceInfo from positional fields for the scanner fast
// path. Maps and slices are taken by reference; callers must not mutate
// them afterwards.
func New(
	name, address string,
	rssi int8,
	manufacturerData map[uint16][]byte,
	serviceData map[string][]byte,
	serviceUUIDs []string,
	source string,
	device any,
	raw []byte,
	connectable bool,
	t float64,
	txPower int,
	details any,
) *ServiceInfo {
	return &ServiceInfo{
		Name:             name,
		Address:          address,
		RSSI:             rssi,
		ManufacturerData: manufacturerData,
		ServiceData:      serviceData,
		ServiceUUIDs:     serviceUUIDs,
		Source:           source,
		Device:           device,
		Raw:              raw,
		Connectable:      connectable,
		Time:             t,
		TxPower:          txPower,
		Details:          details,
	}
}

// Advertisement is the lazily materialized projection of a ServiceInfo
// that subscribers actually read. LocalName is nil when the advertisement
// carried no local name, never an empty string.
type Advertisement struct {
	LocalName        *string
	ServiceUUIDs     []string
	ServiceData      map[string][]byte
	ManufacturerData map[uint16][]byte
	TxPower          int
	RSSI             int8
	PlatformData     any
}

// Advertisement returns the cached projection, materializing it on first
// access. Single-threaded (reactor-owned) callers only — no locking.
func (s *ServiceInfo) Advertisement() *Advertisement {
	if s.adv != nil {
		return s.adv
	}
	var name *string
	if s.Name != "" {
		n := s.Name
		name = &n
	}
	s.adv = &Advertisement{
		LocalName:        name,
		ServiceUUIDs:     s.ServiceUUIDs,
		ServiceData:      s.ServiceData,
		ManufacturerData: s.ManufacturerData,
		TxPower:          s.TxPower,
		RSSI:             s.RSSI,
		PlatformData:     s.Details,
	}
	return s.adv
}

// ToConnectable returns a copy of s with Connectable forced true, without
// re-parsing or re-materializing the cached advertisement. Used when a
// connectable scanner re-observes a device previously seen only
// passively (spec §4.1).
func (s *ServiceInfo) ToConnectable() *ServiceInfo {
	if s.Connectable {
		return s
	}
	cp := *s
	cp.Connectable = true
	cp.adv = nil
	if s.adv != nil {
		advCopy := *s.adv
		cp.adv = &advCopy
	}
	return &cp
}

// HasAnyField reports whether any of the AD-structure-derived fields
// (name, service UUIDs, service data, manufacturer data) carry data.
func (s *ServiceInfo) HasAnyField() bool {
	return s.Name != "" || len(s.ServiceUUIDs) > 0 || len(s.ServiceData) > 0 || len(s.ManufacturerData) > 0
}
