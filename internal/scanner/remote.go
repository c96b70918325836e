package scanner

import (
	"time"

	"btcore/internal/adstruct"
	"btcore/internal/reactor"
	"btcore/internal/serviceinfo"
)

// Remote implements C4: a scanner that receives pre-parsed or raw
// advertisement payloads pushed in by external transports (spec §4.4).
type Remote struct {
	*Base

	ExpireSeconds float64

	previous map[string]*serviceinfo.ServiceInfo

	cancelExpiry reactor.CancelFunc
}

// NewRemote constructs a RemoteScanner. expireSeconds is both the
// merge-carry-forward staleness window and the expiry sweep interval
// basis (spec §4.4: "A single timer reschedules every expire_seconds/2").
func NewRemote(adapter, source string, connectable bool, expireSeconds float64, publisher Publisher) *Remote {
	return &Remote{
		Base:          NewBase(adapter, source, connectable, ModeNone, publisher),
		ExpireSeconds: expireSeconds,
		previous:      map[string]*serviceinfo.ServiceInfo{},
	}
}

// OnRawAdvertisement parses raw BLE AD-structure bytes and delegates to
// OnAdvertisement (spec §4.4's _async_on_raw_advertisement).
func (r *Remote) OnRawAdvertisement(address string, rssi int8, raw []byte, details any, at float64) {
	d := adstruct.Decode(raw)
	txPower := 0
	if d.TxPower != nil {
		txPower = int(*d.TxPower)
	}
	r.OnAdvertisement(address, rssi, d.LocalName, d.ServiceUUIDs, d.ServiceData, d.ManufacturerData, txPower, details, at, raw)
}

// OnAdvertisement is spec §4.4's _async_on_advertisement direct path:
// applies the merge-carry-forward policy against previous[address],
// publishes the merged ServiceInfo, and updates last-detection.
func (r *Remote) OnAdvertisement(
	address string,
	rssi int8,
	localName string,
	serviceUUIDs []string,
	serviceData map[string][]byte,
	manufacturerData map[uint16][]byte,
	txPower int,
	details any,
	at float64,
	raw []byte,
) {
	merged := r.merge(address, rssi, localName, serviceUUIDs, serviceData, manufacturerData, txPower, details, at, raw)
	r.previous[address] = merged
	r.Publish(merged)
}

// merge implements spec §4.4's carry-forward rule: for each of
// local_name, service_uuids, service_data, manufacturer_data, details,
// if the new value is empty/absent but the prior value is present and
// the new timestamp is within ExpireSeconds of the prior one, carry the
// prior value forward. manufacturer_data merges per manufacturer id.
func (r *Remote) merge(
	address string,
	rssi int8,
	localName string,
	serviceUUIDs []string,
	serviceData map[string][]byte,
	manufacturerData map[uint16][]byte,
	txPower int,
	details any,
	at float64,
	raw []byte,
) *serviceinfo.ServiceInfo {
	prior, hasPrior := r.previous[address]
	withinWindow := hasPrior && (at-prior.Time) <= r.ExpireSeconds

	name := localName
	if name == "" && withinWindow && prior.Name != "" {
		name = prior.Name
	}

	uuids := serviceUUIDs
	if len(uuids) == 0 && withinWindow && len(prior.ServiceUUIDs) > 0 {
		uuids = prior.ServiceUUIDs
	}

	svcData := serviceData
	if len(svcData) == 0 && withinWindow && len(prior.ServiceData) > 0 {
		svcData = prior.ServiceData
	}

	mfgData := manufacturerData
	if withinWindow && len(prior.ManufacturerData) > 0 {
		merged := make(map[uint16][]byte, len(prior.ManufacturerData)+len(manufacturerData))
		for id, v := range prior.ManufacturerData {
			merged[id] = v
		}
		for id, v := range manufacturerData {
			merged[id] = v // new subvalue supersedes the prior entry for that id
		}
		mfgData = merged
	}

	mergedDetails := details
	if mergedDetails == nil && withinWindow && prior.Details != nil {
		mergedDetails = prior.Details
	}

	return serviceinfo.New(
		name, address, rssi, mfgData, svcData, uuids,
		r.Source, nil, raw, r.Connectable, at, txPower, mergedDetails,
	)
}

// StartExpiry begins the periodic expiry sweep (spec §4.4): every
// ExpireSeconds/2, remove entries from previous whose last advertisement
// is older than ExpireSeconds. nowFn supplies the current monotonic
// time so tests can control it.
func (r *Remote) StartExpiry(nowFn func() float64) {
	if r.cancelExpiry != nil {
		return
	}
	interval := time.Duration(r.ExpireSeconds / 2 * float64(time.Second))
	r.cancelExpiry = reactor.Every(interval, func() {
		r.expireOnce(nowFn())
	})
}

// StopExpiry cancels the periodic sweep.
func (r *Remote) StopExpiry() {
	if r.cancelExpiry != nil {
		r.cancelExpiry()
		r.cancelExpiry = nil
	}
}

// expireOnce is the body of the sweep, exposed for deterministic tests.
func (r *Remote) expireOnce(now float64) {
	for addr, info := range r.previous {
		if now-info.Time > r.ExpireSeconds {
			delete(r.previous, addr)
			delete(r.discovered, addr)
		}
	}
}
