// Package snapshot persists and restores the manager's advertisement
// history as an opaque document (spec §6: "a JSON/CBOR document whose
// logical schema is mapping<address, ServiceInfo-as-dict>").
//
// Grounded on spec §6 directly; the CBOR codec is supplied by
// github.com/fxamacker/cbor/v2, a direct dependency of the pack's
// inabajunmr-ht repo.
package snapshot

import (
	"encoding/json"
	"os"

	"github.com/fxamacker/cbor/v2"

	"btcore/internal/serviceinfo"
)

// Entry is the document-shaped projection of one ServiceInfo, carrying
// only the fields meaningful to persist (spec §6: device handles and
// cached advertisement projections are runtime-only and are not part of
// the schema).
type Entry struct {
	Name             string            `json:"name" cbor:"name"`
	Address          string            `json:"address" cbor:"address"`
	RSSI             int8              `json:"rssi" cbor:"rssi"`
	ManufacturerData map[uint16][]byte `json:"manufacturer_data,omitempty" cbor:"manufacturer_data,omitempty"`
	ServiceData      map[string][]byte `json:"service_data,omitempty" cbor:"service_data,omitempty"`
	ServiceUUIDs     []string          `json:"service_uuids,omitempty" cbor:"service_uuids,omitempty"`
	Source           string            `json:"source" cbor:"source"`
	Connectable      bool              `json:"connectable" cbor:"connectable"`
	Time             float64           `json:"time" cbor:"time"`
	TxPower          int               `json:"tx_power" cbor:"tx_power"`
}

// Document is the on-disk schema: mapping<address, ServiceInfo-as-dict>.
type Document map[string]Entry

// ToEntry projects a ServiceInfo into its persisted form.
func ToEntry(si *serviceinfo.ServiceInfo) Entry {
	return Entry{
		Name:             si.Name,
		Address:          si.Address,
		RSSI:             si.RSSI,
		ManufacturerData: si.ManufacturerData,
		ServiceData:      si.ServiceData,
		ServiceUUIDs:     si.ServiceUUIDs,
		Source:           si.Source,
		Connectable:      si.Connectable,
		Time:             si.Time,
		TxPower:          si.TxPower,
	}
}

// ToServiceInfo rebuilds a ServiceInfo from a persisted Entry. Per spec
// §6 ("last_detection is NOT re-scheduled by restore"), callers must
// reinject the result directly into history rather than routing it
// through a scanner's normal accept/publish path, which would disturb
// watchdog and expiry timers.
func (e Entry) ToServiceInfo() *serviceinfo.ServiceInfo {
	return serviceinfo.New(
		e.Name, e.Address, e.RSSI, e.ManufacturerData, e.ServiceData, e.ServiceUUIDs,
		e.Source, nil, nil, e.Connectable, e.Time, e.TxPower, nil,
	)
}

// BuildDocument projects a full history map into a persistable Document.
func BuildDocument(history map[string]*serviceinfo.ServiceInfo) Document {
	doc := make(Document, len(history))
	for addr, si := range history {
		doc[addr] = ToEntry(si)
	}
	return doc
}

// Restore rebuilds a history map from a Document. connectable is
// preserved per-entry; the caller is responsible for not re-triggering
// expiry scheduling (see ToServiceInfo).
func Restore(doc Document) map[string]*serviceinfo.ServiceInfo {
	out := make(map[string]*serviceinfo.ServiceInfo, len(doc))
	for addr, entry := range doc {
		out[addr] = entry.ToServiceInfo()
	}
	return out
}

// DumpJSON writes history to path as a JSON document.
func DumpJSON(path string, history map[string]*serviceinfo.ServiceInfo) error {
	raw, err := json.Marshal(BuildDocument(history))
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadJSON reads a JSON document from path and rebuilds a history map.
func LoadJSON(path string) (map[string]*serviceinfo.ServiceInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return Restore(doc), nil
}

// DumpCBOR writes history to path as a CBOR document.
func DumpCBOR(path string, history map[string]*serviceinfo.ServiceInfo) error {
	raw, err := cbor.Marshal(BuildDocument(history))
	if err != nil {
		return err
	}
	return os.WriteFile(path, raw, 0o644)
}

// LoadCBOR reads a CBOR document from path and rebuilds a history map.
func LoadCBOR(path string) (map[string]*serviceinfo.ServiceInfo, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var doc Document
	if err := cbor.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	return Restore(doc), nil
}
