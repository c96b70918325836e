package snapshot

import (
	"path/filepath"
	"testing"

	"btcore/internal/serviceinfo"
)

func sampleHistory() map[string]*serviceinfo.ServiceInfo {
	return map[string]*serviceinfo.ServiceInfo{
		"AA:BB": serviceinfo.New("X", "AA:BB", -50, map[uint16][]byte{1: {0x01}}, nil, []string{"a"}, "s1", nil, nil, true, 42.0, 4, nil),
	}
}

func TestJSONRoundTripPreservesConnectable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.json")
	original := sampleHistory()

	if err := DumpJSON(path, original); err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	restored, err := LoadJSON(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := restored["AA:BB"]
	if got == nil || !got.Connectable {
		t.Fatalf("expected connectable preserved, got %+v", got)
	}
	if got.Name != "X" || got.RSSI != -50 {
		t.Fatalf("unexpected restored entry: %+v", got)
	}
}

func TestCBORRoundTripPreservesManufacturerData(t *testing.T) {
	path := filepath.Join(t.TempDir(), "state.cbor")
	original := sampleHistory()

	if err := DumpCBOR(path, original); err != nil {
		t.Fatalf("dump failed: %v", err)
	}
	restored, err := LoadCBOR(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}

	got := restored["AA:BB"]
	if got == nil || string(got.ManufacturerData[1]) != "\x01" {
		t.Fatalf("expected manufacturer data round-tripped, got %+v", got)
	}
}

func TestRestoreDoesNotPopulateTimeBeyondWhatWasStored(t *testing.T) {
	doc := Document{"AA:BB": {Address: "AA:BB", Time: 42.0, Connectable: false}}
	restored := Restore(doc)
	if restored["AA:BB"].Time != 42.0 {
		t.Fatalf("expected restored time to be exactly the stored value, got %v", restored["AA:BB"].Time)
	}
}
