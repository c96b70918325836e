package scanner

import (
	"testing"

	tg "tinygo.org/x/bluetooth"
)

func TestClassifyDetailsDefaultIsPublic(t *testing.T) {
	var addr tg.Address
	got := classifyDetails(addr)
	info, ok := got.(AddressInfo)
	if !ok {
		t.Fatalf("expected AddressInfo, got %T", got)
	}
	if info.Type != addressTypePublicOrUnknown || info.Subtype != "" {
		t.Fatalf("expected public_or_unknown with no subtype, got %q/%q", info.Type, info.Subtype)
	}
}

func TestClassifyDetailsPassesThroughNonAddress(t *testing.T) {
	got := classifyDetails("platform-opaque")
	if got != "platform-opaque" {
		t.Fatalf("expected passthrough, got %v", got)
	}
}

func TestClassifyDetailsWrapsAddress(t *testing.T) {
	var addr tg.Address
	got := classifyDetails(addr)
	info, ok := got.(AddressInfo)
	if !ok {
		t.Fatalf("expected AddressInfo, got %T", got)
	}
	if info.Type != addressTypePublicOrUnknown {
		t.Fatalf("unexpected type: %q", info.Type)
	}
}
