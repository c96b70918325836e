package serviceinfo

import "testing"

func TestAdvertisementLazyNameAbsent(t *testing.T) {
	si := New("", "AA:BB:CC:DD:EE:01", -60, nil, nil, nil, "s1", nil, nil, false, 1.0, 0, nil)
	adv := si.Advertisement()
	if adv.LocalName != nil {
		t.Fatalf("expected nil LocalName when name is absent, got %v", *adv.LocalName)
	}
}

func TestAdvertisementLazyNamePresentAndCached(t *testing.T) {
	si := New("Widget", "AA:BB:CC:DD:EE:01", -60, nil, nil, nil, "s1", nil, nil, false, 1.0, 0, nil)
	adv1 := si.Advertisement()
	if adv1.LocalName == nil || *adv1.LocalName != "Widget" {
		t.Fatalf("expected LocalName 'Widget', got %v", adv1.LocalName)
	}
	adv2 := si.Advertisement()
	if adv1 != adv2 {
		t.Fatalf("expected cached advertisement pointer to be reused")
	}
}

func TestToConnectableCopiesWithoutReparsing(t *testing.T) {
	si := New("Widget", "AA:BB:CC:DD:EE:01", -60, nil, nil, []string{"a"}, "s1", nil, nil, false, 1.0, 0, nil)
	_ = si.Advertisement()

	conn := si.ToConnectable()
	if !conn.Connectable {
		t.Fatalf("expected Connectable=true")
	}
	if si.Connectable {
		t.Fatalf("original ServiceInfo must remain unmodified")
	}
	if conn.Address != si.Address || conn.Name != si.Name {
		t.Fatalf("expected all fields copied")
	}
	if conn == si {
		t.Fatalf("expected a distinct copy")
	}
}

func TestToConnectableNoOpWhenAlreadyConnectable(t *testing.T) {
	si := New("Widget", "AA:BB:CC:DD:EE:01", -60, nil, nil, nil, "s1", nil, nil, true, 1.0, 0, nil)
	conn := si.ToConnectable()
	if conn != si {
		t.Fatalf("expected same pointer when already connectable")
	}
}

func TestHasAnyField(t *testing.T) {
	empty := New("", "AA:BB:CC:DD:EE:01", -60, nil, nil, nil, "s1", nil, nil, false, 1.0, 0, nil)
	if empty.HasAnyField() {
		t.Fatalf("expected no fields set")
	}
	withMfg := New("", "AA:BB:CC:DD:EE:01", -60, map[uint16][]byte{1: {0x01}}, nil, nil, "s1", nil, nil, false, 1.0, 0, nil)
	if !withMfg.HasAnyField() {
		t.Fatalf("expected manufacturer data to count as a field")
	}
}
