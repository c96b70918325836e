// Package adapterctl provides the adapter presence/power collaborator
// a Local scanner's watchdog recovery can consult (via ScannerRecovery).
// Adapter discovery/enumeration and USB hot-plug mechanics themselves
// stay out of scope (spec §1); this package only answers "is this
// adapter present" and "make it powered". It holds no recovery lock.
//
// Grounded on houneTeam-pible_go's internal/bluetooth/bluez_manager.go
// (bluezAdapterExists, bluezEnsureAdapterPowered, bluezFindAdapterByAddress),
// trimmed to the presence/power surface the watchdog recovery needs.
package adapterctl

import (
	"context"
	"fmt"
	"strings"

	"github.com/godbus/dbus/v5"
)

const bluezService = "org.bluez"

// Controller talks to BlueZ over D-Bus to answer adapter
// presence/power questions.
type Controller struct {
	conn *dbus.Conn
}

// New connects to the system bus.
func New() (*Controller, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}
	return &Controller{conn: conn}, nil
}

func managedObjects(ctx context.Context, conn *dbus.Conn) (map[dbus.ObjectPath]map[string]map[string]dbus.Variant, error) {
	root := conn.Object(bluezService, dbus.ObjectPath("/"))
	call := root.CallWithContext(ctx, "org.freedesktop.DBus.ObjectManager.GetManagedObjects", 0)
	if call.Err != nil {
		return nil, call.Err
	}
	var managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant
	if err := call.Store(&managed); err != nil {
		return nil, err
	}
	return managed, nil
}

// Present reports whether adapterID (e.g. "hci0") is currently managed
// by BlueZ.
func (c *Controller) Present(ctx context.Context, adapterID string) bool {
	managed, err := managedObjects(ctx, c.conn)
	if err != nil {
		return false
	}
	return isAdapterPresent(managed, adapterID)
}

// isAdapterPresent is Present's pure lookup, split out for testing
// without a live D-Bus connection.
func isAdapterPresent(managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant, adapterID string) bool {
	path := dbus.ObjectPath("/org/bluez/" + strings.TrimSpace(adapterID))
	ifaces, ok := managed[path]
	if !ok {
		return false
	}
	_, ok = ifaces["org.bluez.Adapter1"]
	return ok
}

// FindByAddress returns the adapter ID whose controller Address matches
// addr (e.g. after a USB replug assigns a new hciN), or "" if none
// matches.
func (c *Controller) FindByAddress(ctx context.Context, addr string) string {
	managed, err := managedObjects(ctx, c.conn)
	if err != nil {
		return ""
	}
	return findAdapterByAddress(managed, addr)
}

// findAdapterByAddress is FindByAddress's pure lookup, split out for
// testing without a live D-Bus connection.
func findAdapterByAddress(managed map[dbus.ObjectPath]map[string]map[string]dbus.Variant, addr string) string {
	addr = strings.ToUpper(strings.TrimSpace(addr))
	if addr == "" {
		return ""
	}
	for path, ifaces := range managed {
		ad, ok := ifaces["org.bluez.Adapter1"]
		if !ok {
			continue
		}
		v, ok := ad["Address"]
		if !ok {
			continue
		}
		s, ok := v.Value().(string)
		if !ok || strings.ToUpper(strings.TrimSpace(s)) != addr {
			continue
		}
		p := string(path)
		if strings.HasPrefix(p, "/org/bluez/") {
			return strings.TrimPrefix(p, "/org/bluez/")
		}
	}
	return ""
}

// EnsurePowered sets Adapter1.Powered=true for adapterID. Concurrent
// calls are not serialised.
func (c *Controller) EnsurePowered(ctx context.Context, adapterID string) error {
	adapterPath := dbus.ObjectPath("/org/bluez/" + strings.TrimSpace(adapterID))
	obj := c.conn.Object(bluezService, adapterPath)
	err := obj.CallWithContext(ctx, "org.freedesktop.DBus.Properties.Set", 0,
		"org.bluez.Adapter1", "Powered", dbus.MakeVariant(true)).Err
	if err != nil {
		return fmt.Errorf("adapterctl: power %s: %w", adapterID, err)
	}
	return nil
}

// ScannerRecovery adapts Controller to scanner.Recovery's
// context-free EnsurePowered(adapterID string) error shape, so
// cmd/btcored can wire a Local scanner's watchdog straight to BlueZ
// without the scanner package importing context for this one call.
type ScannerRecovery struct {
	Controller *Controller
}

// EnsurePowered implements scanner.Recovery.
func (r ScannerRecovery) EnsurePowered(adapterID string) error {
	return r.Controller.EnsurePowered(context.Background(), adapterID)
}
