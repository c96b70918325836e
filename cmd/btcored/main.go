// Command btcored demonstrates wiring a Local and a Remote scanner into
// the manager, printing periodic status to the console. It is demo
// wiring only; adapter discovery, OS scanner drivers, and persistent
// storage beyond the snapshot file are out of scope.
//
// Grounded on houneTeam-pible_go's cmd/pible/main.go: flag parsing,
// app.log redirection via internal/consolelog.Init, signalContext's
// SIGINT/SIGTERM cancellation, and internal/status/ticker.go's periodic
// console loop.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"btcore/internal/config"
	"btcore/internal/consolelog"
	"btcore/internal/manager"
	"btcore/internal/scanner"
	"btcore/internal/serviceinfo"
	"btcore/internal/snapshot"
)

func main() {
	var (
		adapter       = flag.String("adapter", "hci0", "Local adapter to scan on")
		expireSecs    = flag.Float64("expire-seconds", 60.0, "Remote scanner merge/expiry window")
		statsInterval = flag.Int("stats-interval", 5, "Console status interval in seconds")
		statePath     = flag.String("state-file", "btcore_state.json", "Path to the persisted history snapshot")
	)
	flag.Parse()

	closeLog, err := consolelog.Init("app.log")
	if err != nil {
		fmt.Printf("failed to open app.log: %v\n", err)
	} else {
		defer closeLog()
	}

	ctx, cancel := signalContext(context.Background())
	defer cancel()

	start := time.Now()
	nowFn := func() float64 { return time.Since(start).Seconds() }

	cfg := config.NewBuilder().Build()
	mgr := manager.New(cfg, nowFn)

	if restored, err := snapshot.LoadJSON(*statePath); err == nil {
		consolelog.Linef("[STATE]", consolelog.ColorGray, "restored %d devices from %s", len(restored), *statePath)
		mgr.Restore(restored)
	}

	local := scanner.NewLocal(*adapter, "local", true, scanner.ModeActive, &noopDriver{}, mgr, nowFn)
	local.OnQuiet(mgr.ScannerQuietDiagnostic)
	cancelLocal := mgr.RegisterScanner(local.Base)
	defer cancelLocal()

	if err := local.Start(); err != nil {
		consolelog.Error("local scanner start", err)
	}
	defer local.Stop()

	remote := scanner.NewRemote(*adapter, "remote", false, *expireSecs, mgr)
	cancelRemote := mgr.RegisterScanner(remote.Base)
	defer cancelRemote()
	remote.StartExpiry(nowFn)
	defer remote.StopExpiry()

	cancelSweeps := mgr.StartPeriodicSweeps()
	defer cancelSweeps()

	cancelCallback := mgr.RegisterCallback(manager.Filter{}, func(device any, adv *serviceinfo.Advertisement) {
		name := ""
		if adv.LocalName != nil {
			name = *adv.LocalName
		}
		consolelog.Linef("[ADV]", consolelog.ColorGreen, "%s rssi=%d uuids=%v", name, adv.RSSI, adv.ServiceUUIDs)
	})
	defer cancelCallback()

	consolelog.Line("[START]", consolelog.ColorCyan, "btcored running, press Ctrl+C to stop")

	ticker := time.NewTicker(time.Duration(*statsInterval) * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := snapshot.DumpJSON(*statePath, mgr.History()); err != nil {
				consolelog.Error("persist state on exit", err)
			}
			consolelog.Line("[EXIT]", consolelog.ColorGray, "stopping")
			return
		case <-ticker.C:
			printStatus(mgr)
		}
	}
}

func printStatus(mgr *manager.Manager) {
	all := mgr.DiscoveredServiceInfo(false)
	connectable := mgr.DiscoveredServiceInfo(true)
	consolelog.Linef("[STATUS]", consolelog.ColorGray, "devices=%d connectable=%d", len(all), len(connectable))
}

// noopDriver is the demo's stand-in for a radio driver; real wiring
// needs a scanner.Driver implementation around a radio API such as
// tinygo.org/x/bluetooth's *bluetooth.Adapter.
type noopDriver struct{}

func (noopDriver) Enable() error { return nil }
func (noopDriver) Scan(onResult func(result scanner.RawResult)) error {
	<-make(chan struct{})
	return nil
}
func (noopDriver) StopScan() error { return nil }

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)
	go func() {
		select {
		case <-ch:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(ch)
	}()
	return ctx, cancel
}
