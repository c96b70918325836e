package scanner

import (
	"time"

	"btcore/internal/reactor"
	"btcore/internal/serviceinfo"
)

// Driver is the external OS-radio collaborator a Local scanner drives
// (spec §1: scanner drivers themselves are out of scope; C5's job is
// the lifecycle/normalisation layer around them). Modeled on
// tinygo.org/x/bluetooth's Adapter.Scan callback shape, shared by all
// four BLE repos in the pack; a *bluetooth.Adapter does not satisfy it
// directly, since its Scan callback takes (*Adapter, ScanResult).
type Driver interface {
	// Enable powers the radio on.
	Enable() error
	// Scan blocks, invoking onResult for each advertisement, until
	// StopScan is called from another goroutine.
	Scan(onResult func(result RawResult)) error
	// StopScan cancels an in-flight Scan call.
	StopScan() error
}

// RawResult is the minimal shape a Driver reports per advertisement,
// modeled on bluetooth.ScanResult.
type RawResult struct {
	Address          string
	RSSI             int8
	LocalName        string
	ServiceUUIDs     []string
	ServiceData      map[string][]byte
	ManufacturerData map[uint16][]byte
	TxPower          int
	Connectable      bool
	Details          any
}

// Local implements C5: a scanner driving an OS radio, with a
// start/stop lifecycle and watchdog recovery (spec §4.5).
type Local struct {
	*Base

	driver Driver

	state         State
	watchdog      reactor.CancelFunc
	watchdogEvery time.Duration
	watchdogTmo   time.Duration
	recovery      *Recovery

	nowFn func() float64

	onQuiet func(source string)
}

// Recovery is the adapter power collaborator a Local scanner consults
// during watchdog recovery. Calls are not serialised across scanners,
// and an EnsurePowered error is discarded. Kept as an interface so
// internal/adapterctl's D-Bus implementation is swappable in tests.
type Recovery interface {
	EnsurePowered(adapterID string) error
}

// NewLocal constructs a LocalScanner in the idle state.
func NewLocal(adapter, source string, connectable bool, mode Mode, driver Driver, publisher Publisher, nowFn func() float64) *Local {
	return &Local{
		Base:          NewBase(adapter, source, connectable, mode, publisher),
		driver:        driver,
		state:         StateIdle,
		watchdogEvery: 30 * time.Second,
		watchdogTmo:   90 * time.Second,
		nowFn:         nowFn,
	}
}

// State returns the current lifecycle state.
func (l *Local) State() State { return l.state }

// SetWatchdog overrides the default watchdog cadence/timeout (spec §4.5:
// WATCHDOG_INTERVAL=30s, WATCHDOG_TIMEOUT=90s).
func (l *Local) SetWatchdog(every, timeout time.Duration) {
	l.watchdogEvery = every
	l.watchdogTmo = timeout
}

// SetRecovery attaches the adapter recovery collaborator.
func (l *Local) SetRecovery(r Recovery) { l.recovery = r }

// OnQuiet registers a callback invoked when the watchdog detects a
// scanner gone quiet (spec §4.5's diagnostic).
func (l *Local) OnQuiet(fn func(source string)) { l.onQuiet = fn }

// Start enables the driver and begins scanning; on failure in active
// mode it retries once and records the mode as passive (spec §4.5 and
// §7). The mode is not passed to the Driver, so both attempts start the
// driver the same way. A second failure transitions to failed and
// returns a *StartError.
func (l *Local) Start() error {
	if l.state == StateScanning || l.state == StateStarting {
		return nil
	}
	l.state = StateStarting
	l.startTimeMonotonic = l.nowFn()

	mode := l.Mode
	if err := l.attemptStart(mode); err != nil {
		if mode == ModeActive {
			if err2 := l.attemptStart(ModePassive); err2 == nil {
				l.Mode = ModePassive
				l.state = StateScanning
				l.Scanning = true
				l.startWatchdog()
				return nil
			}
		}
		l.state = StateFailed
		return &StartError{Mode: mode, RetriedOnce: mode == ModeActive, Underlying: err}
	}

	l.state = StateScanning
	l.Scanning = true
	l.startWatchdog()
	return nil
}

func (l *Local) attemptStart(mode Mode) error {
	if err := l.driver.Enable(); err != nil {
		return err
	}
	go func() {
		_ = l.driver.Scan(func(result RawResult) {
			l.detectionCallback(result)
		})
	}()
	return nil
}

// detectionCallback is spec §4.5's _async_detection_callback: builds a
// ServiceInfo stamped with this scanner's connectable flag and source,
// and forwards it to the manager.
func (l *Local) detectionCallback(result RawResult) {
	si := serviceinfo.New(
		result.LocalName, result.Address, result.RSSI,
		result.ManufacturerData, result.ServiceData, result.ServiceUUIDs,
		l.Source, nil, nil, l.Connectable, l.nowFn(), result.TxPower, classifyDetails(result.Details),
	)
	l.Publish(si)
}

// Stop transitions the scanner to idle. Stopping during starting cancels
// the outstanding start (spec §4.5).
func (l *Local) Stop() error {
	if l.state == StateIdle {
		return nil
	}
	prior := l.state
	l.state = StateStopping
	if l.watchdog != nil {
		l.watchdog()
		l.watchdog = nil
	}
	if prior == StateScanning {
		_ = l.driver.StopScan()
	}
	l.Scanning = false
	l.state = StateIdle
	return nil
}

func (l *Local) startWatchdog() {
	if l.watchdog != nil {
		return
	}
	l.watchdog = reactor.Every(l.watchdogEvery, func() {
		l.checkWatchdog()
	})
}

// checkWatchdog implements spec §4.5: if now - last_detection >
// WATCHDOG_TIMEOUT, cycle stopping -> idle -> starting and emit a
// scanner-gone-quiet diagnostic.
func (l *Local) checkWatchdog() {
	if l.state != StateScanning {
		return
	}
	now := l.nowFn()
	quietFor := l.TimeSinceLastDetection(now)
	if quietFor <= l.watchdogTmo.Seconds() {
		return
	}

	if l.onQuiet != nil {
		l.onQuiet(l.Source)
	}

	if l.recovery != nil {
		_ = l.recovery.EnsurePowered(l.Adapter)
	}

	_ = l.Stop()
	_ = l.Start()
}
