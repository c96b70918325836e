// Package config provides the builder named in spec §6: "implementations
// should accept configuration via a builder with options
// {default_stale_seconds, rssi_switch_threshold, tracker_wobble_seconds,
// apple_allowed_first_bytes, watchdog_interval, watchdog_timeout}".
//
// Grounded on houneTeam-pible_go's internal/ids/uuids.go yaml.Unmarshal
// usage (structured YAML loading), generalized from a UUID name table to
// a tuning-constant document.
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Defaults from spec §4.7.1/§4.7.4/§4.5/§9.
const (
	DefaultRSSISwitchThreshold             = 16  // dBm; Design Note: moved 8->16 across revisions, pick 16
	DefaultStaleSeconds                    = 60.0
	FallbackMaximumStaleAdvertisementSecs  = 60.0
	DefaultTrackerBufferingWobbleSeconds   = 3.0
	DefaultWatchdogInterval                = 30 * time.Second
	DefaultWatchdogTimeout                 = 90 * time.Second
	DefaultUnavailableSweepInterval        = 30 * time.Second
	DefaultK1                              = 2.0 // in-progress-on-scanner penalty, spec §4.3
	DefaultK2                              = 0.5 // previous-failures-on-scanner penalty, spec §4.3
)

// DefaultAppleAllowedFirstBytes is the Apple manufacturer-data fast
// filter allow-list (spec §4.7.2): iBeacon, AirDrop/HomeKit,
// HomeKit-notify, Device-ID, FindMy.
var DefaultAppleAllowedFirstBytes = []byte{0x02, 0x05, 0x06, 0x10, 0x12}

// Config is the resolved, immutable set of tuning constants the manager
// and scanners consult.
type Config struct {
	DefaultStaleSeconds                   float64
	RSSISwitchThreshold                   int8
	TrackerWobbleSeconds                  float64
	FallbackMaximumStaleAdvertisementSecs float64
	AppleAllowedFirstBytes                []byte
	WatchdogInterval                      time.Duration
	WatchdogTimeout                       time.Duration
	UnavailableSweepInterval              time.Duration
	K1                                    float64
	K2                                    float64
}

// Builder assembles a Config via chained setters, defaulting every field
// per spec. Start from NewBuilder; the zero value holds no defaults.
type Builder struct {
	cfg Config
}

// NewBuilder returns a Builder pre-populated with spec defaults.
func NewBuilder() *Builder {
	return &Builder{cfg: Config{
		DefaultStaleSeconds:                   DefaultStaleSeconds,
		RSSISwitchThreshold:                   DefaultRSSISwitchThreshold,
		TrackerWobbleSeconds:                  DefaultTrackerBufferingWobbleSeconds,
		FallbackMaximumStaleAdvertisementSecs: FallbackMaximumStaleAdvertisementSecs,
		AppleAllowedFirstBytes:                append([]byte(nil), DefaultAppleAllowedFirstBytes...),
		WatchdogInterval:                      DefaultWatchdogInterval,
		WatchdogTimeout:                       DefaultWatchdogTimeout,
		UnavailableSweepInterval:              DefaultUnavailableSweepInterval,
		K1:                                    DefaultK1,
		K2:                                    DefaultK2,
	}}
}

func (b *Builder) DefaultStale(seconds float64) *Builder {
	b.cfg.DefaultStaleSeconds = seconds
	return b
}

func (b *Builder) RSSISwitchThreshold(dbm int8) *Builder {
	b.cfg.RSSISwitchThreshold = dbm
	return b
}

func (b *Builder) TrackerWobbleSeconds(seconds float64) *Builder {
	b.cfg.TrackerWobbleSeconds = seconds
	return b
}

func (b *Builder) AppleAllowedFirstBytes(bytes []byte) *Builder {
	b.cfg.AppleAllowedFirstBytes = bytes
	return b
}

func (b *Builder) WatchdogInterval(d time.Duration) *Builder {
	b.cfg.WatchdogInterval = d
	return b
}

func (b *Builder) WatchdogTimeout(d time.Duration) *Builder {
	b.cfg.WatchdogTimeout = d
	return b
}

func (b *Builder) ConnectionScoreWeights(k1, k2 float64) *Builder {
	b.cfg.K1 = k1
	b.cfg.K2 = k2
	return b
}

// Build returns the resolved Config.
func (b *Builder) Build() Config {
	return b.cfg
}

// yamlDoc holds the six builder options that can be overridden from a
// file; any field omitted from the document keeps its current builder
// value. K1/K2, the fallback maximum and the sweep interval are not read
// from YAML.
type yamlDoc struct {
	DefaultStaleSeconds    *float64 `yaml:"default_stale_seconds"`
	RSSISwitchThreshold    *int8    `yaml:"rssi_switch_threshold"`
	TrackerWobbleSeconds   *float64 `yaml:"tracker_wobble_seconds"`
	AppleAllowedFirstBytes []int    `yaml:"apple_allowed_first_bytes"`
	WatchdogIntervalSecs   *float64 `yaml:"watchdog_interval_seconds"`
	WatchdogTimeoutSecs    *float64 `yaml:"watchdog_timeout_seconds"`
}

// LoadYAML overrides the builder's fields from a YAML document at path,
// matching the options named in spec §6. Grounded on
// internal/ids/uuids.go's yaml.Unmarshal usage.
func (b *Builder) LoadYAML(path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	var doc yamlDoc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return err
	}

	if doc.DefaultStaleSeconds != nil {
		b.DefaultStale(*doc.DefaultStaleSeconds)
	}
	if doc.RSSISwitchThreshold != nil {
		b.RSSISwitchThreshold(*doc.RSSISwitchThreshold)
	}
	if doc.TrackerWobbleSeconds != nil {
		b.TrackerWobbleSeconds(*doc.TrackerWobbleSeconds)
	}
	if len(doc.AppleAllowedFirstBytes) > 0 {
		allowed := make([]byte, len(doc.AppleAllowedFirstBytes))
		for i, v := range doc.AppleAllowedFirstBytes {
			allowed[i] = byte(v)
		}
		b.AppleAllowedFirstBytes(allowed)
	}
	if doc.WatchdogIntervalSecs != nil {
		b.WatchdogInterval(time.Duration(*doc.WatchdogIntervalSecs * float64(time.Second)))
	}
	if doc.WatchdogTimeoutSecs != nil {
		b.WatchdogTimeout(time.Duration(*doc.WatchdogTimeoutSecs * float64(time.Second)))
	}
	return nil
}

// EffectiveExpiry computes spec §4.7.4's effective_expiry: the larger of
// the tracker's measured interval, its fallback interval, or
// FallbackMaximumStaleAdvertisementSecs, plus the wobble buffer.
func (c Config) EffectiveExpiry(measured, fallback float64, hasMeasured, hasFallback bool) float64 {
	base := c.FallbackMaximumStaleAdvertisementSecs
	if hasFallback && fallback > base {
		base = fallback
	}
	if hasMeasured && measured > base {
		base = measured
	}
	return base + c.TrackerWobbleSeconds
}

// StaleSeconds computes spec §4.7.1 rule 4's stale_seconds: like
// EffectiveExpiry but with a floor of the larger of DefaultStaleSeconds
// and FallbackMaximumStaleAdvertisementSecs instead of the latter alone.
func (c Config) StaleSeconds(measured, fallback float64, hasMeasured, hasFallback bool) float64 {
	base := c.DefaultStaleSeconds
	if base < c.FallbackMaximumStaleAdvertisementSecs {
		base = c.FallbackMaximumStaleAdvertisementSecs
	}
	if hasFallback && fallback > base {
		base = fallback
	}
	if hasMeasured && measured > base {
		base = measured
	}
	return base + c.TrackerWobbleSeconds
}

// IsAppleAllowedFirstByte reports whether b is in the configured
// Apple-manufacturer-data allow-list (spec §4.7.2).
func (c Config) IsAppleAllowedFirstByte(b byte) bool {
	for _, allowed := range c.AppleAllowedFirstBytes {
		if allowed == b {
			return true
		}
	}
	return false
}
