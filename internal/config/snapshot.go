// Package config provides the reloadable scheduling configuration: a key-value
// source (properties file or etcd prefix) and an atomically replaced snapshot.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// Configuration keys.
const (
	KeySyncEnabled = "syncEnabled"
	KeySyncCores   = "syncCores"
	KeyServer      = "server"
	KeyPort        = "port"
	KeyWebapp      = "webapp"
	KeyParams      = "params"
	KeyInterval    = "interval"
)

const (
	DefaultServer   = "localhost"
	DefaultPort     = "8080"
	DefaultInterval = "30"

	// FallbackIntervalSeconds applies when interval does not parse. It is
	// not DefaultInterval; the asymmetry is kept as is.
	FallbackIntervalSeconds = 10

	// MaxInterval caps the tick cadence
	MaxInterval = 365 * 24 * time.Hour
)

// Error is a configuration error the caller must not proceed past.
type Error struct {
	Reason string
}

func (e *Error) Error() string {
	return "configuration error: " + e.Reason
}

// Snapshot is one complete, immutable view of the configuration.
type Snapshot struct {
	SyncEnabled string
	// Cores is the raw comma separated target list; nil when the key is absent.
	Cores  *string
	Server string
	Port   string
	Webapp string
	Params string
	// IntervalRaw is the interval as configured, after defaults.
	IntervalRaw string

	intervalSeconds int
}

// NewSnapshot builds a snapshot from raw values and applies defaults.
// defaultWebapp is used when webapp is blank.
func NewSnapshot(values map[string]string, defaultWebapp string) *Snapshot {
	s := &Snapshot{
		SyncEnabled: values[KeySyncEnabled],
		Server:      values[KeyServer],
		Port:        values[KeyPort],
		Webapp:      values[KeyWebapp],
		Params:      values[KeyParams],
		IntervalRaw: values[KeyInterval],
	}
	if cores, ok := values[KeySyncCores]; ok {
		s.Cores = &cores
	}
	if s.Server == "" {
		s.Server = DefaultServer
	}
	if s.Port == "" {
		s.Port = DefaultPort
	}
	if s.Webapp == "" {
		s.Webapp = defaultWebapp
	}
	s.intervalSeconds = parseInterval(s.IntervalRaw)
	if s.IntervalRaw == "" || s.intervalSeconds <= 0 {
		s.IntervalRaw = DefaultInterval
		s.intervalSeconds = parseInterval(DefaultInterval)
	}
	return s
}

// Enabled reports whether scheduling is switched on ("1").
func (s *Snapshot) Enabled() bool {
	return s.SyncEnabled == "1"
}

// Targets splits the target list. Nil means the key was absent. Trailing
// empty entries are dropped, except for an empty list value which yields [""].
func (s *Snapshot) Targets() []string {
	if s.Cores == nil {
		return nil
	}
	parts := strings.Split(*s.Cores, ",")
	if *s.Cores == "" {
		return parts
	}
	for len(parts) > 0 && parts[len(parts)-1] == "" {
		parts = parts[:len(parts)-1]
	}
	return parts
}

// SingleTarget reports whether the list denotes single-target mode:
// absent, or exactly one empty entry.
func (s *Snapshot) SingleTarget() bool {
	targets := s.Targets()
	return targets == nil || (len(targets) == 1 && targets[0] == "")
}

// Degenerate reports whether the list has nothing to notify.
func (s *Snapshot) Degenerate() bool {
	return degenerate(s.Targets())
}

func degenerate(targets []string) bool {
	return len(targets) == 0 || (len(targets) == 1 && targets[0] == "")
}

// MissingMandatory names the first empty mandatory parameter, if any.
func (s *Snapshot) MissingMandatory() string {
	switch {
	case s.Server == "":
		return KeyServer
	case s.Webapp == "":
		return KeyWebapp
	case s.Params == "":
		return KeyParams
	}
	return ""
}

// IntervalSeconds is the interval resolved when the snapshot was built.
func (s *Snapshot) IntervalSeconds() int {
	return s.intervalSeconds
}

// parseInterval accepts 32-bit integers only and falls back to
// FallbackIntervalSeconds for anything else. Blank input is left to the
// caller's default without a warning.
func parseInterval(raw string) int {
	if raw == "" {
		return 0
	}
	n, err := strconv.ParseInt(raw, 10, 32)
	if err != nil {
		logrus.WithError(err).WithField("interval", raw).
			Warnf("Unable to convert 'interval' to number. Using default value (%d) instead", FallbackIntervalSeconds)
		return FallbackIntervalSeconds
	}
	return int(n)
}

// Interval is the tick cadence, between one second and MaxInterval.
func (s *Snapshot) Interval() time.Duration {
	n := s.IntervalSeconds()
	if n < 1 {
		n = 1
	}
	if int64(n) > int64(MaxInterval/time.Second) {
		return MaxInterval
	}
	return time.Duration(n) * time.Second
}

func (s *Snapshot) String() string {
	cores := "<unset>"
	if s.Cores != nil {
		cores = *s.Cores
	}
	return fmt.Sprintf("syncEnabled=%s syncCores=%s server=%s port=%s webapp=%s interval=%s",
		s.SyncEnabled, cores, s.Server, s.Port, s.Webapp, s.IntervalRaw)
}
