package logger

import (
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"
)

// DefaultHeartbeatInterval is used when neither the caller nor the
// environment provides an interval.
const DefaultHeartbeatInterval = 60 * time.Second

// HeartbeatEnv overrides the heartbeat interval, in seconds.
const HeartbeatEnv = "BRIEFCAST_HEARTBEAT_SECONDS"

var configuredInterval atomic.Int64

// SetHeartbeatInterval sets the interval used when HeartbeatEnv is unset.
// Non-positive values restore DefaultHeartbeatInterval.
func SetHeartbeatInterval(interval time.Duration) {
	configuredInterval.Store(int64(max(interval, 0)))
}

// Heartbeat emits rate-limited progress lines for long running loops.
type Heartbeat struct {
	label    string
	interval time.Duration
	last     time.Time
	now      func() time.Time
}

// NewHeartbeat creates a heartbeat. A non-positive interval falls back to
// HeartbeatEnv, then to SetHeartbeatInterval and then to
// DefaultHeartbeatInterval.
func NewHeartbeat(label string, interval time.Duration) *Heartbeat {
	if interval <= 0 {
		interval = heartbeatFromEnv()
	}
	h := &Heartbeat{label: label, interval: interval, now: time.Now}
	h.last = h.now()
	return h
}

func heartbeatFromEnv() time.Duration {
	fallback := DefaultHeartbeatInterval
	if configured := time.Duration(configuredInterval.Load()); configured > 0 {
		fallback = configured
	}

	raw := strings.TrimSpace(os.Getenv(HeartbeatEnv))
	if raw == "" {
		return fallback
	}
	seconds, err := strconv.Atoi(raw)
	if err != nil || seconds <= 0 {
		return fallback
	}
	return time.Duration(seconds) * time.Second
}

// Tick logs the message only if the interval has elapsed since the last
// emitted line. It reports whether a line was written.
func (h *Heartbeat) Tick(msg string, args ...any) bool {
	if h.now().Sub(h.last) < h.interval {
		return false
	}
	h.Force(msg, args...)
	return true
}

// Force logs the message unconditionally and resets the interval.
func (h *Heartbeat) Force(msg string, args ...any) {
	Info(msg, append([]any{"heartbeat", h.label}, args...)...)
	h.last = h.now()
}
