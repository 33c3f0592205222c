package liveview

import "time"

// ConnState is the watcher's connection lifecycle. Connecting is the first
// attempt only; every later attempt is Reconnecting so a UI can show "live"
// versus "catching up" correctly.
type ConnState string

const (
	StateConnecting   ConnState = "connecting"
	StateConnected    ConnState = "connected"
	StateReconnecting ConnState = "reconnecting"
	StateDisconnected ConnState = "disconnected"
)

const (
	defaultBackoffBase = time.Second
	defaultBackoffCap  = 30 * time.Second
)

// backoffDelay returns the wait before the given retry attempt, doubling
// from base and clamped at cap. Attempt zero waits the base delay.
func backoffDelay(attempt int, base, cap time.Duration) time.Duration {
	if base <= 0 {
		base = defaultBackoffBase
	}
	if cap <= 0 {
		cap = defaultBackoffCap
	}
	delay := base
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay >= cap {
			return cap
		}
	}
	if delay > cap {
		return cap
	}
	return delay
}
