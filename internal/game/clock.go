// internal/game/clock.go
package game

import "time"

// Timer is a cancellable one-shot callback.
type Timer interface {
	Stop() bool
}

// Clock schedules deadline callbacks. Tests swap in a clock they can fire by hand.
type Clock interface {
	AfterFunc(d time.Duration, f func()) Timer
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock is backed by time.AfterFunc.
var SystemClock Clock = systemClock{}
