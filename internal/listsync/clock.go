package listsync

import "time"

// Timer is the handle of a scheduled callback.
type Timer interface {
	Stop() bool
}

// Clock schedules callbacks and tells the time. Engines default to the wall clock.
type Clock interface {
	AfterFunc(d time.Duration, fn func()) Timer
	Now() time.Time
}

type systemClock struct{}

func (systemClock) AfterFunc(d time.Duration, fn func()) Timer { return time.AfterFunc(d, fn) }

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the wall clock backed by time.AfterFunc.
func SystemClock() Clock { return systemClock{} }
