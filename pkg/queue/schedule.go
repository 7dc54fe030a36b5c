package queue

import (
	"fmt"
	"time"
)

// Schedule yields the run times of a periodic task.
type Schedule interface {
	// Next returns the first run time strictly after from.
	Next(from time.Time) time.Time
	String() string
}

type interval time.Duration

// EveryInterval runs on multiples of d counted from the zero time, so every
// replica computes the same run times. It panics if d is not positive.
func EveryInterval(d time.Duration) Schedule {
	if d <= 0 {
		panic(fmt.Sprintf("queue: schedule interval must be positive, got %v", d))
	}
	return interval(d)
}

func (i interval) Next(from time.Time) time.Time {
	d := time.Duration(i)
	return from.Truncate(d).Add(d)
}

func (i interval) String() string {
	return "every " + time.Duration(i).String()
}
