package countdown

import "time"

// MaxInterval is the largest travel alignment interval in minutes.
const MaxInterval = 30

const secondsPerDay = 24 * 60 * 60

// WaitUntilBoundary returns how long to wait from now until the next multiple
// of interval minutes in now's day, counted from midnight in now's location.
// It is zero on a boundary or when interval is zero, and never runs past midnight.
func WaitUntilBoundary(now time.Time, interval int) time.Duration {
	if interval <= 0 {
		return 0
	}
	step := interval * 60
	sod := now.Hour()*3600 + now.Minute()*60 + now.Second()
	rem := sod % step
	if rem == 0 {
		return 0
	}
	next := min(sod-rem+step, secondsPerDay)
	return time.Duration(next-sod) * time.Second
}

func validInterval(interval int) error {
	if interval < 0 || interval > MaxInterval {
		return invalid("interval must be between 0 and %d minutes", MaxInterval)
	}
	return nil
}
