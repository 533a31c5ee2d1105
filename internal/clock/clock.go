package clock

import (
	"sync"
	"time"
)

// Clock produces the current instant. All instants in the system are UTC;
// conversion to a user's wall clock happens only through InZone/LocalDate.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// System is the real clock.
func System() Clock { return systemClock{} }

// Fake is a settable clock for tests.
type Fake struct {
	mu sync.Mutex
	t  time.Time
}

func NewFake(t time.Time) *Fake {
	return &Fake{t: t.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.t
}

func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.t = t.UTC()
	f.mu.Unlock()
}

func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.t = f.t.Add(d)
	f.mu.Unlock()
}

// InZone converts a UTC instant to the named IANA zone. An empty or invalid
// zone falls back to the provided default, then to UTC.
func InZone(t time.Time, zone, defaultZone string) time.Time {
	if loc := loadZone(zone); loc != nil {
		return t.In(loc)
	}
	if loc := loadZone(defaultZone); loc != nil {
		return t.In(loc)
	}
	return t.UTC()
}

func loadZone(name string) *time.Location {
	if name == "" {
		return nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil
	}
	return loc
}

// LocalDate returns the calendar date (YYYY-MM-DD) of a UTC instant in the
// given zone.
func LocalDate(t time.Time, zone, defaultZone string) string {
	return InZone(t, zone, defaultZone).Format("2006-01-02")
}

// StartOfWeek returns the date string of the Monday of the week containing d.
func StartOfWeek(d time.Time) string {
	weekday := int(d.Weekday())
	if weekday == 0 {
		weekday = 7
	}
	return d.AddDate(0, 0, -(weekday - 1)).Format("2006-01-02")
}

// WholeDaysBetween returns the number of whole 24h periods between two instants.
func WholeDaysBetween(earlier, later time.Time) int {
	if later.Before(earlier) {
		return 0
	}
	return int(later.Sub(earlier).Hours() / 24)
}
