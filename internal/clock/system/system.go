// Package system provides the wall clock used outside tests.
package system

import (
	"fmt"
	"time"

	"github.com/JakeFAU/archive-harvester/internal/crawler"
)

// Clock implements crawler.Clock. Today is evaluated in the clock's location,
// which should be the archive's publishing time zone.
type Clock struct {
	loc *time.Location
}

// New creates a Clock for loc; nil means UTC.
func New(loc *time.Location) *Clock {
	if loc == nil {
		loc = time.UTC
	}
	return &Clock{loc: loc}
}

// NewInZone loads the named IANA zone.
func NewInZone(name string) (*Clock, error) {
	if name == "" {
		return New(nil), nil
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return nil, fmt.Errorf("load time zone %q: %w", name, err)
	}
	return New(loc), nil
}

// Now returns the current time in UTC.
func (Clock) Now() time.Time {
	return time.Now().UTC()
}

// Today returns the current calendar date in the clock's location.
func (c Clock) Today() crawler.DateKey {
	return crawler.DateKeyFromTime(time.Now().In(c.loc))
}
