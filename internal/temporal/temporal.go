// Package temporal derives the time-dependent model features. Every
// derivation is evaluated at both ends of the trip window and merged under
// the documented precedence rules.
package temporal

import (
	"time"

	"github.com/nathan-osman/go-sunrise"
	"github.com/rickar/cal/v2"
	"github.com/rickar/cal/v2/us"
	"github.com/ringsaturn/tzf"
	t "github.com/tarterware/roadrisk/internal/types"
)

const (
	TimeMorning   = "morning"
	TimeAfternoon = "afternoon"
	TimeEvening   = "evening"

	LightDim      = "dim"
	LightDaylight = "daylight"
	LightNight    = "night"
)

// Context holds the timezone finder and holiday calendar, both immutable
// after construction and safe to share across requests.
type Context struct {
	finder tzf.F
	cal    *cal.Calendar
}

func NewContext() (*Context, error) {
	finder, err := tzf.NewDefaultFinder()
	if err != nil {
		return nil, err
	}

	c := &cal.Calendar{}
	c.AddHoliday(us.Holidays...)

	return &Context{finder: finder, cal: c}, nil
}

// Zone resolves the IANA timezone containing the coordinate. The finder's
// lookup already falls back to the closest zone near borders; if nothing
// resolves at all, UTC is used.
func (c *Context) Zone(coord t.Coordinate) *time.Location {
	name := c.finder.GetTimezoneName(coord.Longitude, coord.Latitude)
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// IsHoliday reports whether the date is a US federal holiday, counting
// observed dates (e.g. July 4th falling on a weekend).
func (c *Context) IsHoliday(ts time.Time) bool {
	actual, observed, _ := c.cal.IsHoliday(ts)
	return actual || observed
}

// HolidayDuring is true if either trip endpoint lands on a holiday.
func (c *Context) HolidayDuring(w t.TripWindow) bool {
	return c.IsHoliday(w.Start) || c.IsHoliday(w.End)
}

// TimeOfDay buckets the hour: [4,12) morning, [12,20) afternoon, else evening.
func TimeOfDay(ts time.Time) string {
	switch hour := ts.Hour(); {
	case hour >= 4 && hour < 12:
		return TimeMorning
	case hour >= 12 && hour < 20:
		return TimeAfternoon
	default:
		return TimeEvening
	}
}

// TimeOfDayDuring merges the endpoint buckets: evening wins if either endpoint
// is evening, otherwise the start bucket is used. The end endpoint's morning
// or afternoon value is intentionally ignored.
func TimeOfDayDuring(w t.TripWindow) string {
	start := TimeOfDay(w.Start)
	if start == TimeEvening || TimeOfDay(w.End) == TimeEvening {
		return TimeEvening
	}
	return start
}

// Lighting buckets the instant at the coordinate into dim, daylight or night
// using the local sunrise and sunset for that date.
func (c *Context) Lighting(coord t.Coordinate, ts time.Time) string {
	local := ts.In(c.Zone(coord))
	rise, set := sunrise.SunriseSunset(
		coord.Latitude, coord.Longitude,
		local.Year(), local.Month(), local.Day(),
	)
	if rise.IsZero() || set.IsZero() {
		// Polar day or night; no dim window exists.
		return LightNight
	}
	return lightingAt(ts, rise, set)
}

// lightingAt classifies against the dim windows [sunrise-30m, sunrise+60m]
// and [sunset-60m, sunset+30m].
func lightingAt(ts, rise, set time.Time) string {
	firstLightStart := rise.Add(-30 * time.Minute)
	firstLightEnd := rise.Add(60 * time.Minute)
	lastLightStart := set.Add(-60 * time.Minute)
	lastLightEnd := set.Add(30 * time.Minute)

	if ts.After(firstLightStart) && ts.Before(firstLightEnd) {
		return LightDim
	}
	if ts.After(lastLightStart) && ts.Before(lastLightEnd) {
		return LightDim
	}
	if ts.After(firstLightEnd) && ts.Before(lastLightStart) {
		return LightDaylight
	}
	return LightNight
}

// LightingDuring merges endpoint lighting with precedence dim > night > daylight.
func (c *Context) LightingDuring(coord t.Coordinate, w t.TripWindow) string {
	start := c.Lighting(coord, w.Start)
	end := c.Lighting(coord, w.End)

	if start == LightDim || end == LightDim {
		return LightDim
	}
	if start == LightNight || end == LightNight {
		return LightNight
	}
	return LightDaylight
}

// SchoolSeason is false only for June through August.
func SchoolSeason(ts time.Time) bool {
	month := int(ts.Month())
	return month <= 5 || month >= 9
}

// SchoolSeasonDuring requires both endpoints to be in season.
func SchoolSeasonDuring(w t.TripWindow) bool {
	return SchoolSeason(w.Start) && SchoolSeason(w.End)
}

// Features resolves every time-dependent feature for a trip starting at the
// coordinate over the window.
type Features struct {
	TimeOfDay    string
	Lighting     string
	Holiday      bool
	SchoolSeason bool
}

func (c *Context) Features(coord t.Coordinate, w t.TripWindow) Features {
	return Features{
		TimeOfDay:    TimeOfDayDuring(w),
		Lighting:     c.LightingDuring(coord, w),
		Holiday:      c.HolidayDuring(w),
		SchoolSeason: SchoolSeasonDuring(w),
	}
}
