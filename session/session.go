// Package session classifies timestamps into configured trading sessions and
// computes the daylight-saving-aware origin instants that anchor resampling
// windows. It is pure per call and keeps no persisted state.
package session

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"candleflow/config"
	"candleflow/models"
)

// Clock is a time-of-day with minute precision.
type Clock struct {
	Hour   int
	Minute int
}

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("invalid clock '%s'", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 23 {
		return Clock{}, fmt.Errorf("invalid clock '%s'", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return Clock{}, fmt.Errorf("invalid clock '%s'", s)
	}
	return Clock{Hour: h, Minute: m}, nil
}

func (c Clock) minuteOfDay() int { return c.Hour*60 + c.Minute }

// Resolver answers session and origin questions for one symbol against the
// storage reference timezone.
type Resolver struct {
	symbol config.SymbolConfig
	home   *time.Location
	ref    *time.Location
}

// NewResolver builds a resolver for sym with the given reference timezone
// name.
func NewResolver(sym config.SymbolConfig, refTimezone string) (*Resolver, error) {
	home, err := time.LoadLocation(sym.Timezone)
	if err != nil {
		return nil, fmt.Errorf("symbol %s: load timezone %s: %w", sym.Name, sym.Timezone, err)
	}
	ref, err := time.LoadLocation(refTimezone)
	if err != nil {
		return nil, fmt.Errorf("load reference timezone %s: %w", refTimezone, err)
	}
	return &Resolver{symbol: sym, home: home, ref: ref}, nil
}

// bound is one session's boundaries for a specific date, expressed as
// minute-of-day in the reference timezone. wraps marks a window crossing
// midnight; full marks a 24-hour window (start == end).
type bound struct {
	name  string
	start int
	end   int
	wraps bool
	full  bool
}

// boundaries converts each configured session's local start/end time-of-day
// on the given date into the reference timezone. The conversion is done per
// date because both zones shift with daylight saving.
func (r *Resolver) boundaries(date time.Time) ([]bound, error) {
	y, m, d := date.In(r.ref).Date()
	bounds := make([]bound, 0, len(r.symbol.Sessions))
	for _, sess := range r.symbol.Sessions {
		start, err := ParseClock(sess.Start)
		if err != nil {
			return nil, fmt.Errorf("symbol %s session %s: %w", r.symbol.Name, sess.Name, err)
		}
		end, err := ParseClock(sess.End)
		if err != nil {
			return nil, fmt.Errorf("symbol %s session %s: %w", r.symbol.Name, sess.Name, err)
		}

		localStart := time.Date(y, m, d, start.Hour, start.Minute, 0, 0, r.home)
		localEnd := time.Date(y, m, d, end.Hour, end.Minute, 0, 0, r.home)

		b := bound{
			name:  sess.Name,
			start: minuteOfDay(localStart.In(r.ref)),
			end:   minuteOfDay(localEnd.In(r.ref)),
		}
		b.full = b.start == b.end
		b.wraps = b.end < b.start
		bounds = append(bounds, b)
	}
	return bounds, nil
}

// Resolve returns the name of the session containing ts. A timestamp matching
// no session is a configuration gap and yields a SessionError.
func (r *Resolver) Resolve(ts time.Time) (string, error) {
	bounds, err := r.boundaries(ts)
	if err != nil {
		return "", err
	}
	minute := minuteOfDay(ts.In(r.ref))
	for _, b := range bounds {
		switch {
		case b.full:
			return b.name, nil
		case b.wraps:
			if minute >= b.start || minute < b.end {
				return b.name, nil
			}
		default:
			if minute >= b.start && minute < b.end {
				return b.name, nil
			}
		}
	}
	return "", &models.SessionError{Symbol: r.symbol.Name, Timestamp: ts}
}

// GapHours is the whole-hour UTC-offset gap between home and ref on the given
// date, sampled at noon UTC to stay clear of transition instants. Zones with
// fractional offsets round to the nearest hour.
func GapHours(date time.Time, home, ref *time.Location) int {
	y, m, d := date.UTC().Date()
	noon := time.Date(y, m, d, 12, 0, 0, 0, time.UTC)
	_, homeOff := noon.In(home).Zone()
	_, refOff := noon.In(ref).Zone()
	diff := homeOff - refOff
	if diff >= 0 {
		return (diff + 1800) / 3600
	}
	return -((-diff + 1800) / 3600)
}

// OriginShift is the hour correction to apply to a configured origin on the
// given date: the difference between the date's offset gap and the reference
// gap the session table was written for.
func (r *Resolver) OriginShift(date time.Time) int {
	return GapHours(date, r.home, r.ref) - r.symbol.ReferenceGap
}

// Origin returns the anchor instant for resampling rows of the given date
// against tf. An "epoch" origin bypasses session anchoring entirely; every
// other origin first classifies ts against the session table, so a timestamp
// no session contains surfaces as a SessionError instead of being bucketed
// off a table gap. The returned instant never lies after ts; for timestamps
// before the day's shifted origin clock the anchor falls back to the previous
// day.
func (r *Resolver) Origin(ts time.Time, tf config.TimeframeConfig) (time.Time, error) {
	if tf.Origin == config.OriginEpoch {
		return time.Unix(0, 0).UTC(), nil
	}
	if _, err := r.Resolve(ts); err != nil {
		return time.Time{}, err
	}
	base, err := ParseClock(tf.Origin)
	if err != nil {
		return time.Time{}, fmt.Errorf("timeframe %s: %w", tf.Name, err)
	}

	shift := r.OriginShift(ts)
	hour := ((base.Hour+shift)%24 + 24) % 24

	y, m, d := ts.In(r.ref).Date()
	origin := time.Date(y, m, d, hour, base.Minute, 0, 0, r.ref)
	if origin.After(ts) {
		origin = origin.AddDate(0, 0, -1)
	}
	return origin, nil
}

// Symbol returns the configured symbol name.
func (r *Resolver) Symbol() string { return r.symbol.Name }

func minuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}
