// Package timebase converts device time stamps into publishable wall time.
//
// The device reports time in two shapes: GPS week plus seconds of week for position bearing data,
// and seconds since boot for inertial data. Before the receiver has a fix there is no absolute
// reference, so device time is mapped onto the host clock through a low pass filtered offset.
// Once a valid fix has been seen both shapes map exactly onto GPS time for the rest of the process.
package timebase

import (
	"math"
	"time"

	"github.com/benbjohnson/clock"
)

const (
	// UnixToGPSOffset is the number of seconds between the Unix and GPS epochs.
	UnixToGPSOffset = 315964800
	// SecondsPerWeek is the length of a GPS week.
	SecondsPerWeek = 7 * 24 * 3600

	// validTowOffset is the smallest tow offset treated as a real fix.
	validTowOffset = 0.001
	// filterGain weights each new offset observation; about 200 samples to settle.
	filterGain = 0.005
)

// TimeBase holds the clock reconciliation state for one device. It is not safe for concurrent use;
// the bridge drives it from a single loop.
type TimeBase struct {
	clock clock.Clock

	gpsWeek         uint32
	towOffset       float64
	hasAbsoluteTime bool

	seeded      bool
	localOffset float64
}

// New returns a TimeBase reading the host time from clk. A nil clk uses the real clock.
func New(clk clock.Clock) *TimeBase {
	if clk == nil {
		clk = clock.New()
	}
	return &TimeBase{clock: clk}
}

// ObserveGPS records the week and device to GPS offset carried by a position fix. Fixes without a
// valid offset are ignored, so once absolute time is known it stays known.
func (tb *TimeBase) ObserveGPS(week uint32, towOffset float64) {
	if towOffset <= validTowOffset {
		return
	}
	tb.gpsWeek = week
	tb.towOffset = towOffset
	tb.hasAbsoluteTime = true
}

// HasAbsoluteTime reports whether a valid GPS fix has ever been observed.
func (tb *TimeBase) HasAbsoluteTime() bool {
	return tb.hasAbsoluteTime
}

// Week is the last valid GPS week, zero before the first fix.
func (tb *TimeBase) Week() uint32 {
	return tb.gpsWeek
}

// TowOffset is the last valid device to GPS time of week offset in seconds.
func (tb *TimeBase) TowOffset() float64 {
	return tb.towOffset
}

// LocalOffset is the filtered host minus device clock offset in seconds.
func (tb *TimeBase) LocalOffset() float64 {
	return tb.localOffset
}

// FromWeekAndTow stamps a week and seconds of week sample. Before absolute time is known the
// seconds of week value goes through the filtered device clock path instead.
func (tb *TimeBase) FromWeekAndTow(week uint32, tow float64) time.Time {
	if !tb.hasAbsoluteTime {
		return tb.filtered(tow)
	}
	return gpsTime(week, tow)
}

// FromTow stamps a seconds of week sample using the last known week.
func (tb *TimeBase) FromTow(tow float64) time.Time {
	return tb.FromWeekAndTow(tb.gpsWeek, tow)
}

// FromDeviceTime stamps a sample carrying seconds since device boot.
func (tb *TimeBase) FromDeviceTime(t float64) time.Time {
	if !tb.hasAbsoluteTime {
		return tb.filtered(t)
	}
	return gpsTime(tb.gpsWeek, t+tb.towOffset)
}

// TowFromTime is the inverse of FromWeekAndTow for the current week.
func (tb *TimeBase) TowFromTime(t time.Time) float64 {
	sec := t.Unix() - UnixToGPSOffset - int64(tb.gpsWeek)*SecondsPerWeek
	return float64(sec) + float64(t.Nanosecond())*1e-9
}

func (tb *TimeBase) filtered(deviceTime float64) time.Time {
	now := tb.clock.Now()
	y := float64(now.UnixNano())*1e-9 - deviceTime
	if !tb.seeded {
		tb.seeded = true
		tb.localOffset = y
	} else {
		tb.localOffset = filterGain*y + (1-filterGain)*tb.localOffset
	}

	// Both time shapes share one offset, so stamps are not clamped against each other.
	return floatSecondsToTime(tb.localOffset + deviceTime)
}

func gpsTime(week uint32, tow float64) time.Time {
	whole := math.Floor(tow)
	sec := UnixToGPSOffset + int64(whole) + int64(week)*SecondsPerWeek
	nsec := int64((tow - whole) * 1e9)
	return time.Unix(sec, nsec).UTC()
}

func floatSecondsToTime(s float64) time.Time {
	whole := math.Floor(s)
	return time.Unix(int64(whole), int64((s-whole)*1e9)).UTC()
}
