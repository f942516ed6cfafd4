package timebase

import (
	"math"
	"math/rand"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"go.viam.com/test"
)

func newMockTimeBase() (*TimeBase, *clock.Mock) {
	mock := clock.NewMock()
	mock.Set(time.Date(2024, 3, 14, 15, 9, 26, 0, time.UTC))
	return New(mock), mock
}

func TestFilterConvergence(t *testing.T) {
	tb, mock := newMockTimeBase()
	start := mock.Now()
	trueOffset := float64(start.UnixNano())*1e-9 - 100

	// The first sample is read 50ms late, so the seeded offset is off by that much.
	mock.Add(50 * time.Millisecond)
	tb.FromDeviceTime(100)
	test.That(t, tb.LocalOffset()-trueOffset, test.ShouldAlmostEqual, 0.05, 1e-6)

	for i := 10; i < 1010; i++ {
		mock.Set(start.Add(time.Duration(i) * 10 * time.Millisecond))
		tb.FromDeviceTime(100 + float64(i)*0.01)
		if i == 20 {
			test.That(t, math.Abs(tb.LocalOffset()-trueOffset), test.ShouldBeGreaterThan, 1e-3)
		}
	}
	test.That(t, tb.LocalOffset(), test.ShouldAlmostEqual, trueOffset, 1e-3)
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeFalse)
}

func TestFilteredStampsNonDecreasing(t *testing.T) {
	tb, mock := newMockTimeBase()
	rng := rand.New(rand.NewSource(7))

	var last time.Time
	deviceTime := 5.0
	for i := 0; i < 2000; i++ {
		// Scheduling jitter only ever delays the read.
		mock.Add(10*time.Millisecond + time.Duration(rng.Intn(10))*time.Millisecond)
		deviceTime += 0.01
		stamp := tb.FromDeviceTime(deviceTime)
		test.That(t, stamp.Before(last), test.ShouldBeFalse)
		last = stamp
	}
}

func TestFilteredStampsMixedShapes(t *testing.T) {
	tb, mock := newMockTimeBase()

	imu := tb.FromDeviceTime(500)
	mock.Add(10 * time.Millisecond)

	pos := tb.FromWeekAndTow(0, 0)
	test.That(t, pos.Equal(floatSecondsToTime(tb.LocalOffset())), test.ShouldBeTrue)
	vel := tb.FromTow(0.2)
	test.That(t, vel.Equal(floatSecondsToTime(tb.LocalOffset()+0.2)), test.ShouldBeTrue)
	test.That(t, vel.Equal(pos), test.ShouldBeFalse)
	test.That(t, vel.After(pos), test.ShouldBeTrue)

	mock.Add(10 * time.Millisecond)
	next := tb.FromDeviceTime(500.02)
	test.That(t, next.Equal(floatSecondsToTime(tb.LocalOffset()+500.02)), test.ShouldBeTrue)
	test.That(t, next.After(imu), test.ShouldBeTrue)
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeFalse)
}

func TestAbsoluteTimeLatches(t *testing.T) {
	tb, _ := newMockTimeBase()

	tb.ObserveGPS(2300, 0)
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeFalse)
	tb.ObserveGPS(2300, 0.0005)
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeFalse)

	tb.ObserveGPS(2300, 345000.25)
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeTrue)

	// Fix lost: nothing reverts.
	tb.ObserveGPS(0, 0)
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeTrue)
	test.That(t, tb.Week(), test.ShouldEqual, 2300)
	test.That(t, tb.TowOffset(), test.ShouldEqual, 345000.25)

	for i := 0; i < 10; i++ {
		tb.FromDeviceTime(float64(i))
	}
	test.That(t, tb.HasAbsoluteTime(), test.ShouldBeTrue)
}

func TestAbsoluteStamps(t *testing.T) {
	tb, _ := newMockTimeBase()
	tb.ObserveGPS(2300, 345000.25)

	stamp := tb.FromWeekAndTow(2300, 345600.125)
	test.That(t, stamp.Unix(), test.ShouldEqual, int64(UnixToGPSOffset+345600+2300*SecondsPerWeek))
	test.That(t, stamp.Nanosecond(), test.ShouldEqual, 125000000)

	// Device time shifted by the tow offset lands on the same instant.
	fromDevice := tb.FromDeviceTime(599.875)
	test.That(t, fromDevice.Equal(stamp), test.ShouldBeTrue)

	test.That(t, tb.FromTow(345600.125).Equal(stamp), test.ShouldBeTrue)
}

func TestBeforeFixWeekStampsAreFiltered(t *testing.T) {
	tb, mock := newMockTimeBase()
	stamp := tb.FromWeekAndTow(2300, 12.5)
	expected := mock.Now()
	test.That(t, stamp.Sub(expected), test.ShouldBeLessThan, time.Microsecond)
	test.That(t, expected.Sub(stamp), test.ShouldBeLessThan, time.Microsecond)
}

func TestTowRoundTrip(t *testing.T) {
	tb, _ := newMockTimeBase()
	tb.ObserveGPS(2291, 1.5)

	for _, tow := range []float64{0, 0.001, 12.345678, 302400.5, 604799.999} {
		stamp := tb.FromWeekAndTow(2291, tow)
		test.That(t, tb.TowFromTime(stamp), test.ShouldAlmostEqual, tow, 1e-6)
	}
}
