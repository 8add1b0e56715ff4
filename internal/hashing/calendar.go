package hashing

import (
	"math"
	"time"
)

// Season keys, matching the vocabulary bank.
const (
	Spring = "spring"
	Summer = "summer"
	Autumn = "autumn"
	Winter = "winter"
)

// Lunar phase keys, matching the vocabulary bank.
const (
	NewMoon  = "new"
	Waxing   = "waxing"
	FullMoon = "full"
	Waning   = "waning"
)

const synodicMonthDays = 29.530588853

// referenceNewMoon is the new moon of 2000-01-06 18:14 UTC.
var referenceNewMoon = time.Date(2000, time.January, 6, 18, 14, 0, 0, time.UTC)

// Season returns the (northern hemisphere) meteorological season of t.
func Season(t time.Time) string {
	switch t.UTC().Month() {
	case time.March, time.April, time.May:
		return Spring
	case time.June, time.July, time.August:
		return Summer
	case time.September, time.October, time.November:
		return Autumn
	default:
		return Winter
	}
}

// ApproxLunarPhase estimates the fraction of the synodic month elapsed at t.
// Accurate to within about a day, which is all the phrase selection needs.
func ApproxLunarPhase(t time.Time) float64 {
	days := t.UTC().Sub(referenceNewMoon).Hours() / 24
	f := math.Mod(days/synodicMonthDays, 1)
	if f < 0 {
		f++
	}
	return f
}

// LunarPhaseBucket maps a phase fraction to one of the four phase keys.
// Out-of-range values are wrapped into [0,1) first.
func LunarPhaseBucket(fraction float64) string {
	if math.IsNaN(fraction) || math.IsInf(fraction, 0) {
		return NewMoon
	}
	f := math.Mod(fraction, 1)
	if f < 0 {
		f++
	}
	switch {
	case f < 0.125 || f >= 0.875:
		return NewMoon
	case f < 0.375:
		return Waxing
	case f < 0.625:
		return FullMoon
	default:
		return Waning
	}
}
