// Package domain models the spray advisory and crop scan data handled by the
// farmer-facing core.
//
// # Forecast Conventions
//
// Hourly samples come from the weather provider in time order. The advisory
// classifies the near-term window, which callers take as the first 12 samples
// at or after the current hour:
//
//	rain probability  percent, 0–100
//	wind speed        km/h at 10 m, ≥ 0
//	temperature       °C, informational only
//
// # Spray Thresholds
//
// The thresholds are fixed and shared with the mobile client, so they must not
// drift:
//
//	DoNotSpray  any sample with rain ≥ 40 (reason rain, checked first)
//	            or any sample with wind ≥ 18 (reason wind)
//	Caution     any sample with rain ≥ 20 or wind ≥ 12
//	Good        otherwise
//
// A sample is "good" when rain < 20 and wind < 12. The next good window is the
// first contiguous run of good samples; later runs are not reported.
//
// An empty forecast classifies as Good with no window. This fail-open default
// keeps the home surface responsive when the provider returns nothing.
//
// # Civil Dates
//
// The one-scan-per-day quota compares ISO calendar dates ("2006-01-02") taken
// in a fixed reference timezone, never the device zone. A queued scan keeps the
// civil date of the moment it was submitted, not the moment it was delivered.
//
// # Single Slots
//
// The core stores at most one Field (id [FieldID]) and at most one ScanRecord.
// Writes replace; they never append.
package domain
