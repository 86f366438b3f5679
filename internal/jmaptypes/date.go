package jmaptypes

import "time"

// UTCDate is a UTC timestamp at second precision, matching the JMAP Date
// type. It is stored internally as signed seconds-since-epoch so the full
// range of a 64-bit timestamp round-trips through the codec (§4.1, §8).
type UTCDate struct {
	seconds int64
}

// UTCDateFromTimestamp builds a UTCDate from signed seconds-since-epoch.
func UTCDateFromTimestamp(seconds int64) UTCDate {
	return UTCDate{seconds: seconds}
}

// UTCDateNow returns the current time truncated to second precision.
func UTCDateNow() UTCDate {
	return UTCDateFromTimestamp(time.Now().UTC().Unix())
}

// Timestamp returns the signed seconds-since-epoch value.
func (d UTCDate) Timestamp() int64 { return d.seconds }

// Add returns a UTCDate offset by the given duration.
func (d UTCDate) Add(delta time.Duration) UTCDate {
	return UTCDateFromTimestamp(d.seconds + int64(delta.Seconds()))
}

// Sub returns the signed difference, in seconds, between two dates.
func (d UTCDate) Sub(other UTCDate) int64 {
	return d.seconds - other.seconds
}

// Time converts the UTCDate to a standard library time.Time in UTC.
func (d UTCDate) Time() time.Time {
	return time.Unix(d.seconds, 0).UTC()
}
