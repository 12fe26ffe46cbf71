// Package nnduration provides a non-negative duration type for configuration.
//
// In JSON and YAML, a value can be either a duration string such as "200us", or an integer number of nanoseconds.
package nnduration

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrNegative indicates the duration is negative.
var ErrNegative = errors.New("duration must be non-negative")

// Nanoseconds is a duration in nanoseconds.
type Nanoseconds uint64

// Duration converts to time.Duration.
func (d Nanoseconds) Duration() time.Duration {
	return time.Duration(d)
}

func (d Nanoseconds) String() string {
	return d.Duration().String()
}

// UnmarshalJSON implements json.Unmarshaler interface.
func (d *Nanoseconds) UnmarshalJSON(p []byte) error {
	s := strings.Trim(string(p), `"`)
	if dur, e := time.ParseDuration(s); e == nil {
		if dur < 0 {
			return ErrNegative
		}
		*d = Nanoseconds(dur)
		return nil
	}
	if strings.HasPrefix(s, "-") {
		return ErrNegative
	}
	n, e := strconv.ParseUint(s, 10, 64)
	if e != nil {
		return e
	}
	*d = Nanoseconds(n)
	return nil
}
