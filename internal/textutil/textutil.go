// Package textutil holds small text and clock helpers shared by the services.
package textutil

import (
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TimestampLayout is the display and storage layout for timestamps.
const TimestampLayout = "2006-01-02 15:04:05"

// Capitalize upper-cases the first letter of every space-separated word and
// leaves the rest of each word untouched. Runs of spaces are preserved.
// A Caser is stateful, so one is built per call.
func Capitalize(s string) string {
	words := strings.Split(s, " ")
	for i, w := range words {
		if w == "" {
			continue
		}
		r, size := utf8.DecodeRuneInString(w)
		words[i] = cases.Upper(language.Und).String(string(r)) + w[size:]
	}
	return strings.Join(words, " ")
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock.
var SystemClock Clock = ClockFunc(time.Now)

// Stamp formats the clock's current time in loc using TimestampLayout.
func Stamp(c Clock, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return c.Now().In(loc).Format(TimestampLayout)
}

// ParseStamp parses a value written by Stamp.
func ParseStamp(s string, loc *time.Location) (time.Time, error) {
	if loc == nil {
		loc = time.UTC
	}
	return time.ParseInLocation(TimestampLayout, s, loc)
}
