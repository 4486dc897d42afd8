// Package timeparse turns free-text appointment times into canonical UTC
// timestamps truncated to the minute.
package timeparse

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/araddon/dateparse"
	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
)

var (
	ErrParse    = errors.New("could not parse appointment time")
	ErrPastTime = errors.New("appointment time is in the past")
)

// ParseError reports input that did not resolve to any date or time.
type ParseError struct {
	Raw string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("could not parse appointment time %q", e.Raw)
}

func (e *ParseError) Unwrap() error { return ErrParse }

// PastTimeError reports input that resolved to a minute before now.
type PastTimeError struct {
	Raw string
	At  time.Time
}

func (e *PastTimeError) Error() string {
	return fmt.Sprintf("appointment time %q resolves to %s which is in the past", e.Raw, e.At.Format(time.RFC3339))
}

func (e *PastTimeError) Unwrap() error { return ErrPastTime }

var (
	// anchored expressions name a specific day and are never rolled forward
	anchorRe = regexp.MustCompile(`(?i)\b(today|tonight|tomorrow|tmrw|yesterday|ago|last|past|next|this|jan(uary)?|feb(ruary)?|mar(ch)?|apr(il)?|may|june?|july?|aug(ust)?|sep(t|tember)?|oct(ober)?|nov(ember)?|dec(ember)?)\b|\d{4}|\d{1,2}[/.-]\d{1,2}|\d{1,2}(st|nd|rd|th)\b`)
	weekdayRe = regexp.MustCompile(`(?i)\b(mon|tue|tues|wed|thu|thur|thurs|fri|sat|sun)(day|nesday|sday|urday)?\b`)
)

type Option func(*Normalizer)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(n *Normalizer) {
		if now != nil {
			n.now = now
		}
	}
}

type Normalizer struct {
	now    func() time.Time
	parser *when.Parser
}

func New(opts ...Option) *Normalizer {
	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	n := &Normalizer{
		now:    time.Now,
		parser: w,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Now is the default booking time when an event carries none.
func (n *Normalizer) Now() time.Time {
	return truncate(n.now())
}

// Parse resolves raw relative to the normalizer's clock. Ambiguous bare
// clock times and weekdays prefer their next future occurrence.
func (n *Normalizer) Parse(raw string) (time.Time, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return time.Time{}, &ParseError{Raw: raw}
	}

	now := n.now().UTC()

	at, ok := parseAbsolute(text)
	if !ok {
		res, err := n.parser.Parse(text, now)
		if err != nil || res == nil {
			return time.Time{}, &ParseError{Raw: raw}
		}
		at = res.Time.UTC()

		if at.Before(now) && !anchorRe.MatchString(text) {
			if weekdayRe.MatchString(text) {
				at = at.AddDate(0, 0, 7)
			} else {
				at = at.AddDate(0, 0, 1)
			}
		}
	}

	at = truncate(at)
	if at.Before(truncate(now)) {
		return time.Time{}, &PastTimeError{Raw: raw, At: at}
	}
	return at, nil
}

// parseAbsolute handles ISO-8601 and other fully specified dates.
func parseAbsolute(text string) (time.Time, bool) {
	if !strings.ContainsAny(text, "0123456789") {
		return time.Time{}, false
	}
	t, err := dateparse.ParseIn(text, time.UTC)
	if err != nil || t.Year() < 1970 {
		return time.Time{}, false
	}
	return t.UTC(), true
}

func truncate(t time.Time) time.Time {
	return t.UTC().Truncate(time.Minute)
}
