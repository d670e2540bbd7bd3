// Package schedule implements 5-field cron expression parsing and
// due-ness evaluation against a (lastRun, now] window.
//
// Parsing is the sole validation point: an Expression that exists is
// valid, and evaluation never fails. The day-of-month field is special:
// its range items are kept in raw form and resolved against the
// calendar month of each candidate day, so a "29-31" range still fires
// on February 28 and a long-running process never evaluates against a
// stale month length.
package schedule

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/bnema/rotavault/internal/domain"
)

type fieldKind int

const (
	fieldMinute fieldKind = iota
	fieldHour
	fieldDayOfMonth
	fieldMonth
	fieldDayOfWeek
)

var fieldNames = [...]string{"minute", "hour", "day_of_month", "month", "day_of_week"}

// Absolute bounds per field. Day-of-week accepts 0-7 with 7 aliasing 0
// (Sunday); day-of-month accepts 1-31 and is narrowed per evaluation
// month.
var fieldBounds = [...]struct{ min, max int }{
	{0, 59},
	{0, 23},
	{1, 31},
	{1, 12},
	{0, 7},
}

// span is one parsed field item: a literal (begin == end), an explicit
// range, or a wildcard expanded to the field bounds, with its stride.
type span struct {
	begin, end, step int
}

// Expression is an immutable parsed 5-field cron expression.
type Expression struct {
	raw      string
	minutes  []int
	hours    []int
	months   []int
	weekdays []int  // raw values, both 0 and 7 preserved
	days     []span // day-of-month, resolved per evaluation month
}

// Parse validates and parses a cron-style string such as
// "*/5 1,3,7 10-15 * 0". It fails with domain.ErrMalformedExpression
// when the field count is not 5, domain.ErrInvalidRange for a reversed
// range or a begin below the field minimum, domain.ErrInvalidValue for
// an out-of-range literal, and domain.ErrMalformedStep when an item
// carries more than one "/".
func Parse(raw string) (*Expression, error) {
	fields := strings.Fields(raw)
	if len(fields) != 5 {
		return nil, fmt.Errorf("%w: want 5 fields, got %d", domain.ErrMalformedExpression, len(fields))
	}

	expr := &Expression{raw: raw}
	for kind := fieldMinute; kind <= fieldDayOfWeek; kind++ {
		spans, err := parseField(kind, fields[kind])
		if err != nil {
			return nil, err
		}
		if kind == fieldDayOfMonth {
			expr.days = spans
			continue
		}
		set := expand(spans)
		switch kind {
		case fieldMinute:
			expr.minutes = set
		case fieldHour:
			expr.hours = set
		case fieldMonth:
			expr.months = set
		case fieldDayOfWeek:
			expr.weekdays = set
		}
	}
	return expr, nil
}

// MustParse is a test and wiring convenience that panics on error.
func MustParse(raw string) *Expression {
	expr, err := Parse(raw)
	if err != nil {
		panic(err)
	}
	return expr
}

func parseField(kind fieldKind, field string) ([]span, error) {
	var spans []span
	for _, item := range strings.Split(field, ",") {
		s, err := parseItem(kind, item)
		if err != nil {
			return nil, err
		}
		spans = append(spans, s)
	}
	return spans, nil
}

func parseItem(kind fieldKind, item string) (span, error) {
	bounds := fieldBounds[kind]
	name := fieldNames[kind]

	step := 1
	if strings.Contains(item, "/") {
		parts := strings.Split(item, "/")
		if len(parts) != 2 {
			return span{}, fmt.Errorf("%w: %q in %s field", domain.ErrMalformedStep, item, name)
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n < 1 {
			return span{}, fmt.Errorf("%w: step %q in %s field", domain.ErrMalformedStep, parts[1], name)
		}
		item, step = parts[0], n
	}

	switch {
	case item == "*":
		return span{begin: bounds.min, end: bounds.max, step: step}, nil

	case strings.Contains(item, "-"):
		parts := strings.Split(item, "-")
		if len(parts) != 2 {
			return span{}, fmt.Errorf("%w: %q in %s field", domain.ErrInvalidRange, item, name)
		}
		begin, err := strconv.Atoi(parts[0])
		if err != nil {
			return span{}, fmt.Errorf("%w: %q in %s field", domain.ErrInvalidValue, parts[0], name)
		}
		end, err := strconv.Atoi(parts[1])
		if err != nil {
			return span{}, fmt.Errorf("%w: %q in %s field", domain.ErrInvalidValue, parts[1], name)
		}
		if begin < bounds.min {
			return span{}, fmt.Errorf("%w: %d below %s minimum %d", domain.ErrInvalidRange, begin, name, bounds.min)
		}
		if begin > bounds.max {
			return span{}, fmt.Errorf("%w: %d above %s maximum %d", domain.ErrInvalidValue, begin, name, bounds.max)
		}
		if end < begin {
			return span{}, fmt.Errorf("%w: %d-%d reversed in %s field", domain.ErrInvalidRange, begin, end, name)
		}
		// A range end beyond the field maximum is silently clamped, so
		// usually-valid overruns like 29-31 keep working in short months.
		if end > bounds.max {
			end = bounds.max
		}
		return span{begin: begin, end: end, step: step}, nil

	default:
		v, err := strconv.Atoi(item)
		if err != nil {
			return span{}, fmt.Errorf("%w: %q in %s field", domain.ErrInvalidValue, item, name)
		}
		if v < bounds.min || v > bounds.max {
			return span{}, fmt.Errorf("%w: %d outside %d-%d in %s field", domain.ErrInvalidValue, v, bounds.min, bounds.max, name)
		}
		return span{begin: v, end: v, step: step}, nil
	}
}

// expand resolves spans into a sorted, deduplicated value set.
func expand(spans []span) []int {
	seen := make(map[int]struct{})
	for _, s := range spans {
		for v := s.begin; v <= s.end; v += s.step {
			seen[v] = struct{}{}
		}
	}
	set := make([]int, 0, len(seen))
	for v := range seen {
		set = append(set, v)
	}
	sort.Ints(set)
	return set
}

// daysFor resolves the day-of-month set for a concrete month. Range
// bounds are clamped to the month's last day; a clamped range such as
// 29-31 in a 28-day February collapses to {28}.
func (e *Expression) daysFor(year int, month time.Month) []int {
	last := daysIn(year, month)
	clamped := make([]span, 0, len(e.days))
	for _, s := range e.days {
		b, end := s.begin, s.end
		if b > last {
			if b == end {
				// A literal beyond the month never matches; only ranges clamp.
				continue
			}
			b = last
		}
		if end > last {
			end = last
		}
		clamped = append(clamped, span{begin: b, end: end, step: s.step})
	}
	return expand(clamped)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 1, -1).Day()
}

// String returns the original cron string.
func (e *Expression) String() string { return e.raw }

// Minutes returns the resolved minute set.
func (e *Expression) Minutes() []int { return append([]int(nil), e.minutes...) }

// Hours returns the resolved hour set.
func (e *Expression) Hours() []int { return append([]int(nil), e.hours...) }

// Months returns the resolved month set.
func (e *Expression) Months() []int { return append([]int(nil), e.months...) }

// Weekdays returns the raw day-of-week set. Both 0 and 7 stay queryable
// when the expression names them; matching treats them as the same day.
func (e *Expression) Weekdays() []int { return append([]int(nil), e.weekdays...) }

// DaysOfMonth returns the day-of-month set as it resolves for the given
// month.
func (e *Expression) DaysOfMonth(year int, month time.Month) []int {
	return e.daysFor(year, month)
}
