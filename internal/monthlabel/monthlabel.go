// Package monthlabel converts between calendar months and the labels shown to
// users ("февраль 24", "за февраль 2024").
package monthlabel

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

var monthNames = [12]string{
	"январь",
	"февраль",
	"март",
	"апрель",
	"май",
	"июнь",
	"июль",
	"август",
	"сентябрь",
	"октябрь",
	"ноябрь",
	"декабрь",
}

const labelPrefix = "за"

// Month is a calendar month.
type Month struct {
	Year  int
	Month time.Month
}

// Of returns the calendar month containing t.
func Of(t time.Time) Month {
	return Month{Year: t.Year(), Month: t.Month()}
}

// Prev returns the month immediately before m.
func (m Month) Prev() Month {
	if m.Month == time.January {
		return Month{Year: m.Year - 1, Month: time.December}
	}
	return Month{Year: m.Year, Month: m.Month - 1}
}

// Before reports whether m is earlier than o.
func (m Month) Before(o Month) bool {
	if m.Year != o.Year {
		return m.Year < o.Year
	}
	return m.Month < o.Month
}

// Label renders m in the short "<month> <yy>" form.
func (m Month) Label() string {
	return fmt.Sprintf("%s %02d", monthNames[m.Month-1], m.Year%100)
}

func (m Month) String() string {
	return fmt.Sprintf("%04d-%02d", m.Year, int(m.Month))
}

// ParseError reports a label that does not name a calendar month.
type ParseError struct {
	Label  string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid month label %q: %s", e.Label, e.Reason)
}

// PreviousMonthLabel returns the label of the month before the one containing ref.
func PreviousMonthLabel(ref time.Time) string {
	return Of(ref).Prev().Label()
}

// LastThreeMonthLabels returns the labels of the three months before ref's month,
// most recent first.
func LastThreeMonthLabels(ref time.Time) []string {
	labels := make([]string, 0, 3)
	m := Of(ref)
	for i := 0; i < 3; i++ {
		m = m.Prev()
		labels = append(labels, m.Label())
	}
	return labels
}

// Parse turns a label back into a calendar month. The "за" prefix is optional,
// month names are matched case-insensitively and two-digit years mean 20yy.
func Parse(label string) (Month, error) {
	tokens := strings.Fields(strings.ToLower(label))
	if len(tokens) > 0 && tokens[0] == labelPrefix {
		tokens = tokens[1:]
	}
	if len(tokens) < 2 {
		return Month{}, &ParseError{Label: label, Reason: "expected month and year"}
	}

	idx := -1
	for i, name := range monthNames {
		if tokens[0] == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return Month{}, &ParseError{Label: label, Reason: fmt.Sprintf("unknown month %q", tokens[0])}
	}

	year, err := strconv.Atoi(tokens[1])
	if err != nil || year < 0 {
		return Month{}, &ParseError{Label: label, Reason: fmt.Sprintf("invalid year %q", tokens[1])}
	}
	if year < 100 {
		year += 2000
	}

	return Month{Year: year, Month: time.Month(idx + 1)}, nil
}
