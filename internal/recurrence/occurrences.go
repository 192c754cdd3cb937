package recurrence

import (
	"fmt"
	"time"
)

// ValidationWindowDays is the forward window a rule must fire within to be
// accepted at template-save time.
const ValidationWindowDays = 365

// Safety limit against runaway iteration (e.g. BYMONTHDAY=31 with a large
// interval that keeps landing on short months).
const maxSteps = 10000

// Validate parses ruleStr and rejects rules that produce no occurrence in
// the ValidationWindowDays after anchor. Called at template-save time so
// evaluation never sees a bad rule.
func Validate(ruleStr string, anchor time.Time) error {
	rule, err := Parse(ruleStr)
	if err != nil {
		return err
	}

	window := StartOfDay(anchor).AddDate(0, 0, ValidationWindowDays)
	occ := Occurrences(rule, anchor, anchor, window, 1)
	if len(occ) == 0 {
		return fmt.Errorf("rule %q yields no occurrence within %d days", ruleStr, ValidationWindowDays)
	}
	return nil
}

// OccursOn reports whether the rule fires on the calendar day of date.
func OccursOn(rule Rule, anchor, date time.Time) bool {
	day := StartOfDay(date)
	if day.Before(StartOfDay(anchor)) {
		return false
	}
	occ := Occurrences(rule, anchor, day, day.AddDate(0, 0, 1), 1)
	return len(occ) == 1
}

// Occurrences returns occurrence days (start of day) in [from, to), at most
// limit entries (0 = no limit). The anchor fixes the cadence phase.
func Occurrences(rule Rule, anchor, from, to time.Time, limit int) []time.Time {
	fromDay := StartOfDay(from)
	toDay := StartOfDay(to)

	var out []time.Time
	count := 0
	steps := 0

	for d := range occurrenceDays(rule, StartOfDay(anchor)) {
		steps++
		if steps > maxSteps {
			break
		}
		count++
		if rule.Count > 0 && count > rule.Count {
			break
		}
		if rule.Until != nil && d.After(*rule.Until) {
			break
		}
		if !d.Before(toDay) {
			break
		}
		if d.Before(fromDay) {
			continue
		}
		out = append(out, d)
		if limit > 0 && len(out) >= limit {
			break
		}
	}
	return out
}

// NextAfterCompletion computes the next due day after a completion of the
// occurrence that was due on dueDate. When the rule shifts on late completion
// and the work finished past its due day, the cadence re-anchors on the
// completion day; on-time completion keeps the original phase.
func NextAfterCompletion(rule Rule, anchor, dueDate, completedAt time.Time) time.Time {
	completedDay := StartOfDay(completedAt)
	dueDay := StartOfDay(dueDate)

	if rule.Freq == Daily && completedDay.After(dueDay) {
		return completedDay.AddDate(0, 0, rule.Interval)
	}

	next := Occurrences(rule, anchor, dueDay.AddDate(0, 0, 1), dueDay.AddDate(0, 0, ValidationWindowDays), 1)
	if len(next) == 0 {
		return time.Time{}
	}
	return next[0]
}

// occurrenceDays yields the rule's occurrence days in ascending order,
// starting at the anchor day. Count/Until trimming is the caller's job.
func occurrenceDays(rule Rule, anchor time.Time) func(yield func(time.Time) bool) {
	switch rule.Freq {
	case Daily:
		return func(yield func(time.Time) bool) {
			for d := anchor; ; d = d.AddDate(0, 0, rule.Interval) {
				if !yield(d) {
					return
				}
			}
		}

	case Weekly:
		if len(rule.ByDay) == 0 {
			return func(yield func(time.Time) bool) {
				for d := anchor; ; d = d.AddDate(0, 0, 7*rule.Interval) {
					if !yield(d) {
						return
					}
				}
			}
		}
		return func(yield func(time.Time) bool) {
			for week := WeekStart(anchor); ; week = week.AddDate(0, 0, 7*rule.Interval) {
				for _, wd := range rule.ByDay {
					d := week.AddDate(0, 0, daysFromMonday(wd))
					if d.Before(anchor) {
						continue
					}
					if !yield(d) {
						return
					}
				}
			}
		}

	case Monthly:
		day := rule.ByMonthDay
		if day == 0 {
			day = anchor.Day()
		}
		return func(yield func(time.Time) bool) {
			first := time.Date(anchor.Year(), anchor.Month(), 1, 0, 0, 0, 0, anchor.Location())
			m := first
			for i := 0; i < maxSteps; i++ {
				candidate := m.AddDate(0, 0, day-1)
				// Months shorter than the target day are skipped entirely.
				if candidate.Month() == m.Month() && !candidate.Before(anchor) {
					if !yield(candidate) {
						return
					}
				}
				m = m.AddDate(0, rule.Interval, 0)
			}
		}

	case Yearly:
		return func(yield func(time.Time) bool) {
			month, day := anchor.Month(), anchor.Day()
			y := anchor.Year()
			for i := 0; i < maxSteps; i++ {
				candidate := time.Date(y, month, day, 0, 0, 0, 0, anchor.Location())
				// Feb 29 normalizes to Mar 1 in non-leap years; skip those.
				if candidate.Month() == month && !candidate.Before(anchor) {
					if !yield(candidate) {
						return
					}
				}
				y += rule.Interval
			}
		}
	}

	return func(yield func(time.Time) bool) {}
}

// StartOfDay truncates t to midnight in its own location.
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// DateKey formats t's calendar day as "2006-01-02", the form daily counters
// and rotation state are keyed by.
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// WeekStart returns the Monday midnight beginning t's week.
func WeekStart(t time.Time) time.Time {
	d := StartOfDay(t)
	return d.AddDate(0, 0, -daysFromMonday(d.Weekday()))
}

func daysFromMonday(wd time.Weekday) int {
	offset := int(wd) - int(time.Monday)
	if offset < 0 {
		offset += 7
	}
	return offset
}
