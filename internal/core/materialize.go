package core

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// Schedule is the recurrence-relevant part of an income, expense or card
// charge: what the materializer reads and rewrites.
type Schedule struct {
	Description      string
	Amount           decimal.Decimal
	Month            Month
	Date             string
	Recurrence       Recurrence
	Installments     int
	InstallmentIndex int
	Months           []Month
}

// Scheduled is implemented by the entry kinds that recur.
type Scheduled[T any] interface {
	Schedule() Schedule
	WithSchedule(Schedule) T
}

// MaterializeOptions tunes how FIXED entries pick their reference month.
type MaterializeOptions struct {
	// FilterMonth is the month the client was looking at, if any.
	FilterMonth Month
}

// Materialize turns one submitted entry into the rows to persist.
//
// ONE_OFF yields one row without active months. FIXED yields one row active
// in the normalized month set. INSTALLMENT with N > 1 yields N rows with
// amount/N each, consecutive reference months and a "(i/N)" suffix. Rows
// that already carry an installment index were expanded when created and
// are returned unchanged.
func Materialize(s Schedule, opts MaterializeOptions) []Schedule {
	s.Recurrence = s.Recurrence.Normalize()

	switch s.Recurrence {
	case Fixed:
		return []Schedule{materializeFixed(s, opts)}
	case Installment:
		if s.InstallmentIndex > 0 {
			s.Months = nil
			if s.Installments < s.InstallmentIndex {
				s.Installments = s.InstallmentIndex
			}
			return []Schedule{s}
		}
		if s.Installments > 1 {
			return expandInstallments(s)
		}
		s.Recurrence = OneOff
	}

	s.Months = nil
	s.Installments = 0
	s.InstallmentIndex = 0
	return []Schedule{s}
}

func materializeFixed(s Schedule, opts MaterializeOptions) Schedule {
	s.Installments = 0
	s.InstallmentIndex = 0
	s.Months = NormalizeMonths(s.Months)
	if len(s.Months) == 0 {
		if s.Month.Valid() {
			s.Months = []Month{s.Month}
		}
		return s
	}
	if opts.FilterMonth.Valid() && ContainsMonth(s.Months, opts.FilterMonth) {
		s.Month = opts.FilterMonth
	} else {
		s.Month = s.Months[0]
	}
	return s
}

func expandInstallments(s Schedule) []Schedule {
	n := s.Installments
	share := s.Amount.Div(decimal.NewFromInt(int64(n))).Round(2)
	start := s.Month
	if !start.Valid() {
		start = 1
	}

	rows := make([]Schedule, 0, n)
	for i := 0; i < n; i++ {
		row := s
		row.Description = fmt.Sprintf("%s (%d/%d)", s.Description, i+1, n)
		row.Amount = share
		row.Month = start.Add(i)
		row.Date = addMonthsToDate(s.Date, i)
		row.Installments = n
		row.InstallmentIndex = i + 1
		row.Months = nil
		rows = append(rows, row)
	}
	return rows
}

// addMonthsToDate advances a YYYY-MM-DD date by n months, clamping to the
// last day of the target month. Unparseable dates are returned as-is.
func addMonthsToDate(date string, n int) string {
	if n == 0 || date == "" {
		return date
	}
	t, err := time.Parse(dateLayout, date)
	if err != nil {
		return date
	}
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(n), 1, 0, 0, 0, 0, time.UTC)
	lastDay := first.AddDate(0, 1, -1).Day()
	if d > lastDay {
		d = lastDay
	}
	return time.Date(first.Year(), first.Month(), d, 0, 0, 0, 0, time.UTC).Format(dateLayout)
}

// SplitFixedEdit compares a stored FIXED entry with its edited version.
// When the edit drops months, the dropped months are kept on a copy of the
// stored entry so their history is not lost. ok is false when nothing was
// dropped or either side is not FIXED.
func SplitFixedEdit(previous, edited Schedule) (preserved Schedule, ok bool) {
	if previous.Recurrence.Normalize() != Fixed || edited.Recurrence.Normalize() != Fixed {
		return Schedule{}, false
	}
	kept := NormalizeMonths(edited.Months)
	var removed []Month
	for _, m := range NormalizeMonths(previous.Months) {
		if !ContainsMonth(kept, m) {
			removed = append(removed, m)
		}
	}
	if len(removed) == 0 {
		return Schedule{}, false
	}
	preserved = previous
	preserved.Months = removed
	return materializeFixed(preserved, MaterializeOptions{}), true
}

// MaterializeEntry applies Materialize to an entry, keeping its other
// fields on every produced row.
func MaterializeEntry[T Scheduled[T]](item T, opts MaterializeOptions) []T {
	schedules := Materialize(item.Schedule(), opts)
	out := make([]T, len(schedules))
	for i, s := range schedules {
		out[i] = item.WithSchedule(s)
	}
	return out
}

func (e Entry) Schedule() Schedule {
	return Schedule{
		Description:      e.Description,
		Amount:           e.Amount,
		Month:            e.Month,
		Date:             e.Date,
		Recurrence:       e.Recurrence,
		Installments:     e.Installments,
		InstallmentIndex: e.InstallmentIndex,
		Months:           e.Months,
	}
}

func (e Entry) WithSchedule(s Schedule) Entry {
	e.Description = s.Description
	e.Amount = s.Amount
	e.Month = s.Month
	e.Date = s.Date
	e.Recurrence = s.Recurrence
	e.Installments = s.Installments
	e.InstallmentIndex = s.InstallmentIndex
	e.Months = s.Months
	return e
}

func (c CardCharge) Schedule() Schedule {
	return Schedule{
		Description:      c.Description,
		Amount:           c.Amount,
		Month:            c.ReferenceMonth,
		Date:             c.Date,
		Recurrence:       c.Recurrence,
		Installments:     c.Installments,
		InstallmentIndex: c.InstallmentIndex,
		Months:           c.Months,
	}
}

func (c CardCharge) WithSchedule(s Schedule) CardCharge {
	c.Description = s.Description
	c.Amount = s.Amount
	c.ReferenceMonth = s.Month
	c.Date = s.Date
	c.Recurrence = s.Recurrence
	c.Installments = s.Installments
	c.InstallmentIndex = s.InstallmentIndex
	c.Months = s.Months
	return c
}
