package core

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// Month is a calendar month, 1 (Janeiro) through 12 (Dezembro). The zero
// value means "no month".
type Month int

var monthNames = [...]string{
	"Janeiro", "Fevereiro", "Março", "Abril", "Maio", "Junho",
	"Julho", "Agosto", "Setembro", "Outubro", "Novembro", "Dezembro",
}

var monthsByFoldedName = func() map[string]Month {
	m := make(map[string]Month, len(monthNames))
	for i, name := range monthNames {
		m[FoldName(name)] = Month(i + 1)
	}
	return m
}()

// ParseMonth accepts a month name in any case, with or without diacritics,
// or its number as a string.
func ParseMonth(s string) (Month, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		m := Month(n)
		if !m.Valid() {
			return 0, fmt.Errorf("%w: %d", ErrUnknownMonth, n)
		}
		return m, nil
	}
	if m, ok := monthsByFoldedName[FoldName(s)]; ok {
		return m, nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownMonth, s)
}

// Valid reports whether m is between Janeiro and Dezembro.
func (m Month) Valid() bool {
	return m >= 1 && m <= 12
}

// String returns the Portuguese month name, or "" for the zero month.
func (m Month) String() string {
	if !m.Valid() {
		return ""
	}
	return monthNames[m-1]
}

// Add moves n months forward, wrapping Dezembro to Janeiro.
func (m Month) Add(n int) Month {
	if !m.Valid() {
		return m
	}
	return Month(((int(m)-1+n)%12+12)%12 + 1)
}

func (m Month) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

func (m *Month) UnmarshalText(text []byte) error {
	parsed, err := ParseMonth(string(text))
	if err != nil {
		return err
	}
	*m = parsed
	return nil
}

func (m Month) MarshalJSON() ([]byte, error) {
	return json.Marshal(m.String())
}

// UnmarshalJSON accepts a month name, a month number, or null.
func (m *Month) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*m = 0
		return nil
	}
	var name string
	if err := json.Unmarshal(data, &name); err == nil {
		return m.UnmarshalText([]byte(name))
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrUnknownMonth, data)
	}
	parsed := Month(n)
	if n != 0 && !parsed.Valid() {
		return fmt.Errorf("%w: %d", ErrUnknownMonth, n)
	}
	*m = parsed
	return nil
}

// NormalizeMonths drops invalid months and duplicates and returns the rest
// in calendar order.
func NormalizeMonths(months []Month) []Month {
	seen := make(map[Month]bool, len(months))
	out := make([]Month, 0, len(months))
	for _, m := range months {
		if !m.Valid() || seen[m] {
			continue
		}
		seen[m] = true
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ContainsMonth reports whether m is in months.
func ContainsMonth(months []Month, m Month) bool {
	for _, candidate := range months {
		if candidate == m {
			return true
		}
	}
	return false
}

// MonthsToInts converts months for storage.
func MonthsToInts(months []Month) []int {
	out := make([]int, len(months))
	for i, m := range months {
		out[i] = int(m)
	}
	return out
}

// MonthsFromInts converts stored month numbers, in calendar order.
func MonthsFromInts(values []int) []Month {
	out := make([]Month, len(values))
	for i, v := range values {
		out[i] = Month(v)
	}
	return NormalizeMonths(out)
}
