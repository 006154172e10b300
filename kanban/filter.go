package kanban

import (
	"math"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Filter values meaning "no restriction".
const (
	FilterAll = "all"
)

// Date range windows.
const (
	DateRangeAll    = "all"
	DateRange7Days  = "7days"
	DateRange30Days = "30days"
)

// Sort keys.
const (
	SortDateDesc = "date_desc"
	SortDateAsc  = "date_asc"
	SortNameAsc  = "name_asc"
)

// FilterState is the board session's current search, filter and sort selection.
type FilterState struct {
	Search    string `json:"search"`
	Stage     string `json:"stage"`
	Source    string `json:"source"`
	DateRange string `json:"dateRange"`
	Sort      string `json:"sort"`
}

// DefaultFilter returns the selection a fresh board starts with.
func DefaultFilter() FilterState {
	return FilterState{
		Stage:     FilterAll,
		Source:    FilterAll,
		DateRange: DateRangeAll,
		Sort:      SortDateDesc,
	}
}

// Reset restores the default selection.
func (f *FilterState) Reset() {
	*f = DefaultFilter()
}

// Filter derives the displayed subset and order of leads.
type Filter struct {
	locale language.Tag
}

// NewFilter creates a filter that sorts names by the given BCP 47 locale.
// An unparseable locale falls back to Brazilian Portuguese.
func NewFilter(locale string) *Filter {
	tag, err := language.Parse(locale)
	if err != nil {
		tag = language.BrazilianPortuguese
	}
	return &Filter{locale: tag}
}

// Apply returns the leads matching st in the requested order. The input is not modified.
func (f *Filter) Apply(leads []Lead, st FilterState, now time.Time) []Lead {
	fold := cases.Fold()
	term := fold.String(strings.TrimSpace(st.Search))

	out := make([]Lead, 0, len(leads))
	for _, l := range leads {
		if !matchesTerm(fold, l, term) {
			continue
		}
		if !matchesDate(l, st.DateRange, now) {
			continue
		}
		if st.Stage != "" && st.Stage != FilterAll && string(l.Status) != st.Stage {
			continue
		}
		if st.Source != "" && st.Source != FilterAll && string(l.Source.Normalize()) != strings.ToLower(st.Source) {
			continue
		}
		out = append(out, l)
	}

	switch st.Sort {
	case SortDateDesc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		})
	case SortDateAsc:
		sort.SliceStable(out, func(i, j int) bool {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		})
	case SortNameAsc:
		c := collate.New(f.locale)
		sort.SliceStable(out, func(i, j int) bool {
			return c.CompareString(out[i].Name, out[j].Name) < 0
		})
	}

	return out
}

func matchesTerm(fold cases.Caser, l Lead, term string) bool {
	if term == "" {
		return true
	}
	for _, field := range []string{l.Name, l.Company, l.Email} {
		if field != "" && strings.Contains(fold.String(field), term) {
			return true
		}
	}
	return false
}

// matchesDate keeps leads whose age in days, rounded up, fits the window.
func matchesDate(l Lead, window string, now time.Time) bool {
	var limit int
	switch window {
	case DateRange7Days:
		limit = 7
	case DateRange30Days:
		limit = 30
	default:
		return true
	}
	return ElapsedDays(l.CreatedAt, now) <= limit
}

// ElapsedDays returns the absolute distance between two instants in days, rounded up.
func ElapsedDays(from, to time.Time) int {
	d := to.Sub(from)
	if d < 0 {
		d = -d
	}
	return int(math.Ceil(float64(d) / float64(24*time.Hour)))
}
