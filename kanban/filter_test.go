package kanban

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(leads []Lead) []LeadID {
	out := make([]LeadID, len(leads))
	for i, l := range leads {
		out[i] = l.ID
	}
	return out
}

func TestFilterSearchMatchesNameCompanyEmail(t *testing.T) {
	now := time.Now()
	leads := []Lead{
		{ID: "1", Name: "João Silva", Company: "Tech Corp", CreatedAt: now},
		{ID: "2", Name: "Maria", Email: "maria@TECH.io", CreatedAt: now},
		{ID: "3", Name: "Pedro", Company: "Design Studio", Phone: "tech", CreatedAt: now},
	}
	f := NewFilter("pt-BR")
	st := DefaultFilter()
	st.Search = "TeCh"

	got := f.Apply(leads, st, now)
	assert.ElementsMatch(t, []LeadID{"1", "2"}, ids(got))

	st.Search = ""
	assert.Len(t, f.Apply(leads, st, now), 3)
}

func TestFilterDateRangeBoundary(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	leads := []Lead{
		{ID: "exact", CreatedAt: now.Add(-7 * 24 * time.Hour)},
		{ID: "over", CreatedAt: now.Add(-7*24*time.Hour - time.Minute)},
		{ID: "recent", CreatedAt: now.Add(-time.Hour)},
		{ID: "old", CreatedAt: now.Add(-20 * 24 * time.Hour)},
	}
	f := NewFilter("pt-BR")
	st := DefaultFilter()
	st.DateRange = DateRange7Days
	st.Sort = ""

	assert.Equal(t, []LeadID{"exact", "recent"}, ids(f.Apply(leads, st, now)))

	st.DateRange = DateRange30Days
	assert.Len(t, f.Apply(leads, st, now), 4)
}

func TestFilterStageAndSource(t *testing.T) {
	now := time.Now()
	leads := []Lead{
		{ID: "1", Status: StatusNew, Source: "", CreatedAt: now},
		{ID: "2", Status: StatusNew, Source: "Google", CreatedAt: now},
		{ID: "3", Status: StatusClosed, Source: SourceManual, CreatedAt: now},
	}
	f := NewFilter("pt-BR")

	st := DefaultFilter()
	st.Source = "manual"
	assert.ElementsMatch(t, []LeadID{"1", "3"}, ids(f.Apply(leads, st, now)))

	st = DefaultFilter()
	st.Stage = string(StatusNew)
	st.Source = "google"
	assert.Equal(t, []LeadID{"2"}, ids(f.Apply(leads, st, now)))
}

func TestFilterSorts(t *testing.T) {
	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	leads := []Lead{
		{ID: "1", Name: "Úrsula", CreatedAt: base.Add(2 * time.Hour)},
		{ID: "2", Name: "", CreatedAt: base},
		{ID: "3", Name: "ana", CreatedAt: base.Add(time.Hour)},
		{ID: "4", Name: "Bruno", CreatedAt: base.Add(3 * time.Hour)},
	}
	f := NewFilter("pt-BR")
	st := DefaultFilter()

	st.Sort = SortDateDesc
	assert.Equal(t, []LeadID{"4", "1", "3", "2"}, ids(f.Apply(leads, st, base)))

	st.Sort = SortDateAsc
	assert.Equal(t, []LeadID{"2", "3", "1", "4"}, ids(f.Apply(leads, st, base)))

	st.Sort = SortNameAsc
	assert.Equal(t, []LeadID{"2", "3", "4", "1"}, ids(f.Apply(leads, st, base)))

	st.Sort = "unknown"
	assert.Equal(t, []LeadID{"1", "2", "3", "4"}, ids(f.Apply(leads, st, base)))
}

func TestFilterDoesNotMutateInput(t *testing.T) {
	now := time.Now()
	leads := []Lead{{ID: "b", Name: "B", CreatedAt: now}, {ID: "a", Name: "A", CreatedAt: now}}
	st := DefaultFilter()
	st.Sort = SortNameAsc

	got := NewFilter("en").Apply(leads, st, now)
	require.Len(t, got, 2)
	assert.Equal(t, LeadID("a"), got[0].ID)
	assert.Equal(t, LeadID("b"), leads[0].ID)
}

func TestFilterStateReset(t *testing.T) {
	st := FilterState{Search: "x", Stage: "novo", Sort: SortNameAsc}
	st.Reset()
	assert.Equal(t, DefaultFilter(), st)
}

func TestElapsedDays(t *testing.T) {
	now := time.Now()
	assert.Equal(t, 0, ElapsedDays(now, now))
	assert.Equal(t, 1, ElapsedDays(now.Add(-time.Minute), now))
	assert.Equal(t, 2, ElapsedDays(now.Add(25*time.Hour), now))
}
