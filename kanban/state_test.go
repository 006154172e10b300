package kanban

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func lead(id string, status Status) Lead {
	return Lead{ID: LeadID(id), Name: "Lead " + id, Status: status, CreatedAt: time.Now()}
}

func TestLeadIDEqual(t *testing.T) {
	tests := []struct {
		a, b LeadID
		want bool
	}{
		{"5", "5", true},
		{"5", "05", true},
		{" 5", "5", true},
		{"5", "6", false},
		{"abc", "abc", true},
		{"abc", "ABC", false},
		{"5a", "5", false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.a.Equal(tt.b), "%q vs %q", tt.a, tt.b)
		if tt.want {
			assert.Equal(t, tt.a.Key(), tt.b.Key())
		}
	}
}

func TestLeadIDUnmarshalNumberOrString(t *testing.T) {
	var l struct {
		ID LeadID `json:"id"`
	}
	require.NoError(t, json.Unmarshal([]byte(`{"id": 42}`), &l))
	assert.Equal(t, LeadID("42"), l.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": "abc-1"}`), &l))
	assert.Equal(t, LeadID("abc-1"), l.ID)

	require.NoError(t, json.Unmarshal([]byte(`{"id": null}`), &l))
	assert.Equal(t, LeadID(""), l.ID)
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" Fechado ")
	require.NoError(t, err)
	assert.Equal(t, StatusClosed, s)

	_, err = ParseStatus("won")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestStateReplaceAllDropsDuplicates(t *testing.T) {
	s := NewState()
	s.ReplaceAll([]Lead{lead("1", StatusNew), lead("01", StatusClosed), lead("2", StatusNew)})

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, StatusNew, all[0].Status)
}

func TestStateInsertIfAbsentPrepends(t *testing.T) {
	s := NewState()
	s.ReplaceAll([]Lead{lead("1", StatusNew)})

	assert.True(t, s.InsertIfAbsent(lead("2", StatusContacted)))
	assert.False(t, s.InsertIfAbsent(lead("2", StatusClosed)))
	assert.False(t, s.InsertIfAbsent(lead("01", StatusNew)), "numeric id match must be value-tolerant")

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, LeadID("2"), all[0].ID)
	assert.Equal(t, StatusContacted, all[0].Status)
}

func TestStateUpdateStatusOnlyTouchesStatus(t *testing.T) {
	s := NewState()
	l := lead("7", StatusNew)
	l.Company = "Acme"
	s.ReplaceAll([]Lead{l})

	assert.True(t, s.UpdateStatus("7", StatusProposal))
	assert.False(t, s.UpdateStatus("8", StatusProposal))

	got, ok := s.Get(LeadID("007"))
	require.True(t, ok)
	assert.Equal(t, StatusProposal, got.Status)
	assert.Equal(t, "Acme", got.Company)
}

func TestStateReplaceAndRemove(t *testing.T) {
	s := NewState()
	s.ReplaceAll([]Lead{lead("1", StatusNew), lead("2", StatusNew)})

	updated := lead("2", StatusClosed)
	updated.Name = "Renamed"
	old, ok := s.Replace(updated)
	require.True(t, ok)
	assert.Equal(t, StatusNew, old.Status)

	removed, ok := s.RemoveByID("1")
	require.True(t, ok)
	assert.Equal(t, LeadID("1"), removed.ID)

	_, ok = s.RemoveByID("1")
	assert.False(t, ok)

	assert.Equal(t, 1, s.Len())
	assert.Equal(t, map[Status]int{StatusNew: 0, StatusContacted: 0, StatusProposal: 0, StatusClosed: 1}, s.Counts())
}

func TestStateRejectsUnknownStatus(t *testing.T) {
	s := NewState()
	s.ReplaceAll([]Lead{lead("1", StatusNew), lead("2", "won"), lead("3", "")})
	require.Equal(t, 1, s.Len())

	assert.False(t, s.InsertIfAbsent(lead("4", "won")))
	assert.False(t, s.Has("4"))

	_, ok := s.Replace(lead("1", "lost"))
	assert.False(t, ok)
	assert.False(t, s.UpdateStatus("1", "lost"))

	got, ok := s.Get("1")
	require.True(t, ok)
	assert.Equal(t, StatusNew, got.Status)
	assert.Equal(t, map[Status]int{StatusNew: 1, StatusContacted: 0, StatusProposal: 0, StatusClosed: 0}, s.Counts())
}

func TestLeadUpdateDescribe(t *testing.T) {
	name, company := "Ana", "ACME"
	u := LeadUpdate{Name: &name, Company: &company}
	assert.Equal(t, "Editou: Nome, Empresa", u.Describe())
	assert.Equal(t, "Detalhes atualizados", LeadUpdate{}.Describe())

	src := Source("LinkedIn")
	l := Lead{}
	LeadUpdate{Source: &src}.Apply(&l)
	assert.Equal(t, SourceLinkedIn, l.Source)
}
