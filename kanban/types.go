// Package kanban provides the lead model and board state for the lead pipeline.
// It tracks sales leads through a fixed set of stages rendered as kanban columns.
package kanban

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

var (
	// ErrNotFound is returned when a lead or interaction does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation is returned when input fails local validation before any remote call.
	ErrValidation = errors.New("validation failed")
)

// Status represents the pipeline stage of a lead, and therefore its column.
type Status string

const (
	StatusNew       Status = "novo"     // Freshly captured
	StatusContacted Status = "contato"  // First contact made
	StatusProposal  Status = "proposta" // Proposal sent
	StatusClosed    Status = "fechado"  // Deal closed
)

// Statuses returns the fixed column order of the board.
func Statuses() []Status {
	return []Status{StatusNew, StatusContacted, StatusProposal, StatusClosed}
}

// Valid reports whether s is one of the fixed stages.
func (s Status) Valid() bool {
	switch s {
	case StatusNew, StatusContacted, StatusProposal, StatusClosed:
		return true
	}
	return false
}

// Label returns the column heading for a status.
func (s Status) Label() string {
	switch s {
	case StatusNew:
		return "Novo"
	case StatusContacted:
		return "Contato"
	case StatusProposal:
		return "Proposta"
	case StatusClosed:
		return "Fechado"
	}
	return string(s)
}

// ParseStatus converts raw input into a Status.
func ParseStatus(raw string) (Status, error) {
	s := Status(strings.ToLower(strings.TrimSpace(raw)))
	if !s.Valid() {
		return "", fmt.Errorf("%w: unknown status %q", ErrValidation, raw)
	}
	return s, nil
}

// Source records where a lead came from.
type Source string

const (
	SourceManual   Source = "manual"
	SourceGoogle   Source = "google"
	SourceLinkedIn Source = "linkedin"
	SourceReferral Source = "indicacao"
	SourceWebsite  Source = "site"
	SourceImport   Source = "importacao"
)

// Sources returns every known source in menu order.
func Sources() []Source {
	return []Source{SourceManual, SourceGoogle, SourceLinkedIn, SourceReferral, SourceWebsite, SourceImport}
}

// Normalize lowercases the source and applies the manual default.
func (s Source) Normalize() Source {
	n := Source(strings.ToLower(strings.TrimSpace(string(s))))
	if n == "" {
		return SourceManual
	}
	return n
}

// LeadID identifies a lead. The backend may hand it out as a string or a
// number; both forms compare equal by value.
type LeadID string

// UnmarshalJSON accepts both JSON strings and JSON numbers.
func (id *LeadID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = LeadID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("lead id: %w", err)
	}
	*id = LeadID(n.String())
	return nil
}

// String returns the textual form of the id.
func (id LeadID) String() string { return string(id) }

// Equal compares two ids by value, tolerating "5" vs 5 vs "05".
func (id LeadID) Equal(other LeadID) bool {
	a := strings.TrimSpace(string(id))
	b := strings.TrimSpace(string(other))
	if a == b {
		return true
	}
	ai, aerr := strconv.ParseInt(a, 10, 64)
	bi, berr := strconv.ParseInt(b, 10, 64)
	return aerr == nil && berr == nil && ai == bi
}

// Key is the canonical form used for indexing. Ids that are Equal share a Key.
func (id LeadID) Key() string {
	s := strings.TrimSpace(string(id))
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return strconv.FormatInt(n, 10)
	}
	return s
}

// Lead is a sales prospect tracked through the pipeline.
type Lead struct {
	ID        LeadID     `json:"id" db:"id"`
	Name      string     `json:"name" db:"name"`
	Email     string     `json:"email,omitempty" db:"email"`
	Phone     string     `json:"phone,omitempty" db:"phone"`
	Company   string     `json:"company,omitempty" db:"company"`
	Notes     string     `json:"notes,omitempty" db:"notes"`
	Status    Status     `json:"status" db:"status"`
	Source    Source     `json:"source,omitempty" db:"source"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty" db:"updated_at"`
	UserID    string     `json:"user_id,omitempty" db:"user_id"`
}

// InteractionType tags an entry in a lead's audit log.
type InteractionType string

const (
	InteractionCreate  InteractionType = "create"
	InteractionEdit    InteractionType = "edit"
	InteractionStatus  InteractionType = "status"
	InteractionCall    InteractionType = "call"
	InteractionEmail   InteractionType = "email"
	InteractionMeeting InteractionType = "meeting"
	InteractionNote    InteractionType = "note"
)

// Valid reports whether t is a known interaction type.
func (t InteractionType) Valid() bool {
	switch t {
	case InteractionCreate, InteractionEdit, InteractionStatus, InteractionCall,
		InteractionEmail, InteractionMeeting, InteractionNote:
		return true
	}
	return false
}

// Interaction is an append-only audit entry attached to a lead.
type Interaction struct {
	ID          string          `json:"id" db:"id"`
	LeadID      LeadID          `json:"lead_id" db:"lead_id"`
	UserID      string          `json:"user_id,omitempty" db:"user_id"`
	Type        InteractionType `json:"type" db:"type"`
	Description string          `json:"description" db:"description"`
	CreatedAt   time.Time       `json:"created_at" db:"created_at"`
}

// LeadDetail is a lead together with its interaction history, newest first.
type LeadDetail struct {
	Lead
	Interactions []Interaction `json:"interactions"`
}

// LeadUpdate carries the fields changed through the edit form.
// Nil fields are left untouched.
type LeadUpdate struct {
	Name    *string `json:"name,omitempty"`
	Email   *string `json:"email,omitempty"`
	Phone   *string `json:"phone,omitempty"`
	Company *string `json:"company,omitempty"`
	Notes   *string `json:"notes,omitempty"`
	Source  *Source `json:"source,omitempty"`
}

// Empty reports whether the update changes nothing.
func (u LeadUpdate) Empty() bool {
	return u.Name == nil && u.Email == nil && u.Phone == nil &&
		u.Company == nil && u.Notes == nil && u.Source == nil
}

// ChangedFields returns the display labels of the fields set in the update.
func (u LeadUpdate) ChangedFields() []string {
	var fields []string
	if u.Name != nil {
		fields = append(fields, "Nome")
	}
	if u.Company != nil {
		fields = append(fields, "Empresa")
	}
	if u.Email != nil {
		fields = append(fields, "Email")
	}
	if u.Phone != nil {
		fields = append(fields, "Telefone")
	}
	if u.Notes != nil {
		fields = append(fields, "Notas")
	}
	if u.Source != nil {
		fields = append(fields, "Origem")
	}
	return fields
}

// Describe builds the audit description for an edit.
func (u LeadUpdate) Describe() string {
	fields := u.ChangedFields()
	if len(fields) == 0 {
		return "Detalhes atualizados"
	}
	return "Editou: " + strings.Join(fields, ", ")
}

// Apply copies the set fields onto l.
func (u LeadUpdate) Apply(l *Lead) {
	if u.Name != nil {
		l.Name = *u.Name
	}
	if u.Email != nil {
		l.Email = *u.Email
	}
	if u.Phone != nil {
		l.Phone = *u.Phone
	}
	if u.Company != nil {
		l.Company = *u.Company
	}
	if u.Notes != nil {
		l.Notes = *u.Notes
	}
	if u.Source != nil {
		l.Source = u.Source.Normalize()
	}
}

// ChangeType is the kind of row change pushed by the change feed.
type ChangeType string

const (
	ChangeInsert ChangeType = "INSERT"
	ChangeUpdate ChangeType = "UPDATE"
	ChangeDelete ChangeType = "DELETE"
)

// ChangeEvent is a single row change on the leads table.
// Old carries at least the id on DELETE.
type ChangeEvent struct {
	Type ChangeType `json:"eventType"`
	New  *Lead      `json:"new,omitempty"`
	Old  *Lead      `json:"old,omitempty"`
}

// LeadID returns the id the event refers to.
func (e ChangeEvent) LeadID() LeadID {
	if e.New != nil && e.New.ID != "" {
		return e.New.ID
	}
	if e.Old != nil {
		return e.Old.ID
	}
	return ""
}
