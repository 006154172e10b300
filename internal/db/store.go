package db

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/leadboard/kanban"
)

// Publisher receives a change event after every successful lead write.
type Publisher interface {
	Publish(ctx context.Context, ev kanban.ChangeEvent) error
}

// Store implements kanban.Gateway on top of the SQL database.
type Store struct {
	db        *DB
	publisher Publisher
	logger    *slog.Logger
	now       func() time.Time
}

// NewStore creates a new SQL-backed lead store. publisher may be nil when
// changes are announced elsewhere (the postgres trigger).
func NewStore(db *DB, publisher Publisher, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{db: db, publisher: publisher, logger: logger, now: time.Now}
}

var _ kanban.Gateway = (*Store)(nil)

const leadColumns = `id, name, email, phone, company, notes, status, source, user_id, created_at, updated_at`

// --- Lead Operations ---

// FetchLeads returns every lead, newest first.
func (s *Store) FetchLeads(ctx context.Context) ([]kanban.Lead, error) {
	var leads []kanban.Lead
	err := s.db.SelectContext(ctx, &leads, `SELECT `+leadColumns+` FROM leads ORDER BY created_at DESC`)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	return leads, nil
}

// InsertLead stores a new lead and returns the inserted row.
func (s *Store) InsertLead(ctx context.Context, l kanban.Lead) (kanban.Lead, error) {
	if strings.TrimSpace(l.Name) == "" {
		return kanban.Lead{}, fmt.Errorf("%w: name is required", kanban.ErrValidation)
	}
	if l.Status == "" {
		l.Status = kanban.StatusNew
	}
	if !l.Status.Valid() {
		return kanban.Lead{}, fmt.Errorf("%w: unknown status %q", kanban.ErrValidation, l.Status)
	}
	if l.ID == "" {
		l.ID = kanban.LeadID(uuid.New().String())
	}
	l.Source = l.Source.Normalize()
	if l.CreatedAt.IsZero() {
		l.CreatedAt = s.now().UTC()
	}
	l.UpdatedAt = nil

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO leads (`+leadColumns+`)
		VALUES (:id, :name, :email, :phone, :company, :notes, :status, :source, :user_id, :created_at, :updated_at)
	`, l)
	if err != nil {
		return kanban.Lead{}, fmt.Errorf("failed to create lead: %w", err)
	}

	s.logInteraction(ctx, l.ID, l.UserID, kanban.InteractionCreate, "Lead criado")
	s.publish(ctx, kanban.ChangeEvent{Type: kanban.ChangeInsert, New: &l})
	return l, nil
}

// UpdateLead applies an edit and logs which fields changed.
func (s *Store) UpdateLead(ctx context.Context, id kanban.LeadID, u kanban.LeadUpdate, by string) error {
	current, err := s.getLead(ctx, id)
	if err != nil {
		return err
	}
	if u.Name != nil && strings.TrimSpace(*u.Name) == "" {
		return fmt.Errorf("%w: name is required", kanban.ErrValidation)
	}

	next := *current
	u.Apply(&next)
	now := s.now().UTC()
	next.UpdatedAt = &now

	res, err := s.db.NamedExecContext(ctx, `
		UPDATE leads SET name = :name, email = :email, phone = :phone, company = :company,
			notes = :notes, source = :source, updated_at = :updated_at
		WHERE id = :id
	`, next)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}

	s.logInteraction(ctx, id, by, kanban.InteractionEdit, u.Describe())
	s.publish(ctx, kanban.ChangeEvent{Type: kanban.ChangeUpdate, New: &next, Old: current})
	return nil
}

// UpdateLeadStatus moves a lead to another stage.
func (s *Store) UpdateLeadStatus(ctx context.Context, id kanban.LeadID, status kanban.Status, by string) error {
	if !status.Valid() {
		return fmt.Errorf("%w: unknown status %q", kanban.ErrValidation, status)
	}
	current, err := s.getLead(ctx, id)
	if err != nil {
		return err
	}

	now := s.now().UTC()
	res, err := s.db.ExecContext(ctx,
		s.db.Rebind(`UPDATE leads SET status = ?, updated_at = ? WHERE id = ?`),
		status, now, current.ID)
	if err != nil {
		return fmt.Errorf("failed to update lead status: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}

	next := *current
	next.Status = status
	next.UpdatedAt = &now

	s.logInteraction(ctx, id, by, kanban.InteractionStatus, "Status alterado para "+string(status))
	s.publish(ctx, kanban.ChangeEvent{Type: kanban.ChangeUpdate, New: &next, Old: current})
	return nil
}

// DeleteLead removes a lead and, through the foreign key, its interactions.
func (s *Store) DeleteLead(ctx context.Context, id kanban.LeadID) error {
	current, err := s.getLead(ctx, id)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx, s.db.Rebind(`DELETE FROM leads WHERE id = ?`), current.ID)
	if err != nil {
		return fmt.Errorf("failed to delete lead: %w", err)
	}
	if err := expectRow(res, id); err != nil {
		return err
	}

	s.publish(ctx, kanban.ChangeEvent{Type: kanban.ChangeDelete, Old: current})
	return nil
}

// GetLead returns a lead with its interaction history. A failing history
// query degrades to an empty list.
func (s *Store) GetLead(ctx context.Context, id kanban.LeadID) (*kanban.LeadDetail, error) {
	l, err := s.getLead(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &kanban.LeadDetail{Lead: *l, Interactions: []kanban.Interaction{}}

	var interactions []kanban.Interaction
	err = s.db.SelectContext(ctx, &interactions, s.db.Rebind(`
		SELECT id, lead_id, user_id, type, description, created_at
		FROM interactions WHERE lead_id = ? ORDER BY created_at DESC
	`), l.ID)
	if err != nil {
		// History is auxiliary; the lead itself is still returned
		s.logger.Warn("Could not fetch interactions", "lead", id, "error", err)
		return detail, nil
	}
	if interactions != nil {
		detail.Interactions = interactions
	}
	return detail, nil
}

// AddInteraction appends an entry to a lead's history.
func (s *Store) AddInteraction(ctx context.Context, in kanban.Interaction) error {
	if !in.Type.Valid() {
		return fmt.Errorf("%w: unknown interaction type %q", kanban.ErrValidation, in.Type)
	}
	if in.ID == "" {
		in.ID = uuid.New().String()
	}
	if in.CreatedAt.IsZero() {
		in.CreatedAt = s.now().UTC()
	}

	_, err := s.db.NamedExecContext(ctx, `
		INSERT INTO interactions (id, lead_id, user_id, type, description, created_at)
		VALUES (:id, :lead_id, :user_id, :type, :description, :created_at)
	`, in)
	if err != nil {
		return fmt.Errorf("failed to add interaction: %w", err)
	}
	return nil
}

// getLead loads a single lead, trying the numeric form of the id as well.
func (s *Store) getLead(ctx context.Context, id kanban.LeadID) (*kanban.Lead, error) {
	var l kanban.Lead
	err := s.db.GetContext(ctx, &l,
		s.db.Rebind(`SELECT `+leadColumns+` FROM leads WHERE id = ? OR id = ?`),
		id.String(), id.Key())
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("lead %s: %w", id, kanban.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return &l, nil
}

// logInteraction records history for a write. Failures are logged, not
// returned: the write itself already succeeded.
func (s *Store) logInteraction(ctx context.Context, id kanban.LeadID, by string, typ kanban.InteractionType, desc string) {
	err := s.AddInteraction(ctx, kanban.Interaction{LeadID: id, UserID: by, Type: typ, Description: desc})
	if err != nil {
		s.logger.Warn("Failed to save interaction", "lead", id, "type", typ, "error", err)
	}
}

func (s *Store) publish(ctx context.Context, ev kanban.ChangeEvent) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.logger.Warn("Failed to publish change event", "type", ev.Type, "lead", ev.LeadID(), "error", err)
	}
}

func expectRow(res sql.Result, id kanban.LeadID) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("lead %s: %w", id, kanban.ErrNotFound)
	}
	return nil
}
