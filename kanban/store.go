package kanban

import "context"

// Gateway is the remote data interface for leads and their interaction log.
// The SQL store implements it; tests substitute fakes.
type Gateway interface {
	// Leads
	FetchLeads(ctx context.Context) ([]Lead, error) // newest first
	InsertLead(ctx context.Context, l Lead) (Lead, error)
	UpdateLead(ctx context.Context, id LeadID, u LeadUpdate, by string) error
	UpdateLeadStatus(ctx context.Context, id LeadID, status Status, by string) error
	DeleteLead(ctx context.Context, id LeadID) error

	// Detail and history
	GetLead(ctx context.Context, id LeadID) (*LeadDetail, error)
	AddInteraction(ctx context.Context, in Interaction) error
}
