package web

import (
	"errors"
	"net/http"

	"github.com/madhatter5501/leadboard/kanban"
)

// handleLogin renders the login page, or jumps to the board when already
// signed in.
func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	if _, err := s.lookupSession(r); err == nil {
		http.Redirect(w, r, "/board", http.StatusSeeOther)
		return
	}

	data := map[string]interface{}{
		"Title": "Entrar",
	}

	s.render(w, "login.html", data)
}

// handleSignup renders the account creation page.
func (s *Server) handleSignup(w http.ResponseWriter, r *http.Request) {
	data := map[string]interface{}{
		"Title": "Criar conta",
	}

	s.render(w, "signup.html", data)
}

// handleBoard renders the main kanban board view.
func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	sess := sessionFrom(r.Context())
	b := s.boardFor(r.Context(), sess)

	data := map[string]interface{}{
		"Title":      "Pipeline de Leads",
		"User":       sess.user,
		"View":       b.View(),
		"Statuses":   kanban.Statuses(),
		"Sources":    kanban.Sources(),
		"DateRanges": dateRanges,
		"Sorts":      sortOptions,
	}

	s.render(w, "board.html", data)
}

// handleLeadDetail renders a single lead with its interaction history.
func (s *Server) handleLeadDetail(w http.ResponseWriter, r *http.Request) {
	id := kanban.LeadID(r.PathValue("id"))
	if id == "" {
		http.Error(w, "Missing lead ID", http.StatusBadRequest)
		return
	}

	sess := sessionFrom(r.Context())
	detail, err := s.boardFor(r.Context(), sess).Detail(r.Context(), id)
	if errors.Is(err, kanban.ErrNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("Failed to get lead", "id", id, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	data := map[string]interface{}{
		"Title":            detail.Name,
		"User":             sess.user,
		"Lead":             detail,
		"InteractionTypes": manualInteractionTypes,
	}

	s.render(w, "lead.html", data)
}

// option is a value/label pair for a select box.
type option struct {
	Value string
	Label string
}

var dateRanges = []option{
	{kanban.DateRangeAll, "Todo o período"},
	{kanban.DateRange7Days, "Últimos 7 dias"},
	{kanban.DateRange30Days, "Últimos 30 dias"},
}

var sortOptions = []option{
	{kanban.SortDateDesc, "Mais recentes"},
	{kanban.SortDateAsc, "Mais antigos"},
	{kanban.SortNameAsc, "Nome (A-Z)"},
}

// manualInteractionTypes are the kinds a user can log by hand.
var manualInteractionTypes = []option{
	{string(kanban.InteractionCall), "Ligação"},
	{string(kanban.InteractionEmail), "Email"},
	{string(kanban.InteractionMeeting), "Reunião"},
	{string(kanban.InteractionNote), "Nota"},
}
