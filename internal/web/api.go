package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/madhatter5501/leadboard/internal/board"
	"github.com/madhatter5501/leadboard/internal/export"
	"github.com/madhatter5501/leadboard/internal/importer"
	"github.com/madhatter5501/leadboard/kanban"
)

// apiGetBoard returns the full board view as JSON.
func (s *Server) apiGetBoard(w http.ResponseWriter, r *http.Request) {
	b := s.sessionBoard(r)

	response := map[string]interface{}{
		"view":      b.View(),
		"counts":    b.Counts(),
		"drag":      b.DragState().String(),
		"updatedAt": s.now(),
	}

	s.jsonResponse(w, response)
}

// apiHousekeeping reports the state of the background cleanup tasks.
func (s *Server) apiHousekeeping(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, map[string]interface{}{
		"tasks": s.janitor.Statuses(),
	})
}

// apiSetFilter replaces the filter and re-renders the board. An empty body
// resets it.
func (s *Server) apiSetFilter(w http.ResponseWriter, r *http.Request) {
	b := s.sessionBoard(r)

	var st kanban.FilterState
	if err := json.NewDecoder(r.Body).Decode(&st); err != nil {
		b.ResetFilter()
		s.jsonResponse(w, b.Filter())
		return
	}

	b.SetFilter(st)
	s.jsonResponse(w, b.Filter())
}

// DragStartRequest names the card the pointer picked up.
type DragStartRequest struct {
	ID kanban.LeadID `json:"id"`
}

// ColumnRequest names a target column.
type ColumnRequest struct {
	Status kanban.Status `json:"status"`
}

// DropRequest completes a drag. ID is optional; when set the drop does not
// depend on the drag start having been seen.
type DropRequest struct {
	ID     kanban.LeadID `json:"id,omitempty"`
	Status kanban.Status `json:"status"`
}

// PointerRequest carries the pointer and viewport geometry during a drag.
type PointerRequest struct {
	Y      float64 `json:"y"`
	Top    float64 `json:"top"`
	Bottom float64 `json:"bottom"`
}

func (s *Server) apiDragStart(w http.ResponseWriter, r *http.Request) {
	var req DragStartRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b := s.sessionBoard(r)
	s.jsonResponse(w, map[string]interface{}{
		"dragging": b.DragStart(req.ID),
		"state":    b.DragState().String(),
	})
}

func (s *Server) apiDragOver(w http.ResponseWriter, r *http.Request) {
	var req ColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b := s.sessionBoard(r)
	s.jsonResponse(w, map[string]interface{}{
		"allowed": b.DragOver(req.Status),
		"state":   b.DragState().String(),
	})
}

func (s *Server) apiDragLeave(w http.ResponseWriter, r *http.Request) {
	var req ColumnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b := s.sessionBoard(r)
	b.DragLeave(req.Status)
	s.jsonResponse(w, map[string]string{"state": b.DragState().String()})
}

func (s *Server) apiDragEnd(w http.ResponseWriter, r *http.Request) {
	b := s.sessionBoard(r)
	b.DragEnd()
	s.jsonResponse(w, map[string]string{"state": b.DragState().String()})
}

// apiDrop completes a drag. The board has already moved the card when the
// remote update fails, so a failure is still reported with 502.
func (s *Server) apiDrop(w http.ResponseWriter, r *http.Request) {
	var req DropRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b := s.sessionBoard(r)
	var err error
	if req.ID != "" {
		err = b.DropCard(r.Context(), req.ID, req.Status)
	} else {
		err = b.Drop(r.Context(), req.Status)
	}
	if err != nil {
		s.jsonError(w, "Falha ao atualizar status", http.StatusBadGateway)
		return
	}

	s.jsonResponse(w, map[string]interface{}{
		"counts": b.Counts(),
		"state":  b.DragState().String(),
	})
}

func (s *Server) apiPointer(w http.ResponseWriter, r *http.Request) {
	var req PointerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	s.sessionBoard(r).Pointer(req.Y, req.Top, req.Bottom)
	w.WriteHeader(http.StatusNoContent)
}

// CreateLeadRequest is the request body for creating a lead.
type CreateLeadRequest struct {
	Name    string        `json:"name"`
	Email   string        `json:"email"`
	Phone   string        `json:"phone"`
	Company string        `json:"company"`
	Notes   string        `json:"notes"`
	Source  kanban.Source `json:"source"`
}

// apiCreateLead creates a lead from a JSON body or the new-lead form.
func (s *Server) apiCreateLead(w http.ResponseWriter, r *http.Request) {
	var req CreateLeadRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.jsonError(w, "Invalid request body", http.StatusBadRequest)
			return
		}
	} else {
		req = CreateLeadRequest{
			Name:    r.FormValue("name"),
			Email:   r.FormValue("email"),
			Phone:   r.FormValue("phone"),
			Company: r.FormValue("company"),
			Notes:   r.FormValue("notes"),
			Source:  kanban.Source(r.FormValue("source")),
		}
	}

	created, err := s.sessionBoard(r).CreateLead(r.Context(), kanban.Lead{
		Name:    req.Name,
		Email:   strings.TrimSpace(req.Email),
		Phone:   strings.TrimSpace(req.Phone),
		Company: strings.TrimSpace(req.Company),
		Notes:   req.Notes,
		Source:  req.Source,
	})
	if err != nil {
		s.apiError(w, err, "Erro ao criar lead")
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(created); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// apiGetLead returns a lead with its interaction history.
func (s *Server) apiGetLead(w http.ResponseWriter, r *http.Request) {
	id := kanban.LeadID(r.PathValue("id"))
	if id == "" {
		s.jsonError(w, "Missing lead ID", http.StatusBadRequest)
		return
	}

	detail, err := s.sessionBoard(r).Detail(r.Context(), id)
	if err != nil {
		s.apiError(w, err, "Erro ao carregar lead")
		return
	}

	s.jsonResponse(w, detail)
}

// apiUpdateLead applies a partial edit. Omitted fields are left untouched.
func (s *Server) apiUpdateLead(w http.ResponseWriter, r *http.Request) {
	id := kanban.LeadID(r.PathValue("id"))
	if id == "" {
		s.jsonError(w, "Missing lead ID", http.StatusBadRequest)
		return
	}

	var u kanban.LeadUpdate
	if err := json.NewDecoder(r.Body).Decode(&u); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if u.Empty() {
		s.jsonError(w, "Nada para atualizar", http.StatusBadRequest)
		return
	}

	if err := s.sessionBoard(r).UpdateLead(r.Context(), id, u); err != nil {
		s.apiError(w, err, "Erro ao atualizar lead")
		return
	}

	s.jsonResponse(w, map[string]string{"status": "updated"})
}

// apiRequestDelete opens the delete confirmation. The lead is removed only
// when the modal is confirmed.
func (s *Server) apiRequestDelete(w http.ResponseWriter, r *http.Request) {
	id := kanban.LeadID(r.PathValue("id"))
	if id == "" {
		s.jsonError(w, "Missing lead ID", http.StatusBadRequest)
		return
	}

	b := s.sessionBoard(r)
	if err := b.RequestDelete(id); err != nil {
		s.apiError(w, err, "Erro ao excluir lead")
		return
	}

	view, _ := b.Modal().Current()
	s.jsonResponse(w, view)
}

// InteractionRequest is the request body for logging an interaction.
type InteractionRequest struct {
	Type        kanban.InteractionType `json:"type"`
	Description string                 `json:"description"`
}

func (s *Server) apiAddInteraction(w http.ResponseWriter, r *http.Request) {
	id := kanban.LeadID(r.PathValue("id"))
	if id == "" {
		s.jsonError(w, "Missing lead ID", http.StatusBadRequest)
		return
	}

	var req InteractionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	b := s.sessionBoard(r)
	if err := b.AddInteraction(r.Context(), id, req.Type, req.Description); err != nil {
		s.apiError(w, err, "Erro ao salvar histórico")
		return
	}

	detail, err := b.Detail(r.Context(), id)
	if err != nil {
		s.apiError(w, err, "Erro ao carregar lead")
		return
	}
	s.jsonResponse(w, detail)
}

// apiModalConfirm runs the open modal's action. The modal stays open when
// the action fails.
func (s *Server) apiModalConfirm(w http.ResponseWriter, r *http.Request) {
	err := s.sessionBoard(r).Modal().Confirm(r.Context())
	switch {
	case errors.Is(err, board.ErrNoModal):
		s.jsonError(w, "Nenhuma confirmação pendente", http.StatusConflict)
	case err != nil:
		s.apiError(w, err, "Falha na operação")
	default:
		s.jsonResponse(w, map[string]string{"status": "confirmed"})
	}
}

func (s *Server) apiModalCancel(w http.ResponseWriter, r *http.Request) {
	s.sessionBoard(r).Modal().Cancel()
	s.jsonResponse(w, map[string]string{"status": "cancelled"})
}

// multipartOverhead bounds the multipart headers around an import upload.
const multipartOverhead = 64 << 10

// apiImport reads an uploaded spreadsheet and opens the import confirmation.
func (s *Server) apiImport(w http.ResponseWriter, r *http.Request) {
	// The body cap leaves room for the multipart framing; the file itself is
	// checked against MaxUploadSize below.
	r.Body = http.MaxBytesReader(w, r.Body, importer.MaxUploadSize+multipartOverhead)
	if err := r.ParseMultipartForm(importer.MaxUploadSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.jsonError(w, "Arquivo muito grande", http.StatusRequestEntityTooLarge)
			return
		}
		s.jsonError(w, "Invalid upload", http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		s.jsonError(w, "Missing file", http.StatusBadRequest)
		return
	}
	defer file.Close()
	if header.Size > importer.MaxUploadSize {
		s.jsonError(w, "Arquivo muito grande", http.StatusRequestEntityTooLarge)
		return
	}

	count, err := s.sessionBoard(r).PrepareImport(header.Filename, file)
	if err != nil {
		s.jsonError(w, err.Error(), http.StatusUnprocessableEntity)
		return
	}

	s.jsonResponse(w, map[string]int{"count": count})
}

// apiExport downloads every lead as CSV.
func (s *Server) apiExport(w http.ResponseWriter, r *http.Request) {
	var buf bytes.Buffer
	if err := s.sessionBoard(r).Export(r.Context(), &buf); err != nil {
		if errors.Is(err, export.ErrNothingToExport) {
			s.jsonError(w, "Nenhum dado para exportar", http.StatusNotFound)
			return
		}
		s.apiError(w, err, "Erro ao carregar leads")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+export.FileName(s.now())+`"`)
	_, _ = buf.WriteTo(w)
}

// sessionBoard returns the board of the request's session.
func (s *Server) sessionBoard(r *http.Request) *board.Board {
	return s.boardFor(r.Context(), sessionFrom(r.Context()))
}

// apiError maps domain errors onto status codes.
func (s *Server) apiError(w http.ResponseWriter, err error, fallback string) {
	switch {
	case errors.Is(err, kanban.ErrValidation):
		s.jsonError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, kanban.ErrNotFound):
		s.jsonError(w, "Lead não encontrado", http.StatusNotFound)
	default:
		s.jsonError(w, fallback, http.StatusBadGateway)
	}
}

// jsonResponse writes a JSON response.
func (s *Server) jsonResponse(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.logger.Error("Failed to encode JSON response", "error", err)
	}
}

// jsonError writes a JSON error response.
func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
