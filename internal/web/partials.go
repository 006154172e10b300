package web

import (
	"net/http"

	"github.com/madhatter5501/leadboard/kanban"
)

// partialBoard returns just the board columns, used by the client to resync
// after a reconnect.
func (s *Server) partialBoard(w http.ResponseWriter, r *http.Request) {
	view := s.sessionBoard(r).View()

	data := map[string]interface{}{
		"View": view,
	}

	s.render(w, "board_columns", data)
}

// partialColumn returns a single column.
func (s *Server) partialColumn(w http.ResponseWriter, r *http.Request) {
	status, err := kanban.ParseStatus(r.PathValue("status"))
	if err != nil {
		http.Error(w, "Unknown column", http.StatusBadRequest)
		return
	}

	for _, col := range s.sessionBoard(r).View().Columns {
		if col.Status == status {
			s.render(w, "column", col)
			return
		}
	}
	http.NotFound(w, r)
}
