// Package web provides the HTTP server for the lead board.
package web

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/yuin/goldmark"

	"github.com/madhatter5501/leadboard/internal/auth"
	"github.com/madhatter5501/leadboard/internal/board"
	"github.com/madhatter5501/leadboard/internal/realtime"
	"github.com/madhatter5501/leadboard/kanban"
)

//go:embed templates/*
var templatesFS embed.FS

//go:embed static/*
var staticFS embed.FS

// SessionCookie names the login cookie.
const SessionCookie = "leadboard_session"

// Server is the lead board web server.
type Server struct {
	gateway   kanban.Gateway
	auth      auth.Provider
	feed      realtime.Subscriber
	opts      board.Options
	templates *template.Template
	logger    *slog.Logger
	server    *http.Server
	janitor   *Janitor

	// One board per login session
	boards   map[string]*board.Board
	boardsMu sync.Mutex

	ctx          context.Context
	cancel       context.CancelFunc
	shutdownOnce sync.Once
	now          func() time.Time
}

// NewServer creates a new lead board server. feed may be nil, in which case
// boards only see their own changes.
func NewServer(gateway kanban.Gateway, provider auth.Provider, feed realtime.Subscriber, opts board.Options, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	// Parse templates
	tmpl, err := template.New("").Funcs(templateFuncs()).ParseFS(templatesFS, "templates/*.html", "templates/partials/*.html")
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		gateway:   gateway,
		auth:      provider,
		feed:      feed,
		opts:      opts,
		templates: tmpl,
		logger:    logger,
		boards:    make(map[string]*board.Board),
		ctx:       ctx,
		cancel:    cancel,
		now:       time.Now,
	}
	s.janitor = NewJanitor(s)
	return s, nil
}

// templateFuncs returns custom template functions.
func templateFuncs() template.FuncMap {
	return template.FuncMap{
		"formatDate": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("02/01/2006")
		},
		"formatTime": func(t time.Time) string {
			if t.IsZero() {
				return "-"
			}
			return t.Format("02/01/2006 15:04")
		},
		"timeAgo": func(t time.Time) string {
			d := time.Since(t)
			switch {
			case d < time.Minute:
				return "agora"
			case d < time.Hour:
				return fmt.Sprintf("há %d min", int(d.Minutes()))
			case d < 24*time.Hour:
				return fmt.Sprintf("há %dh", int(d.Hours()))
			default:
				return fmt.Sprintf("há %dd", int(d.Hours()/24))
			}
		},
		"statusLabel": func(s kanban.Status) string {
			return s.Label()
		},
		"statuses": kanban.Statuses,
		"sources":  kanban.Sources,
		"sourceLabel": func(s kanban.Source) string {
			labels := map[kanban.Source]string{
				kanban.SourceManual:   "Manual",
				kanban.SourceGoogle:   "Google",
				kanban.SourceLinkedIn: "LinkedIn",
				kanban.SourceReferral: "Indicação",
				kanban.SourceWebsite:  "Site",
				kanban.SourceImport:   "Importação",
			}
			if l, ok := labels[s.Normalize()]; ok {
				return l
			}
			return string(s)
		},
		"interactionIcon": func(t kanban.InteractionType) string {
			icons := map[kanban.InteractionType]string{
				kanban.InteractionCreate:  "plus",
				kanban.InteractionEdit:    "pencil",
				kanban.InteractionStatus:  "arrow-right",
				kanban.InteractionCall:    "phone",
				kanban.InteractionEmail:   "mail",
				kanban.InteractionMeeting: "users",
				kanban.InteractionNote:    "sticky-note",
			}
			if i, ok := icons[t]; ok {
				return i
			}
			return "circle"
		},
		// Markdown rendering for lead notes.
		"markdown": func(s string) template.HTML {
			var buf bytes.Buffer
			if err := goldmark.Convert([]byte(s), &buf); err != nil {
				return template.HTML(template.HTMLEscapeString(s)) //nolint:gosec // Explicitly escaped
			}
			return template.HTML(buf.String()) //nolint:gosec // goldmark escapes raw HTML by default
		},
	}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	// Static files
	staticSub, _ := fs.Sub(staticFS, "static")
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	// Page routes
	mux.HandleFunc("GET /{$}", s.handleLogin)
	mux.HandleFunc("GET /signup", s.handleSignup)
	mux.Handle("GET /board", s.requirePage(s.handleBoard))
	mux.Handle("GET /leads/{id}", s.requirePage(s.handleLeadDetail))

	// Auth routes
	mux.HandleFunc("POST /auth/signin", s.authSignIn)
	mux.HandleFunc("POST /auth/signup", s.authSignUp)
	mux.HandleFunc("POST /auth/signout", s.authSignOut)
	mux.HandleFunc("POST /auth/recover", s.authRecover)

	// Board API routes
	mux.Handle("GET /api/board", s.requireAPI(s.apiGetBoard))
	mux.Handle("POST /api/board/filter", s.requireAPI(s.apiSetFilter))
	mux.Handle("POST /api/board/drag/start", s.requireAPI(s.apiDragStart))
	mux.Handle("POST /api/board/drag/over", s.requireAPI(s.apiDragOver))
	mux.Handle("POST /api/board/drag/leave", s.requireAPI(s.apiDragLeave))
	mux.Handle("POST /api/board/drag/end", s.requireAPI(s.apiDragEnd))
	mux.Handle("POST /api/board/drop", s.requireAPI(s.apiDrop))
	mux.Handle("POST /api/board/pointer", s.requireAPI(s.apiPointer))

	// Lead API routes
	mux.Handle("POST /api/leads", s.requireAPI(s.apiCreateLead))
	mux.Handle("GET /api/leads/{id}", s.requireAPI(s.apiGetLead))
	mux.Handle("PATCH /api/leads/{id}", s.requireAPI(s.apiUpdateLead))
	mux.Handle("POST /api/leads/{id}/delete", s.requireAPI(s.apiRequestDelete))
	mux.Handle("POST /api/leads/{id}/interactions", s.requireAPI(s.apiAddInteraction))

	// Modal, import and export
	mux.Handle("POST /api/modal/confirm", s.requireAPI(s.apiModalConfirm))
	mux.Handle("POST /api/modal/cancel", s.requireAPI(s.apiModalCancel))
	mux.Handle("POST /api/import", s.requireAPI(s.apiImport))
	mux.Handle("GET /api/export", s.requireAPI(s.apiExport))

	// Partials for resync
	mux.Handle("GET /partials/board", s.requirePage(s.partialBoard))
	mux.Handle("GET /partials/columns/{status}", s.requirePage(s.partialColumn))

	// SSE for board patches
	mux.Handle("GET /api/events", s.requireAPI(s.handleSSE))
	mux.Handle("GET /api/housekeeping", s.requireAPI(s.apiHousekeeping))

	return s.withLogging(mux)
}

// Start starts the HTTP server.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	s.janitor.Start(s.ctx)

	s.logger.Info("Starting lead board server", "addr", addr)
	err := s.server.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown gracefully shuts down the server and every board session.
func (s *Server) Shutdown(ctx context.Context) error {
	s.shutdownOnce.Do(func() {
		s.cancel()
		s.janitor.Wait()

		s.boardsMu.Lock()
		boards := s.boards
		s.boards = make(map[string]*board.Board)
		s.boardsMu.Unlock()

		for _, b := range boards {
			b.Close()
		}
	})

	if s.server != nil {
		return s.server.Shutdown(ctx)
	}
	return nil
}

// boardFor returns the board of a login session, creating and loading it on
// first use.
func (s *Server) boardFor(ctx context.Context, sess *session) *board.Board {
	s.boardsMu.Lock()
	b, ok := s.boards[sess.token]
	if !ok {
		b = board.New(s.gateway, sess.user.ID, s.opts, s.logger)
		s.boards[sess.token] = b
	}
	s.boardsMu.Unlock()

	if ok {
		return b
	}

	if err := b.Load(ctx); err != nil {
		s.logger.Warn("Board loaded empty", "user", sess.user.ID, "error", err)
	}
	if s.feed != nil {
		if err := b.Subscribe(s.ctx, s.feed); err != nil {
			s.logger.Error("Failed to subscribe board to lead changes", "user", sess.user.ID, "error", err)
		}
	}
	s.logger.Info("Board session started", "user", sess.user.ID, "boards", s.boardCount())
	return b
}

// dropBoard closes the board of a login session.
func (s *Server) dropBoard(token string) {
	s.boardsMu.Lock()
	b, ok := s.boards[token]
	delete(s.boards, token)
	s.boardsMu.Unlock()

	if ok {
		b.Close()
	}
}

func (s *Server) boardCount() int {
	s.boardsMu.Lock()
	defer s.boardsMu.Unlock()
	return len(s.boards)
}

// withLogging wraps a handler with request logging.
func (s *Server) withLogging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.logger.Debug("HTTP request",
			"method", r.Method,
			"path", r.URL.Path,
			"duration", time.Since(start))
	})
}

// render executes a template.
func (s *Server) render(w http.ResponseWriter, name string, data interface{}) {
	s.renderStatus(w, http.StatusOK, name, data)
}

// renderStatus executes a template and writes it with the given status code.
func (s *Server) renderStatus(w http.ResponseWriter, code int, name string, data interface{}) {
	var buf bytes.Buffer
	if err := s.templates.ExecuteTemplate(&buf, name, data); err != nil {
		s.logger.Error("Template error", "template", name, "error", err)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(code)
	_, _ = buf.WriteTo(w)
}
