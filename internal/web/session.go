package web

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/madhatter5501/leadboard/internal/auth"
)

type session struct {
	token string
	user  *auth.User
}

type ctxKey struct{}

func sessionFrom(ctx context.Context) *session {
	sess, _ := ctx.Value(ctxKey{}).(*session)
	return sess
}

// lookupSession resolves the session cookie.
func (s *Server) lookupSession(r *http.Request) (*session, error) {
	c, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil, auth.ErrNoSession
	}
	user, err := s.auth.CurrentUser(r.Context(), c.Value)
	if err != nil {
		return nil, err
	}
	return &session{token: c.Value, user: user}, nil
}

// requirePage redirects to the login page without a valid session.
func (s *Server) requirePage(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.lookupSession(r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) {
				s.logger.Error("Failed to check session", "error", err)
			}
			http.Redirect(w, r, "/", http.StatusSeeOther)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

// requireAPI answers 401 without a valid session.
func (s *Server) requireAPI(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sess, err := s.lookupSession(r)
		if err != nil {
			if !errors.Is(err, auth.ErrNoSession) {
				s.logger.Error("Failed to check session", "error", err)
			}
			s.jsonError(w, "Não autenticado", http.StatusUnauthorized)
			return
		}
		next(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, sess)))
	})
}

func (s *Server) setSessionCookie(w http.ResponseWriter, r *http.Request, sess *auth.Session) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sess.Token,
		Path:     "/",
		Expires:  sess.ExpiresAt,
		HttpOnly: true,
		Secure:   r.TLS != nil,
		SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookie(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
}

// --- Auth handlers ---

// authSignIn logs in with the login form.
func (s *Server) authSignIn(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")

	sess, err := s.auth.SignIn(r.Context(), email, password)
	if err != nil {
		s.logger.Info("Sign in failed", "email", email, "error", err)
		s.renderAuthError(w, "login.html", email, err, "Erro ao realizar login")
		return
	}

	s.setSessionCookie(w, r, sess)
	http.Redirect(w, r, "/board", http.StatusSeeOther)
}

// authSignUp creates an account with the signup form.
func (s *Server) authSignUp(w http.ResponseWriter, r *http.Request) {
	email, password := r.FormValue("email"), r.FormValue("password")
	if confirm := r.FormValue("confirm_password"); confirm != "" && confirm != password {
		s.render(w, "signup.html", map[string]interface{}{
			"Title": "Criar conta",
			"Email": email,
			"Error": "As senhas não coincidem",
		})
		return
	}

	sess, err := s.auth.SignUp(r.Context(), email, password)
	if err != nil {
		s.logger.Info("Sign up failed", "email", email, "error", err)
		s.renderAuthError(w, "signup.html", email, err, "Erro ao criar conta")
		return
	}

	s.setSessionCookie(w, r, sess)
	http.Redirect(w, r, "/board", http.StatusSeeOther)
}

// authSignOut ends the session and its board.
func (s *Server) authSignOut(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(SessionCookie); err == nil {
		if err := s.auth.SignOut(r.Context(), c.Value); err != nil {
			s.logger.Error("Failed to sign out", "error", err)
		}
		s.dropBoard(c.Value)
	}
	clearSessionCookie(w)
	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// authRecover requests a password reset.
func (s *Server) authRecover(w http.ResponseWriter, r *http.Request) {
	email := r.FormValue("email")
	data := map[string]interface{}{
		"Title": "Entrar",
		"Email": email,
	}
	if err := s.auth.RequestPasswordReset(r.Context(), email); err != nil {
		s.logger.Info("Password reset failed", "email", email, "error", err)
		data["Error"] = authMessage(err, "Erro ao enviar email")
	} else {
		data["Info"] = "Email de recuperação enviado!"
	}
	s.render(w, "login.html", data)
}

func (s *Server) renderAuthError(w http.ResponseWriter, page, email string, err error, fallback string) {
	title := "Entrar"
	if page == "signup.html" {
		title = "Criar conta"
	}
	s.renderStatus(w, http.StatusUnauthorized, page, map[string]interface{}{
		"Title": title,
		"Email": email,
		"Error": authMessage(err, fallback),
	})
}

// authMessage returns a user-facing message for known auth errors.
func authMessage(err error, fallback string) string {
	for _, known := range []error{
		auth.ErrInvalidCredentials,
		auth.ErrEmailTaken,
		auth.ErrWeakPassword,
		auth.ErrInvalidEmail,
	} {
		if errors.Is(err, known) {
			msg := known.Error()
			return strings.ToUpper(msg[:1]) + msg[1:]
		}
	}
	return fallback
}
