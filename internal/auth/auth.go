// Package auth provides the caller identity for store operations: a
// Google OAuth login flow, an in-memory session table, and the Context
// value that permission checks consume.
package auth

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"

	"github.com/usrflo/mailtrain/internal/config"
	"github.com/usrflo/mailtrain/internal/pkg/httpretry"
	"github.com/usrflo/mailtrain/internal/pkg/logger"
)

// ErrUnauthenticated is returned when a request carries no valid session.
var ErrUnauthenticated = errors.New("not authenticated")

// SessionCookie is the name of the session cookie.
const SessionCookie = "mailtrain_session"

// googleUserInfo is the profile returned by Google's userinfo endpoint.
type googleUserInfo struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
	HD    string `json:"hd"`
}

// Session is an authenticated user session bound to a local user row.
type Session struct {
	UserID    int64     `json:"user_id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	Role      string    `json:"role"`
	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager handles the OAuth flow and session lookups.
type Manager struct {
	cfg          *config.AuthConfig
	oauth2Config *oauth2.Config
	db           *sql.DB
	httpClient   httpretry.Doer
	sessions     map[string]*Session
	sessionMu    sync.RWMutex
}

// NewManager creates an auth manager. db is used to resolve the Google
// identity to a local user row on login.
func NewManager(cfg *config.AuthConfig, db *sql.DB, baseURL string) *Manager {
	return &Manager{
		cfg: cfg,
		oauth2Config: &oauth2.Config{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  baseURL + "/auth/callback",
			Scopes: []string{
				"https://www.googleapis.com/auth/userinfo.email",
				"https://www.googleapis.com/auth/userinfo.profile",
			},
			Endpoint: google.Endpoint,
		},
		db:         db,
		httpClient: httpretry.New(nil, 3),
		sessions:   make(map[string]*Session),
	}
}

func generateState() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.URLEncoding.EncodeToString(b), nil
}

// HandleLogin initiates the Google OAuth flow.
func (m *Manager) HandleLogin(w http.ResponseWriter, r *http.Request) {
	state, err := generateState()
	if err != nil {
		http.Error(w, "failed to generate state", http.StatusInternalServerError)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "oauth_state",
		Value:    state,
		Path:     "/",
		MaxAge:   300,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, m.oauth2Config.AuthCodeURL(state, oauth2.AccessTypeOnline), http.StatusTemporaryRedirect)
}

// HandleCallback processes the OAuth callback from Google: verifies state,
// exchanges the code, checks the email domain, and binds a session to the
// matching local user row.
func (m *Manager) HandleCallback(w http.ResponseWriter, r *http.Request) {
	stateCookie, err := r.Cookie("oauth_state")
	if err != nil || r.URL.Query().Get("state") != stateCookie.Value {
		http.Redirect(w, r, "/?error=invalid_state", http.StatusTemporaryRedirect)
		return
	}
	http.SetCookie(w, &http.Cookie{Name: "oauth_state", Value: "", Path: "/", MaxAge: -1})

	if errMsg := r.URL.Query().Get("error"); errMsg != "" {
		http.Redirect(w, r, "/?error="+errMsg, http.StatusTemporaryRedirect)
		return
	}

	token, err := m.oauth2Config.Exchange(r.Context(), r.URL.Query().Get("code"))
	if err != nil {
		logger.Warn("oauth code exchange failed", "err", err)
		http.Redirect(w, r, "/?error=exchange_failed", http.StatusTemporaryRedirect)
		return
	}

	info, err := m.getUserInfo(r.Context(), token.AccessToken)
	if err != nil {
		logger.Warn("oauth userinfo fetch failed", "err", err)
		http.Redirect(w, r, "/?error=userinfo_failed", http.StatusTemporaryRedirect)
		return
	}

	if !m.domainAllowed(info.Email) {
		logger.Warn("login from disallowed domain", "email", info.Email)
		http.Redirect(w, r, "/?error=domain_not_allowed", http.StatusTemporaryRedirect)
		return
	}

	userID, role, err := m.resolveUser(r.Context(), info.Email)
	if err != nil {
		logger.Warn("no local user for login", "email", info.Email, "err", err)
		http.Redirect(w, r, "/?error=unknown_user", http.StatusTemporaryRedirect)
		return
	}

	sessionID := uuid.NewString()
	session := &Session{
		UserID:    userID,
		Email:     info.Email,
		Name:      info.Name,
		Role:      role,
		CreatedAt: time.Now(),
		ExpiresAt: time.Now().Add(time.Duration(m.cfg.SessionHours) * time.Hour),
	}

	m.sessionMu.Lock()
	m.sessions[sessionID] = session
	m.sessionMu.Unlock()

	logger.Info("user logged in", "email", info.Email, "user_id", userID)

	http.SetCookie(w, &http.Cookie{
		Name:     SessionCookie,
		Value:    sessionID,
		Path:     "/",
		MaxAge:   m.cfg.SessionHours * 3600,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleLogout removes the session.
func (m *Manager) HandleLogout(w http.ResponseWriter, r *http.Request) {
	if cookie, err := r.Cookie(SessionCookie); err == nil {
		m.sessionMu.Lock()
		delete(m.sessions, cookie.Value)
		m.sessionMu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{Name: SessionCookie, Value: "", Path: "/", MaxAge: -1})
	http.Redirect(w, r, "/", http.StatusTemporaryRedirect)
}

// HandleUserInfo returns the current user's identity as JSON.
func (m *Manager) HandleUserInfo(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	session := m.getSession(r)
	if session == nil {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]interface{}{"authenticated": false})
		return
	}
	json.NewEncoder(w).Encode(map[string]interface{}{
		"authenticated": true,
		"user": map[string]interface{}{
			"id":    session.UserID,
			"email": session.Email,
			"name":  session.Name,
			"role":  session.Role,
		},
	})
}

// FromRequest returns the caller Context for an authenticated request.
func (m *Manager) FromRequest(r *http.Request) (Context, error) {
	session := m.getSession(r)
	if session == nil {
		return Context{}, ErrUnauthenticated
	}
	return Context{
		UserID: session.UserID,
		Email:  session.Email,
		Role:   session.Role,
		Admin:  session.Role == "master" && session.UserID == adminUserID,
	}, nil
}

// RequireAuth is middleware that rejects unauthenticated API requests.
func (m *Manager) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if m.getSession(r) == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusUnauthorized)
			json.NewEncoder(w).Encode(map[string]string{"error": "unauthorized"})
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (m *Manager) getSession(r *http.Request) *Session {
	cookie, err := r.Cookie(SessionCookie)
	if err != nil {
		return nil
	}

	m.sessionMu.RLock()
	session, exists := m.sessions[cookie.Value]
	m.sessionMu.RUnlock()
	if !exists {
		return nil
	}

	if time.Now().After(session.ExpiresAt) {
		m.sessionMu.Lock()
		delete(m.sessions, cookie.Value)
		m.sessionMu.Unlock()
		return nil
	}
	return session
}

func (m *Manager) domainAllowed(email string) bool {
	if len(m.cfg.AllowedDomains) == 0 {
		return true
	}
	parts := strings.Split(email, "@")
	if len(parts) != 2 {
		return false
	}
	for _, d := range m.cfg.AllowedDomains {
		if strings.EqualFold(parts[1], d) {
			return true
		}
	}
	return false
}

func (m *Manager) resolveUser(ctx context.Context, email string) (int64, string, error) {
	var id int64
	var role string
	err := m.db.QueryRowContext(ctx,
		`SELECT id, role FROM users WHERE email = $1`, strings.ToLower(email)).Scan(&id, &role)
	if err == sql.ErrNoRows {
		return 0, "", fmt.Errorf("no user row for %s", email)
	}
	if err != nil {
		return 0, "", err
	}
	return id, role, nil
}

func (m *Manager) getUserInfo(ctx context.Context, accessToken string) (*googleUserInfo, error) {
	req, err := http.NewRequestWithContext(ctx, "GET",
		"https://www.googleapis.com/oauth2/v2/userinfo?access_token="+accessToken, nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to get user info: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("google API error: %s", string(body))
	}

	var info googleUserInfo
	if err := json.Unmarshal(body, &info); err != nil {
		return nil, fmt.Errorf("failed to parse user info: %w", err)
	}
	return &info, nil
}

// CleanupExpiredSessions removes expired sessions periodically.
func (m *Manager) CleanupExpiredSessions() {
	ticker := time.NewTicker(5 * time.Minute)
	go func() {
		for range ticker.C {
			m.sessionMu.Lock()
			now := time.Now()
			for id, session := range m.sessions {
				if now.After(session.ExpiresAt) {
					delete(m.sessions, id)
				}
			}
			m.sessionMu.Unlock()
		}
	}()
}
