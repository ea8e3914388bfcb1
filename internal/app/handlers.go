package app

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/VectorInstitute/aieng-auth/internal/auth"
)

// handleLogin starts a fresh authorization attempt and redirects the
// browser to the provider's consent page.
func (a *Application) handleLogin(w http.ResponseWriter, r *http.Request) {
	authURL, err := a.Client.Login(r.Context())
	if err != nil {
		a.failAuth(w, err)
		return
	}
	http.Redirect(w, r, authURL, http.StatusSeeOther)
}

// handleAuthCallback handles the redirect back from the provider: it
// validates the callback, establishes the refresh session and hands the
// browser a session cookie.
func (a *Application) handleAuthCallback(w http.ResponseWriter, r *http.Request) {
	tokens, err := a.Client.HandleCallback(r.Context(), r.URL.String())
	if err != nil {
		a.failAuth(w, err)
		return
	}

	if err := a.Session.Establish(tokens); err != nil {
		a.failAuth(w, err)
		return
	}

	sessionID := uuid.NewString()
	a.mu.Lock()
	a.webSessions[sessionID] = time.Now().Add(webSessionTTL)
	a.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    sessionID,
		Expires:  time.Now().Add(webSessionTTL),
		HttpOnly: true,
		Path:     "/",
	})

	http.Redirect(w, r, "/profile", http.StatusSeeOther)
}

// handleLogout tears down both the refresh session and the browser
// session. Logout always succeeds locally.
func (a *Application) handleLogout(w http.ResponseWriter, r *http.Request) {
	if err := a.Session.Logout(r.Context()); err != nil {
		a.Logger.Printf("logout: clearing tokens: %v", err)
	}

	if cookie, err := r.Cookie("session_id"); err == nil {
		a.mu.Lock()
		delete(a.webSessions, cookie.Value)
		a.mu.Unlock()
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "session_id",
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})

	http.Redirect(w, r, "/", http.StatusSeeOther)
}

// handleProfile is a protected handler returning the normalized profile of
// the signed-in user.
func (a *Application) handleProfile(w http.ResponseWriter, r *http.Request) {
	access := a.Manager.AccessToken()
	if access == "" {
		http.Error(w, "not signed in", http.StatusUnauthorized)
		return
	}

	info, err := a.Client.GetUserInfo(r.Context(), access)
	if err != nil {
		a.failAuth(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(info)
}

// handleIndex reports sign-in status.
func (a *Application) handleIndex(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	if a.Session.Authenticated() {
		fmt.Fprintln(w, "signed in; see /profile")
		return
	}
	fmt.Fprintln(w, "signed out; visit /login")
}

// failAuth logs the structured error record and answers with the
// user-facing message and a status derived from the error kind.
func (a *Application) failAuth(w http.ResponseWriter, err error) {
	var ae *auth.Error
	if e, ok := err.(*auth.Error); ok {
		ae = e
	} else {
		ae = auth.E(auth.KindUnknown, err.Error(), err)
	}

	rec, _ := json.Marshal(ae.Record())
	a.Logger.Printf("auth failure: %s", rec)

	status := http.StatusInternalServerError
	switch ae.Kind {
	case auth.KindAuthFailed, auth.KindInvalidState, auth.KindCallbackError:
		status = http.StatusBadRequest
	case auth.KindTokenExpired, auth.KindTokenRefreshFailed:
		status = http.StatusUnauthorized
	case auth.KindNetworkError:
		status = http.StatusBadGateway
	}
	http.Error(w, auth.UserFriendlyMessage(ae), status)
}
