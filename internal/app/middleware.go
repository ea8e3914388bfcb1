package app

import (
	"net/http"
	"time"
)

// requireAuth ensures a live browser session and a valid token set before
// letting the request through; anything else is sent to /login.
func (a *Application) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie("session_id")
		if err != nil {
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		a.mu.Lock()
		expires, ok := a.webSessions[cookie.Value]
		if ok && time.Now().After(expires) {
			delete(a.webSessions, cookie.Value)
			ok = false
		}
		a.mu.Unlock()

		if !ok || !a.Session.Authenticated() {
			// Clear the stale cookie before bouncing to login.
			http.SetCookie(w, &http.Cookie{
				Name:   "session_id",
				Value:  "",
				Path:   "/",
				MaxAge: -1,
			})
			http.Redirect(w, r, "/login", http.StatusSeeOther)
			return
		}

		next.ServeHTTP(w, r)
	})
}
