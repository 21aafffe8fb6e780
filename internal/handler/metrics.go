package handler

import (
	"crypto/subtle"
	"net/http"
)

// BasicAuth guards a handler with HTTP basic auth. Empty credentials
// disable the guard, which keeps local development friction-free.
func BasicAuth(username, password string, next http.Handler) http.Handler {
	if username == "" && password == "" {
		return next
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		user, pass, ok := r.BasicAuth()
		userOK := subtle.ConstantTimeCompare([]byte(user), []byte(username)) == 1
		passOK := subtle.ConstantTimeCompare([]byte(pass), []byte(password)) == 1
		if !ok || !userOK || !passOK {
			w.Header().Set("WWW-Authenticate", `Basic realm="metrics"`)
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
