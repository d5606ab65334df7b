package httpapi

import (
	"crypto/subtle"
	"net/http"
)

// ValidateAccessKey returns true if providedKey matches configKey.
// An empty configKey never validates; callers decide whether that means
// "gate disabled" or "locked out".
func ValidateAccessKey(providedKey, configKey string) bool {
	if configKey == "" || providedKey == "" {
		return false
	}
	if len(providedKey) != len(configKey) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(providedKey), []byte(configKey)) == 1
}

// requireAccessKey gates admin surfaces behind the ?key= query parameter.
// With no key configured the gate is open, matching a development setup.
func (s *Server) requireAccessKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := s.cfg.Secrets.DashboardKey
		if key != "" && !ValidateAccessKey(r.URL.Query().Get("key"), key) {
			respondText(w, http.StatusUnauthorized, "Unauthorized")
			return
		}
		next(w, r)
	}
}
