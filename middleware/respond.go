package middleware

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/dave593/portalauth"
)

// WriteResult writes res as JSON with the status its code maps to. A
// RATE_LIMITED result also sets Retry-After.
func WriteResult(w http.ResponseWriter, res portalauth.Result) {
	if res.RetryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(res.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(res.Status())
	_ = json.NewEncoder(w).Encode(res)
}

// WriteError writes the failure result for err.
func WriteError(w http.ResponseWriter, err error) {
	WriteResult(w, portalauth.Failure(err))
}
