package observability

import (
	"context"
	"encoding/json"
	"net/http"
)

const (
	healthOK          = "ok"
	healthUnavailable = "unavailable"
)

// ReadyCheck reports whether a subsystem can serve traffic.
type ReadyCheck func(ctx context.Context) error

type healthBody struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// HealthHandler answers liveness probes with 200 {"status":"ok"}.
func HealthHandler() http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, _ *http.Request) {
		writeHealth(rw, http.StatusOK, healthBody{Status: healthOK})
	})
}

// ReadyHandler runs checks in order and answers 503 on the first failure.
func ReadyHandler(checks ...ReadyCheck) http.Handler {
	return http.HandlerFunc(func(rw http.ResponseWriter, hr *http.Request) {
		for _, check := range checks {
			checkErr := check(hr.Context())
			if checkErr != nil {
				writeHealth(rw, http.StatusServiceUnavailable, healthBody{Status: healthUnavailable, Reason: checkErr.Error()})

				return
			}
		}

		writeHealth(rw, http.StatusOK, healthBody{Status: healthOK})
	})
}

func writeHealth(rw http.ResponseWriter, code int, body healthBody) {
	rw.Header().Set("Content-Type", "application/json")
	rw.WriteHeader(code)

	// The status code already carries the verdict.
	_ = json.NewEncoder(rw).Encode(body)
}
