package health

import "net/http"

// Readiness is satisfied by the availability gate and its readiness state.
type Readiness interface {
	Ready() bool
}

func ReadyHandler(r Readiness) http.HandlerFunc {
	return func(w http.ResponseWriter, req *http.Request) {
		if !r.Ready() {
			http.Error(w, "deployment not ready", http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"status":"ready"}`))
	}
}
