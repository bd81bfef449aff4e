package metrics

import (
	"encoding/json"
	"net/http"
)

// Handler serves the latest report as JSON. Before the first collection it
// serves a fresh sample that is neither kept nor published.
func (s *Sampler) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		report, ok := s.Latest()
		if !ok {
			report = s.sample()
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(report); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}
}
