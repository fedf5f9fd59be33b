package runtime

import (
	"net/http"
	"strings"

	"github.com/drblury/packflow/internal/runtime/dlq"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
)

// StartStatusAPI mounts the read-only operational endpoints when enabled.
// The servers themselves start with Start.
func (s *Service) StartStatusAPI() {
	if !s.Conf.StatusAPIEnabled {
		return
	}

	port := s.Conf.StatusAPIPort
	if port == 0 {
		port = 8081
	}

	s.RegisterHTTPHandler(port, "/api/handlers", s.statusEndpoint(s.handleGetHandlers))
	s.RegisterHTTPHandler(port, "/api/subscriptions", s.statusEndpoint(s.handleGetSubscriptions))
	s.RegisterHTTPHandler(port, "/api/jobs", s.statusEndpoint(s.handleGetJobs))
	s.RegisterHTTPHandler(port, "/api/dlq", s.statusEndpoint(s.handleGetDLQ))
}

// statusEndpoint wraps a handler with the JSON content type, the configured
// CORS policy, and preflight handling shared by all status endpoints.
func (s *Service) statusEndpoint(h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")

		if len(s.Conf.StatusCORSAllowedOrigins) > 0 {
			origin := r.Header.Get("Origin")
			allowedOrigin := s.getAllowedCORSOrigin(origin)
			if allowedOrigin != "" {
				w.Header().Set("Access-Control-Allow-Origin", allowedOrigin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
			}
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		if r.Method != http.MethodGet {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}

		h(w, r)
	})
}

func (s *Service) handleGetHandlers(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"handlers": s.registry.Handlers(),
		"timers":   s.registry.Timers(),
	}
	s.writeStatusJSON(w, payload)
}

func (s *Service) handleGetSubscriptions(w http.ResponseWriter, r *http.Request) {
	states, err := s.subscriptions.List()
	if err != nil {
		s.Logger.Error("Failed to list subscriptions", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	s.writeStatusJSON(w, states)
}

func (s *Service) handleGetJobs(w http.ResponseWriter, r *http.Request) {
	s.writeStatusJSON(w, s.egress.Jobs())
}

func (s *Service) handleGetDLQ(w http.ResponseWriter, r *http.Request) {
	egressRecords, err := dlq.ReadAll(s.Conf.DLQPath)
	if err != nil {
		s.Logger.Error("Failed to read egress dead letters", err, logging.LogFields{"path": s.Conf.DLQPath})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	subRecords, err := dlq.ReadAll(s.Conf.SubscriptionDLQPath)
	if err != nil {
		s.Logger.Error("Failed to read subscription dead letters", err, logging.LogFields{"path": s.Conf.SubscriptionDLQPath})
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	payload := map[string]any{
		"egress":        egressRecords,
		"subscriptions": subRecords,
	}
	if s.dlqMetrics != nil {
		payload["metrics"] = s.dlqMetrics.GetSnapshot()
	}
	s.writeStatusJSON(w, payload)
}

func (s *Service) writeStatusJSON(w http.ResponseWriter, v any) {
	if err := jsoncodec.Encode(w, v); err != nil {
		s.Logger.Error("Failed to encode status response", err, nil)
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
	}
}

// getAllowedCORSOrigin checks if the request origin is allowed and returns
// the appropriate Access-Control-Allow-Origin value.
func (s *Service) getAllowedCORSOrigin(requestOrigin string) string {
	for _, allowed := range s.Conf.StatusCORSAllowedOrigins {
		if allowed == "*" {
			return "*"
		}
		if strings.EqualFold(allowed, requestOrigin) {
			return requestOrigin
		}
	}
	return ""
}
