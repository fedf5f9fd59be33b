// Package ingress serves the HTTP listener that feeds inbound webhook and
// event traffic into the runtime. One listener serves both domains; every
// request is dispatched to a pack's ingest_http operation and emitted events
// are enqueued on the bus before the response is written.
package ingress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/drblury/packflow/internal/runtime/envelope"
	"github.com/drblury/packflow/internal/runtime/jsoncodec"
	"github.com/drblury/packflow/internal/runtime/logging"
	"github.com/drblury/packflow/internal/runtime/pack"
	"github.com/drblury/packflow/internal/runtime/registry"
)

// EventSink receives events emitted by ingress handlers. Publish must only
// return once the events are durably enqueued.
type EventSink interface {
	Publish(events ...envelope.EventEnvelope) error
}

// ServerOptions configures the ingress server.
type ServerOptions struct {
	Addr          string
	Domains       []string
	BodyLimit     int64
	ShutdownGrace time.Duration
	Registry      *registry.Registry
	Runtime       pack.Runtime
	Events        EventSink
	Logger        logging.ServiceLogger
}

// Server is the ingress HTTP listener.
type Server struct {
	addr          string
	domains       map[string]bool
	bodyLimit     int64
	shutdownGrace time.Duration
	registry      *registry.Registry
	runtime       pack.Runtime
	events        EventSink
	log           logging.ServiceLogger
}

// NewServer builds an ingress server.
func NewServer(opts ServerOptions) *Server {
	domains := make(map[string]bool, len(opts.Domains))
	for _, domain := range opts.Domains {
		domains[strings.ToLower(domain)] = true
	}
	if opts.BodyLimit <= 0 {
		opts.BodyLimit = 4 << 20
	}
	if opts.ShutdownGrace <= 0 {
		opts.ShutdownGrace = 10 * time.Second
	}
	if opts.Logger == nil {
		opts.Logger = logging.Nop()
	}
	return &Server{
		addr:          opts.Addr,
		domains:       domains,
		bodyLimit:     opts.BodyLimit,
		shutdownGrace: opts.ShutdownGrace,
		registry:      opts.Registry,
		runtime:       opts.Runtime,
		events:        opts.Events,
		log:           opts.Logger,
	}
}

// Handler returns the ingress http.Handler, exposed separately so tests can
// drive it without a listener.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(s.handle)
}

// Run serves until ctx is cancelled, then shuts down gracefully: the listener
// stops accepting and in-flight requests get the configured grace period.
func (s *Server) Run(ctx context.Context) error {
	server := &http.Server{
		Addr:    s.addr,
		Handler: s.Handler(),
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ingress listening", logging.LogFields{"addr": s.addr})
		errCh <- server.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownGrace)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "only GET/POST allowed")
		return
	}

	route, ok := ParseRoute(r.URL.Path)
	if !ok {
		writeError(w, http.StatusBadRequest, routeHint)
		return
	}
	if !s.domains[route.Domain] {
		writeError(w, http.StatusNotFound, "domain disabled")
		return
	}

	reg, ok := s.registry.LookupHTTP(route.Domain, route.Provider, route.Handler)
	if !ok {
		writeError(w, http.StatusNotFound, "no ingest_http handler available")
		return
	}

	body, err := io.ReadAll(io.LimitReader(r.Body, s.bodyLimit+1))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}
	if int64(len(body)) > s.bodyLimit {
		writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
		return
	}

	request := s.buildRequest(r, route, reg.Key.HandlerID, body)
	input, err := jsoncodec.Marshal(request)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode request")
		return
	}

	output, err := s.runtime.Invoke(r.Context(), pack.Call{
		Domain:        route.Domain,
		Provider:      route.Provider,
		Op:            reg.Op,
		Tenant:        route.Tenant,
		Team:          route.Team,
		CorrelationID: request.CorrelationID,
		Input:         input,
	})
	if err != nil {
		s.log.Error("ingest_http failed", err, logging.LogFields{
			"provider": route.Provider,
			"tenant":   route.Tenant,
		})
		writeError(w, http.StatusBadGateway, pack.AsOpError(err).Message)
		return
	}

	result, err := envelope.DecodeIngressResult(output)
	if err != nil {
		s.log.Error("undecodable ingest_http output", err, logging.LogFields{
			"provider": route.Provider,
		})
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}

	// Events must be enqueued before the response goes out; the caller never
	// waits on routing itself.
	if len(result.Events) > 0 {
		if err := s.events.Publish(result.Events...); err != nil {
			s.log.Error("event enqueue failed", err, logging.LogFields{
				"provider": route.Provider,
				"events":   len(result.Events),
			})
			writeError(w, http.StatusBadGateway, "failed to enqueue events")
			return
		}
		s.log.Info("ingress events enqueued", logging.LogFields{
			"provider": route.Provider,
			"tenant":   route.Tenant,
			"events":   len(result.Events),
		})
	}

	writeResult(w, result.Response)
}

func (s *Server) buildRequest(r *http.Request, route Route, handlerID string, body []byte) envelope.IngressRequestV1 {
	var query []envelope.Pair
	for _, pair := range strings.Split(r.URL.RawQuery, "&") {
		if pair == "" {
			continue
		}
		key, value, _ := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		query = append(query, envelope.Pair{key, strings.TrimSpace(value)})
	}

	var headers []envelope.Pair
	for name, values := range r.Header {
		for _, value := range values {
			headers = append(headers, envelope.Pair{name, value})
		}
	}

	// inbound subscription notifications carry their binding id either as a
	// query parameter or a header
	bindingID := r.URL.Query().Get("binding_id")
	if bindingID == "" {
		bindingID = r.Header.Get("X-Binding-Id")
	}

	return envelope.IngressRequestV1{
		V:             1,
		Domain:        route.Domain,
		Provider:      route.Provider,
		Handler:       handlerID,
		BindingID:     bindingID,
		Tenant:        route.Tenant,
		Team:          route.Team,
		Method:        r.Method,
		Path:          r.URL.Path,
		Query:         query,
		Headers:       headers,
		Body:          body,
		CorrelationID: r.Header.Get("X-Correlation-Id"),
		RemoteAddr:    r.RemoteAddr,
	}
}

func writeResult(w http.ResponseWriter, resp envelope.IngressHTTPResponse) {
	hasContentType := false
	for _, header := range resp.Headers {
		if strings.EqualFold(header.Name(), "Content-Type") {
			hasContentType = true
		}
		w.Header().Add(header.Name(), header.Value())
	}
	if !hasContentType {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(resp.Status)
	if len(resp.Body) > 0 {
		_, _ = w.Write(resp.Body)
	}
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	body, err := jsoncodec.Marshal(map[string]any{
		"success": false,
		"message": message,
	})
	if err != nil {
		body = []byte(fmt.Sprintf(`{"success":false,"message":%q}`, message))
	}
	_, _ = w.Write(body)
}
