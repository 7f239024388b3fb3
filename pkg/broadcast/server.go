package broadcast

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/dukex/devflow/pkg/models"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	wsReadTimeout     = 30 * time.Second
	wsIdleTimeout     = 60 * time.Second
	wsShutdownTimeout = 5 * time.Second

	// ProjectIDParam is the query parameter naming the project a client subscribes to.
	ProjectIDParam = "projectId"
	TokenParam     = "token"
)

var (
	ErrMissingToken     = errors.New("missing auth token")
	ErrInvalidToken     = errors.New("invalid auth token")
	ErrMissingProjectID = errors.New("missing projectId")
)

// Server accepts WebSocket clients and subscribes them to a Hub.
type Server struct {
	server   *http.Server
	port     int
	hub      *Hub
	tokens   []string
	upgrader websocket.Upgrader
	logger   *slog.Logger
	mu       sync.RWMutex
	started  bool
	done     chan struct{}
	doneOnce sync.Once
	clientMu sync.Mutex
	clients  map[*client]struct{}
}

func NewServer(port int, hub *Hub, tokens []string, logger *slog.Logger) *Server {
	return &Server{
		port:    port,
		hub:     hub,
		tokens:  tokens,
		logger:  logger.With("module", "websocket_server", "port", port),
		done:    make(chan struct{}),
		clients: make(map[*client]struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

// Handler exposes the routes without binding a listener.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWebSocket)
	mux.HandleFunc("/health", s.handleHealth)

	return mux
}

func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}

	s.server = &http.Server{
		Addr:        fmt.Sprintf(":%d", s.port),
		Handler:     s.Handler(),
		ReadTimeout: wsReadTimeout,
		IdleTimeout: wsIdleTimeout,
	}

	s.started = true
	s.logger.Info("Starting websocket server", "addr", s.server.Addr)

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("Websocket server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		s.shutdown()
	}()

	return nil
}

// Stop shuts the listener down and closes every hijacked connection.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return nil
	}

	s.logger.Info("Stopping websocket server")

	shutdownCtx, cancel := context.WithTimeout(ctx, wsShutdownTimeout)
	defer cancel()

	err := s.server.Shutdown(shutdownCtx)

	s.closeClients()

	if err != nil {
		s.logger.Error("Error during server shutdown", "error", err)

		return err
	}

	s.started = false
	s.doneOnce.Do(func() {
		close(s.done)
	})

	s.logger.Info("Websocket server stopped successfully")

	return nil
}

func (s *Server) Done() <-chan struct{} {
	return s.done
}

func (s *Server) shutdown() {
	if err := s.Stop(context.Background()); err != nil {
		s.logger.Error("Error during websocket server shutdown", "error", err)
	}
}

// Authorize checks the bearer token and projectId before the upgrade.
func (s *Server) Authorize(r *http.Request) (string, error) {
	token := r.URL.Query().Get(TokenParam)
	if header := r.Header.Get("Authorization"); token == "" && header != "" {
		token = strings.TrimSpace(strings.TrimPrefix(header, "Bearer "))
	}

	if token == "" {
		return "", ErrMissingToken
	}

	if !s.validToken(token) {
		return "", ErrInvalidToken
	}

	projectID := strings.TrimSpace(r.URL.Query().Get(ProjectIDParam))
	if projectID == "" {
		return "", ErrMissingProjectID
	}

	return projectID, nil
}

func (s *Server) validToken(token string) bool {
	valid := false

	for _, candidate := range s.tokens {
		if candidate != "" && subtle.ConstantTimeCompare([]byte(candidate), []byte(token)) == 1 {
			valid = true
		}
	}

	return valid
}

func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	projectID, err := s.Authorize(r)
	if err != nil {
		status := http.StatusUnauthorized
		if errors.Is(err, ErrMissingProjectID) {
			status = http.StatusBadRequest
		}

		s.logger.Warn("Rejected websocket client", "remote_addr", r.RemoteAddr, "error", err)
		http.Error(w, err.Error(), status)

		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("Websocket upgrade failed", "error", err)

		return
	}

	c := newClient(uuid.NewString(), projectID, conn, s.logger)

	s.trackClient(c, true)
	c.Enqueue(s.frame(NewEnvelope(models.EnvelopeConnectionEstablished, projectID, map[string]any{
		"clientId": c.id,
	})))
	s.hub.Subscribe(projectID, c)

	s.logger.Info("Websocket client connected", "client_id", c.id, "project_id", projectID)

	go c.writePump()

	go func() {
		c.readPump(func(message []byte) {
			c.Enqueue(s.frame(s.reply(projectID, message)))
		})

		s.hub.Unsubscribe(projectID, c.id)
		s.trackClient(c, false)
		s.logger.Info("Websocket client disconnected", "client_id", c.id, "project_id", projectID)
	}()
}

// reply acknowledges well-formed JSON and answers anything else with an error frame.
func (s *Server) reply(projectID string, message []byte) models.Envelope {
	if !json.Valid(message) {
		return NewEnvelope(models.EnvelopeError, projectID, map[string]any{
			"message": "malformed JSON message",
		})
	}

	return NewEnvelope(models.EnvelopeMessageReceived, projectID, map[string]any{
		"received": json.RawMessage(message),
	})
}

func (s *Server) frame(envelope models.Envelope) []byte {
	data, err := json.Marshal(envelope)
	if err != nil {
		s.logger.Error("Failed to encode envelope", "type", envelope.Type, "error", err)

		return nil
	}

	return data
}

func (s *Server) trackClient(c *client, connected bool) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if connected {
		s.clients[c] = struct{}{}
	} else {
		delete(s.clients, c)
	}
}

func (s *Server) closeClients() {
	s.clientMu.Lock()
	clients := make([]*client, 0, len(s.clients))

	for c := range s.clients {
		clients = append(clients, c)
	}
	s.clientMu.Unlock()

	for _, c := range clients {
		c.Close()
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)

	_, _ = w.Write([]byte(`{"status":"healthy","service":"websocket"}`))
}
