package broadcast_test

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukex/devflow/pkg/broadcast"
	"github.com/dukex/devflow/pkg/models"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testToken = "s3cret"

func newTestServer(t *testing.T) (*broadcast.Hub, *httptest.Server) {
	t.Helper()

	hub := broadcast.NewHub(discardLogger())
	server := broadcast.NewServer(0, hub, []string{testToken}, discardLogger())
	httpServer := httptest.NewServer(server.Handler())
	t.Cleanup(httpServer.Close)

	return hub, httpServer
}

func wsURL(server *httptest.Server, query string) string {
	return "ws" + strings.TrimPrefix(server.URL, "http") + "/ws?" + query
}

func dial(t *testing.T, url string, header http.Header) *websocket.Conn {
	t.Helper()

	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)

	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}

	t.Cleanup(func() { _ = conn.Close() })

	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) models.Envelope {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))

	var envelope models.Envelope
	require.NoError(t, conn.ReadJSON(&envelope))

	return envelope
}

func TestServerRejectsBeforeUpgrade(t *testing.T) {
	t.Parallel()

	_, server := newTestServer(t)

	tests := []struct {
		name   string
		query  string
		header http.Header
		status int
	}{
		{"no token", "projectId=acme-web", nil, http.StatusUnauthorized},
		{"wrong token", "projectId=acme-web&token=nope", nil, http.StatusUnauthorized},
		{"wrong bearer", "projectId=acme-web", http.Header{"Authorization": {"Bearer nope"}}, http.StatusUnauthorized},
		{"no project", "token=" + testToken, nil, http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := websocket.DefaultDialer.Dial(wsURL(server, tt.query), tt.header)
			if conn != nil {
				_ = conn.Close()
			}

			require.ErrorIs(t, err, websocket.ErrBadHandshake)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
			_ = resp.Body.Close()
		})
	}
}

func TestServerConnectionEstablished(t *testing.T) {
	t.Parallel()

	_, server := newTestServer(t)

	conn := dial(t, wsURL(server, "projectId=acme-web"), http.Header{"Authorization": {"Bearer " + testToken}})

	envelope := readEnvelope(t, conn)
	assert.Equal(t, models.EnvelopeConnectionEstablished, envelope.Type)
	assert.Equal(t, "acme-web", envelope.ProjectID)
	assert.True(t, strings.HasSuffix(envelope.Ts, "Z"))
}

func TestServerAcknowledgesAndSurvivesMalformedJSON(t *testing.T) {
	t.Parallel()

	_, server := newTestServer(t)

	conn := dial(t, wsURL(server, "projectId=acme-web&token="+testToken), nil)
	readEnvelope(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	assert.Equal(t, models.EnvelopeError, readEnvelope(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"ping"}`)))

	ack := readEnvelope(t, conn)
	assert.Equal(t, models.EnvelopeMessageReceived, ack.Type)

	payload, ok := ack.Payload.(map[string]any)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"type": "ping"}, payload["received"])
}

func TestServerDeliversOnlyOwnProject(t *testing.T) {
	t.Parallel()

	hub, server := newTestServer(t)

	web := dial(t, wsURL(server, "projectId=acme-web&token="+testToken), nil)
	api := dial(t, wsURL(server, "projectId=acme-api&token="+testToken), nil)

	readEnvelope(t, web)
	readEnvelope(t, api)

	require.Eventually(t, func() bool {
		return hub.Count("acme-web") == 1 && hub.Count("acme-api") == 1
	}, time.Second, 10*time.Millisecond)

	require.NoError(t, hub.Broadcast(t.Context(), broadcast.NewEnvelope(models.EnvelopeCompletion, "acme-api", map[string]any{"status": "completed"})))

	envelope := readEnvelope(t, api)
	assert.Equal(t, models.EnvelopeCompletion, envelope.Type)

	require.NoError(t, web.SetReadDeadline(time.Now().Add(100*time.Millisecond)))

	_, _, err := web.ReadMessage()
	assert.Error(t, err)
}

func TestServerUnsubscribesOnDisconnect(t *testing.T) {
	t.Parallel()

	hub, server := newTestServer(t)

	conn := dial(t, wsURL(server, "projectId=acme-web&token="+testToken), nil)
	readEnvelope(t, conn)
	require.Equal(t, 1, hub.Count("acme-web"))

	require.NoError(t, conn.Close())

	require.Eventually(t, func() bool {
		return hub.Count("acme-web") == 0
	}, 2*time.Second, 10*time.Millisecond)
}
