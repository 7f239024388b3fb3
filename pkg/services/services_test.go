package services

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/persistence"
	"github.com/dukex/devflow/pkg/persistence/file"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newStore(t *testing.T) persistence.Persistence {
	t.Helper()

	return file.NewPersistence(t.TempDir())
}

type recordingBroadcaster struct {
	mu        sync.Mutex
	envelopes []models.Envelope
}

func (r *recordingBroadcaster) Broadcast(_ context.Context, envelope models.Envelope) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.envelopes = append(r.envelopes, envelope)

	return nil
}

func (r *recordingBroadcaster) types() []models.EnvelopeType {
	r.mu.Lock()
	defer r.mu.Unlock()

	types := make([]models.EnvelopeType, 0, len(r.envelopes))
	for _, envelope := range r.envelopes {
		types = append(types, envelope.Type)
	}

	return types
}
