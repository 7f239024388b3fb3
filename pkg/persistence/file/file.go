// Package file provides file-based persistence for inbound events.
package file

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"

	"github.com/dukex/devflow/pkg/persistence"
)

// Persistence is the JSON-file event store used for local development.
type Persistence struct {
	root string
	*EventRepository
}

// NewPersistence accepts a bare directory or a file:// URL.
func NewPersistence(root string) persistence.Persistence {
	root = strings.TrimPrefix(root, "file://")

	return &Persistence{
		root:            root,
		EventRepository: NewEventRepository(root),
	}
}

func (fp *Persistence) Close(_ context.Context) error {
	return nil
}

// HealthCheck requires the root to exist and be a directory.
func (fp *Persistence) HealthCheck(_ context.Context) error {
	info, err := os.Stat(fp.root)
	if err != nil {
		return fmt.Errorf("event store root %q: %w", fp.root, err)
	}

	if !info.IsDir() {
		return fmt.Errorf("event store root %q is not a directory", fp.root)
	}

	return nil
}

// EventRepository stores one JSON document per event under <root>/events.
type EventRepository struct {
	root string
	mu   sync.RWMutex
}

// NewEventRepository creates a new event repository.
func NewEventRepository(root string) *EventRepository {
	return &EventRepository{root: root}
}

var _ persistence.EventStore = (*EventRepository)(nil)
