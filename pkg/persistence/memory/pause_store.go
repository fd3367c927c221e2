// Package memory provides an in-process pause-state store for single-node deployments and tests.
package memory

import (
	"context"
	"sync"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
)

type entry struct {
	request   models.HumanInterventionRequest
	expiresAt time.Time
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// PauseStore keeps pending and archived reviews in maps. Expired entries are dropped lazily on read.
type PauseStore struct {
	mu       sync.Mutex
	pending  map[string]entry
	archived map[string]entry
	now      func() time.Time
}

// NewPauseStore creates an empty store.
func NewPauseStore() *PauseStore {
	return &PauseStore{
		pending:  make(map[string]entry),
		archived: make(map[string]entry),
		now:      time.Now,
	}
}

func key(conversationID, nodeID string) string {
	return conversationID + "/" + nodeID
}

// Put stores a pending request. A zero ttl never expires.
func (s *PauseStore) Put(_ context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.pending[key(request.ConversationID, request.NodeID)] = s.entry(request, ttl)

	return nil
}

func (s *PauseStore) Get(_ context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(s.pending, "Get", conversationID, nodeID)
}

func (s *PauseStore) Delete(_ context.Context, conversationID, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.pending, key(conversationID, nodeID))

	return nil
}

// Archive keeps a copy of a resolved request for ttl.
func (s *PauseStore) Archive(_ context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.archived[key(request.ConversationID, request.NodeID)] = s.entry(request, ttl)

	return nil
}

func (s *PauseStore) GetArchived(_ context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.lookup(s.archived, "GetArchived", conversationID, nodeID)
}

func (s *PauseStore) entry(request *models.HumanInterventionRequest, ttl time.Duration) entry {
	e := entry{request: *request}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	return e
}

func (s *PauseStore) lookup(entries map[string]entry, op, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	k := key(conversationID, nodeID)

	e, ok := entries[k]
	if ok && e.expired(s.now()) {
		delete(entries, k)

		ok = false
	}

	if !ok {
		return nil, &persistence.PauseStateError{
			Op:             op,
			ConversationID: conversationID,
			NodeID:         nodeID,
			Err:            persistence.ErrPauseStateNotFound,
		}
	}

	request := e.request

	return &request, nil
}
