// Package redis provides a Redis-backed pause-state store with per-entry expiry.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/dukex/agentgraph/pkg/models"
	"github.com/dukex/agentgraph/pkg/persistence"
	redis "github.com/redis/go-redis/v9"
)

// KeyPrefix namespaces every key written by the store.
const KeyPrefix = "agentgraph:hitl"

// PauseStore keeps pending reviews under agentgraph:hitl:{conversation}:{node} and
// resolved ones under the same key with an :audit suffix.
type PauseStore struct {
	client redis.UniversalClient
	logger *slog.Logger
}

// NewPauseStore wraps an existing client.
func NewPauseStore(client redis.UniversalClient, logger *slog.Logger) *PauseStore {
	return &PauseStore{
		client: client,
		logger: logger.With("module", "redis_pause_store"),
	}
}

// Connect parses a redis:// URL, pings the server and returns a store.
func Connect(ctx context.Context, url string, logger *slog.Logger) (*PauseStore, error) {
	options, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}

	client := redis.NewClient(options)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	err = client.Ping(pingCtx).Err()
	if err != nil {
		_ = client.Close()

		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger.InfoContext(ctx, "Connected to Redis", "addr", options.Addr, "db", options.DB)

	return NewPauseStore(client, logger), nil
}

// Key returns the storage key of a pending review.
func Key(conversationID, nodeID string) string {
	return strings.Join([]string{KeyPrefix, conversationID, nodeID}, ":")
}

// AuditKey returns the storage key of an archived review.
func AuditKey(conversationID, nodeID string) string {
	return Key(conversationID, nodeID) + ":audit"
}

func (s *PauseStore) Put(ctx context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error {
	return s.set(ctx, "Put", Key(request.ConversationID, request.NodeID), request, ttl)
}

func (s *PauseStore) Get(ctx context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	return s.get(ctx, "Get", Key(conversationID, nodeID), conversationID, nodeID)
}

func (s *PauseStore) Delete(ctx context.Context, conversationID, nodeID string) error {
	err := s.client.Del(ctx, Key(conversationID, nodeID)).Err()
	if err != nil {
		return &persistence.PauseStateError{Op: "Delete", ConversationID: conversationID, NodeID: nodeID, Err: err}
	}

	return nil
}

func (s *PauseStore) Archive(ctx context.Context, request *models.HumanInterventionRequest, ttl time.Duration) error {
	return s.set(ctx, "Archive", AuditKey(request.ConversationID, request.NodeID), request, ttl)
}

func (s *PauseStore) GetArchived(ctx context.Context, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	return s.get(ctx, "GetArchived", AuditKey(conversationID, nodeID), conversationID, nodeID)
}

// HealthCheck pings the server.
func (s *PauseStore) HealthCheck(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *PauseStore) Close() error {
	return s.client.Close()
}

func (s *PauseStore) set(ctx context.Context, op, key string, request *models.HumanInterventionRequest, ttl time.Duration) error {
	data, err := json.Marshal(request)
	if err != nil {
		return &persistence.PauseStateError{Op: op, ConversationID: request.ConversationID, NodeID: request.NodeID, Err: err}
	}

	// zero ttl keeps the key without expiry
	err = s.client.Set(ctx, key, data, ttl).Err()
	if err != nil {
		return &persistence.PauseStateError{Op: op, ConversationID: request.ConversationID, NodeID: request.NodeID, Err: err}
	}

	s.logger.DebugContext(ctx, "Stored pause state", "key", key, "ttl", ttl)

	return nil
}

func (s *PauseStore) get(ctx context.Context, op, key, conversationID, nodeID string) (*models.HumanInterventionRequest, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			err = persistence.ErrPauseStateNotFound
		}

		return nil, &persistence.PauseStateError{Op: op, ConversationID: conversationID, NodeID: nodeID, Err: err}
	}

	var request models.HumanInterventionRequest

	err = json.Unmarshal(data, &request)
	if err != nil {
		return nil, &persistence.PauseStateError{
			Op:             op,
			ConversationID: conversationID,
			NodeID:         nodeID,
			Err:            fmt.Errorf("failed to unmarshal pause state: %w", err),
		}
	}

	return &request, nil
}
