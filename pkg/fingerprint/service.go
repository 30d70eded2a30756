package fingerprint

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/dukex/promion/pkg/eventbus"
	"github.com/dukex/promion/pkg/events"
)

// Collision describes a true hash collision between two distinct payloads.
type Collision struct {
	Digest           string `json:"digest"`
	EntityID         string `json:"entity_id,omitempty"`
	ExistingEntityID string `json:"existing_entity_id,omitempty"`
	Resolved         bool   `json:"resolved"`
}

// Result is the outcome of a guarded hash computation.
type Result struct {
	Digest    string
	Fallback  bool
	Collision *Collision
}

// Service computes content hashes with a collision guard backed by a
// Registry. Identical payloads re-hashing to a registered digest are the
// expected duplicate case; differing payloads trigger a deterministic
// fallback digest derived from the entity id.
type Service struct {
	registry  Registry
	publisher eventbus.EventPublisher
	logger    *slog.Logger
}

// NewService creates a fingerprint service.
func NewService(registry Registry, logger *slog.Logger) *Service {
	return &Service{
		registry: registry,
		logger:   logger.With("module", "fingerprint"),
	}
}

// WithPublisher makes the service announce collisions on the event bus in
// addition to logging them.
func (s *Service) WithPublisher(publisher eventbus.EventPublisher) *Service {
	s.publisher = publisher

	return s
}

// announceCollision publishes a fingerprint.collision event. Best effort: a
// bus failure never fails the hash computation.
func (s *Service) announceCollision(ctx context.Context, collision *Collision) {
	if s.publisher == nil {
		return
	}

	err := s.publisher.Publish(ctx, collision.Digest, events.FingerprintCollision{
		BaseEvent: events.BaseEvent{
			ID:        uuid.NewString(),
			Type:      events.FingerprintCollisionEvent,
			Timestamp: time.Now().UTC(),
		},
		Digest:           collision.Digest,
		EntityID:         collision.EntityID,
		ExistingEntityID: collision.ExistingEntityID,
		Resolved:         collision.Resolved,
	})
	if err != nil {
		s.logger.WarnContext(ctx, "Failed to publish collision event",
			"digest_prefix", digestPrefix(collision.Digest), "error", err)
	}
}

// HashWithGuard normalizes raw, hashes it, and runs the digest through the
// collision guard. entityID may be empty, in which case a true collision
// cannot be resolved deterministically and the original digest is returned
// flagged as an unresolved collision.
func (s *Service) HashWithGuard(ctx context.Context, raw map[string]any, entityID string) (*Result, error) {
	canonical := Normalize(raw)

	digest, err := Hash(canonical)
	if err != nil {
		return nil, err
	}

	payload, err := json.Marshal(canonical)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize canonical form: %w", err)
	}

	existing, err := s.registry.Lookup(ctx, digest)
	if err != nil {
		return nil, fmt.Errorf("collision registry lookup failed: %w", err)
	}

	if existing == nil {
		err = s.registry.Register(ctx, digest, Entry{Payload: string(payload), EntityID: entityID})
		if err != nil {
			return nil, fmt.Errorf("collision registry register failed: %w", err)
		}

		return &Result{Digest: digest}, nil
	}

	if existing.Payload == string(payload) {
		// Expected duplicate: unchanged content re-hashed.
		return &Result{Digest: digest}, nil
	}

	if entityID == "" {
		s.logger.ErrorContext(ctx, "Unresolvable hash collision, no entity id supplied",
			"digest_prefix", digestPrefix(digest),
			"existing_entity_id", existing.EntityID,
		)

		collision := &Collision{
			Digest:           digest,
			ExistingEntityID: existing.EntityID,
			Resolved:         false,
		}
		s.announceCollision(ctx, collision)

		return &Result{Digest: digest, Collision: collision}, nil
	}

	fallback, err := s.fallbackDigest(canonical, entityID)
	if err != nil {
		return nil, err
	}

	err = s.registry.Register(ctx, fallback, Entry{Payload: string(payload), EntityID: entityID})
	if err != nil {
		return nil, fmt.Errorf("collision registry register failed: %w", err)
	}

	s.logger.WarnContext(ctx, "Hash collision resolved with fallback digest",
		"digest_prefix", digestPrefix(digest),
		"entity_id", entityID,
		"existing_entity_id", existing.EntityID,
	)

	collision := &Collision{
		Digest:           digest,
		EntityID:         entityID,
		ExistingEntityID: existing.EntityID,
		Resolved:         true,
	}
	s.announceCollision(ctx, collision)

	return &Result{Digest: fallback, Fallback: true, Collision: collision}, nil
}

// fallbackDigest recomputes the hash over the canonical form extended with
// the entity id. The same payload and entity id always produce the same
// fallback digest.
func (s *Service) fallbackDigest(canonical map[string]any, entityID string) (string, error) {
	extended := make(map[string]any, len(canonical)+1)
	for key, value := range canonical {
		extended[key] = value
	}

	extended[entityIDKey] = entityID

	return Hash(extended)
}

func digestPrefix(digest string) string {
	if len(digest) < 12 {
		return digest
	}

	return digest[:12]
}
