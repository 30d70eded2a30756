// Package fingerprint computes stable content hashes for workflow
// definitions so identical logical content always hashes identically,
// regardless of runtime-assigned ids, timestamps and provider metadata.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// entityIDKey is injected into the canonical form when a collision forces a
// deterministic fallback digest.
const entityIDKey = "__entity_id__"

// volatileKeys are stripped from the top level of a workflow definition
// before hashing. They change on every save or export without altering the
// logical content of the workflow.
var volatileKeys = map[string]bool{
	"id":           true,
	"createdAt":    true,
	"updatedAt":    true,
	"versionId":    true,
	"meta":         true,
	"tags":         true,
	"shared":       true,
	"owner":        true,
	"triggerCount": true,
	"webhookId":    true,
}

// Normalize returns a deep copy of raw with volatile fields removed. The
// input is never mutated.
func Normalize(raw map[string]any) map[string]any {
	canonical := make(map[string]any, len(raw))

	for key, value := range raw {
		if volatileKeys[key] {
			continue
		}

		canonical[key] = deepCopy(value)
	}

	return canonical
}

// Hash returns the SHA-256 hex digest of the canonical form serialized with
// deterministic key ordering. encoding/json sorts map keys, which makes the
// serialization stable for any map-based payload.
func Hash(canonical map[string]any) (string, error) {
	payload, err := json.Marshal(canonical)
	if err != nil {
		return "", fmt.Errorf("failed to serialize canonical form: %w", err)
	}

	digest := sha256.Sum256(payload)

	return hex.EncodeToString(digest[:]), nil
}

// HashRaw normalizes and hashes a raw workflow definition in one step.
func HashRaw(raw map[string]any) (string, error) {
	return Hash(Normalize(raw))
}

// OverallHash derives a single digest for a set of per-workflow content
// hashes, keyed by workflow key. The result is independent of map ordering.
func OverallHash(workflows map[string]string) string {
	keys := make([]string, 0, len(workflows))
	for key := range workflows {
		keys = append(keys, key)
	}

	sort.Strings(keys)

	hasher := sha256.New()
	for _, key := range keys {
		fmt.Fprintf(hasher, "%s:%s\n", key, workflows[key])
	}

	return hex.EncodeToString(hasher.Sum(nil))
}

func deepCopy(value any) any {
	switch typed := value.(type) {
	case map[string]any:
		copied := make(map[string]any, len(typed))
		for key, inner := range typed {
			copied[key] = deepCopy(inner)
		}

		return copied
	case []any:
		copied := make([]any, len(typed))
		for i, inner := range typed {
			copied[i] = deepCopy(inner)
		}

		return copied
	default:
		return value
	}
}
