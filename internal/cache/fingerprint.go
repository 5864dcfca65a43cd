// Package cache provides deterministic result caching for worker invocations.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/atlasprocure/caseflow/internal/domain"
)

// SchemaVersion is folded into every cache key so that a change to the
// worker input schema invalidates all prior entries.
const SchemaVersion = "1.0"

// NormalizeIntent canonicalizes an intent string for key construction.
// Case and surrounding whitespace never change what a worker computes.
func NormalizeIntent(intent string) string {
	return strings.ToLower(strings.TrimSpace(intent))
}

// HashInput produces a hex SHA-256 digest of the canonical JSON encoding of
// the worker input. Canonical means map keys sorted recursively, so two
// semantically identical inputs always hash the same.
func HashInput(input any) (string, error) {
	canonical, err := canonicalJSON(input)
	if err != nil {
		return "", fmt.Errorf("canonicalize input: %w", err)
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// Key builds the full cache key. The stage component keeps results from one
// stage from being replayed in another even when the raw input matches.
func Key(caseID, worker, intent, inputHash string, stage domain.Stage) string {
	return strings.Join([]string{
		caseID,
		worker,
		NormalizeIntent(intent),
		inputHash,
		SchemaVersion,
		string(stage),
	}, "|")
}

// canonicalJSON re-encodes v with all object keys sorted. encoding/json
// already sorts map keys, so a decode/encode round trip through untyped
// values yields a stable byte sequence regardless of struct field order.
func canonicalJSON(v any) ([]byte, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var decoded any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return nil, err
	}
	return json.Marshal(sortValue(decoded))
}

func sortValue(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make(map[string]any, len(vv))
		for _, k := range keys {
			out[k] = sortValue(vv[k])
		}
		return out
	case []any:
		for i := range vv {
			vv[i] = sortValue(vv[i])
		}
		return vv
	default:
		return v
	}
}
