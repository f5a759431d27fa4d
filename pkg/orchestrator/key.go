package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"

	gojson "github.com/goccy/go-json"

	"github.com/aretw0/osdl/pkg/domain"
)

// CacheKey returns the stable identity of a resolved source descriptor.
// Map keys are serialized in sorted order, so equal descriptors hash equally.
func CacheKey(prefix string, src domain.SourceDescriptor) (string, error) {
	payload := struct {
		Type      string         `json:"t"`
		Query     string         `json:"q,omitempty"`
		Queries   []string       `json:"qs,omitempty"`
		Variables map[string]any `json:"v,omitempty"`
	}{src.Type, src.Query, src.Queries, src.Variables}

	b, err := gojson.Marshal(payload)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(b)
	return prefix + src.Type + ":" + hex.EncodeToString(sum[:]), nil
}
