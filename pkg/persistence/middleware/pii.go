package middleware

import (
	"context"
	"fmt"
	"regexp"

	"github.com/aretw0/wayz/pkg/domain"
	"github.com/aretw0/wayz/pkg/ports"
)

// Mask replaces values of sensitive keys.
const Mask = "***"

type piiMiddleware struct {
	ports.CheckpointStore
	patterns []*regexp.Regexp
}

// NewPIIMiddleware creates a middleware that masks values of keys matching the
// patterns before they reach storage. It looks at state metadata, message
// metadata and map-shaped message content, at any depth.
func NewPIIMiddleware(patternStrings []string) (Middleware, error) {
	patterns := make([]*regexp.Regexp, len(patternStrings))
	for i, p := range patternStrings {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, fmt.Errorf("invalid pii pattern %q: %w", p, err)
		}
		patterns[i] = re
	}
	return func(next ports.CheckpointStore) ports.CheckpointStore {
		return &piiMiddleware{CheckpointStore: next, patterns: patterns}
	}, nil
}

func (m *piiMiddleware) Save(ctx context.Context, id string, state *domain.State, metadata map[string]any) error {
	// Clone deep-copies; the caller keeps running with the unmasked state.
	masked := state.Clone()
	maskMap(masked.Metadata, m.patterns)

	for _, msg := range masked.Messages {
		maskMap(msg.Metadata, m.patterns)
		if content, ok := msg.Content.(map[string]any); ok {
			maskMap(content, m.patterns)
		}
	}

	return m.CheckpointStore.Save(ctx, id, masked, metadata)
}

func maskMap(m map[string]any, patterns []*regexp.Regexp) {
	for k, v := range m {
		for _, p := range patterns {
			if p.MatchString(k) {
				m[k] = Mask
				break
			}
		}
		if subMap, ok := v.(map[string]any); ok && m[k] != Mask {
			maskMap(subMap, patterns)
		}
	}
}
