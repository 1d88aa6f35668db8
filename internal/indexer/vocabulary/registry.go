// Package vocabulary interns normalised token text into compact word
// identities. Two tokens that normalise to the same text share one ID; an ID
// is only ever compared for equality.
package vocabulary

import (
	"sync"
)

// ID is the canonical identity of a normalised word.
type ID uint32

// Unknown is returned by Lookup for text that was never registered. It is
// never assigned to a registered word, so it can not match any document token.
const Unknown ID = 0

// Registry assigns IDs to normalised token text. It is safe for concurrent
// use; documents register words while queries look them up.
//
// Words are never forgotten, so an ID stays valid for any image built with
// it. Memory grows with the distinct vocabulary seen over the registry's
// life, not with the documents currently held; re-loading known text adds
// nothing.
type Registry struct {
	mu         sync.RWMutex
	normalizer Normalizer
	ids        map[string]ID
	texts      []string
}

// NewRegistry creates an empty Registry. A nil normalizer means Identity.
func NewRegistry(normalizer Normalizer) *Registry {
	if normalizer == nil {
		normalizer = Identity{}
	}
	return &Registry{
		normalizer: normalizer,
		ids:        make(map[string]ID),
		// index 0 is reserved for Unknown
		texts: []string{""},
	}
}

// Register normalises raw and returns its ID, allocating one on first sight.
func (r *Registry) Register(raw string) ID {
	key := r.normalizer.Normalize(raw)

	r.mu.RLock()
	id, ok := r.ids[key]
	r.mu.RUnlock()
	if ok {
		return id
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	id = ID(len(r.texts))
	r.ids[key] = id
	r.texts = append(r.texts, key)
	return id
}

// RegisterAll registers every token of a line, preserving order.
func (r *Registry) RegisterAll(raw []string) []ID {
	ids := make([]ID, len(raw))
	for i, token := range raw {
		ids[i] = r.Register(token)
	}
	return ids
}

// Lookup returns the ID of an already registered word, or Unknown.
func (r *Registry) Lookup(raw string) ID {
	key := r.normalizer.Normalize(raw)
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id, ok := r.ids[key]; ok {
		return id
	}
	return Unknown
}

// LookupAll looks up every token, preserving order. Unseen tokens map to
// Unknown.
func (r *Registry) LookupAll(raw []string) []ID {
	ids := make([]ID, len(raw))
	for i, token := range raw {
		ids[i] = r.Lookup(token)
	}
	return ids
}

// Text returns the normalised text of id, or "" for Unknown and IDs this
// registry did not allocate.
func (r *Registry) Text(id ID) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if id == Unknown || int(id) >= len(r.texts) {
		return ""
	}
	return r.texts[id]
}

// Texts resolves a sequence of IDs.
func (r *Registry) Texts(ids []ID) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, len(ids))
	for i, id := range ids {
		if id != Unknown && int(id) < len(r.texts) {
			out[i] = r.texts[id]
		}
	}
	return out
}

// Len returns the number of registered words.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.texts) - 1
}

// Normalizer returns the normaliser the registry was built with.
func (r *Registry) Normalizer() Normalizer {
	return r.normalizer
}
