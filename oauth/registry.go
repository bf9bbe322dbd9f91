package oauth

import (
	"strings"
)

// Registry looks verifiers up by provider name.
type Registry struct {
	verifiers map[string]Verifier
}

// NewRegistry indexes verifiers by Provider. Nil entries are skipped and a
// later verifier replaces an earlier one for the same provider.
func NewRegistry(verifiers ...Verifier) *Registry {
	r := &Registry{verifiers: make(map[string]Verifier, len(verifiers))}
	for _, v := range verifiers {
		if v != nil {
			r.verifiers[v.Provider()] = v
		}
	}
	return r
}

// Lookup returns the verifier for provider, matched case-insensitively.
func (r *Registry) Lookup(provider string) (Verifier, bool) {
	if r == nil {
		return nil, false
	}
	v, ok := r.verifiers[strings.ToLower(strings.TrimSpace(provider))]
	return v, ok
}
