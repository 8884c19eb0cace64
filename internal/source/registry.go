package source

import (
	"errors"
	"slices"
	"sort"
)

// Registry is the set of sources configured for one scope (a system).
type Registry struct {
	scope   string
	sources []Source
}

func NewRegistry(scope string, sources ...Source) *Registry {
	return &Registry{scope: scope, sources: slices.Clone(sources)}
}

func (r *Registry) Scope() string {
	return r.scope
}

// Add registers a source. Registration order breaks ranking ties.
func (r *Registry) Add(s Source) {
	r.sources = append(r.sources, s)
}

// Sources returns every registered source, enabled or not.
func (r *Registry) Sources() []Source {
	return slices.Clone(r.sources)
}

// Capable returns the enabled sources declaring c, in registration order.
func (r *Registry) Capable(c Capability) ([]Source, error) {
	if c == "" {
		return nil, errors.New("capability name must not be empty")
	}

	var enabled, capable []Source
	var disabled []string
	for _, s := range r.sources {
		if !s.Enabled() {
			disabled = append(disabled, s.Name())
			continue
		}
		enabled = append(enabled, s)
		if s.Capabilities().Supports(c) {
			capable = append(capable, s)
		}
	}

	if len(enabled) == 0 {
		return nil, &NoValidSourcesError{Scope: r.scope, Sources: disabled}
	}
	if len(capable) == 0 {
		return nil, &NoSupportedSourcesError{Scope: r.scope, Capability: c}
	}
	return capable, nil
}

// Score is the preference weight of s for c given the supplied filters.
// Sources that do not declare c score zero.
func Score(s Source, c Capability, filters []string) int {
	cost, ok := s.Capabilities()[c]
	if !ok {
		return 0
	}
	return cost.Score(filters)
}

// Rank orders candidates by score, then static priority, both descending.
// Equal sources keep their input order. Rank does not modify candidates.
func Rank(candidates []Source, c Capability, filters []string) []Source {
	type scored struct {
		src   Source
		score int
	}
	ranked := make([]scored, len(candidates))
	for i, s := range candidates {
		ranked[i] = scored{src: s, score: Score(s, c, filters)}
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		if ranked[i].score != ranked[j].score {
			return ranked[i].score > ranked[j].score
		}
		return ranked[i].src.Priority() > ranked[j].src.Priority()
	})

	out := make([]Source, len(ranked))
	for i, r := range ranked {
		out[i] = r.src
	}
	return out
}
