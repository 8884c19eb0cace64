package source

import (
	"context"
	"errors"

	"ciquery/internal/filter"
	"ciquery/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Policy selects how many sources answer a capability.
type Policy int

const (
	// FirstSuccess stops at the first source that answers.
	FirstSuccess Policy = iota
	// MergeAll merges the answers of every capable source.
	MergeAll
)

func (p Policy) String() string {
	if p == MergeAll {
		return "merge-all"
	}
	return "first-success"
}

// Result is the outcome of resolving one capability.
type Result struct {
	Capability Capability
	// Graph is the session graph after the resolution.
	Graph *model.Graph
	// Answered lists the sources whose data is in Graph for this capability.
	Answered []string
	// Failed lists the sources that were tried and could not answer.
	Failed []string
}

// Found reports whether any source answered. A false value is the "no
// result" outcome: every candidate failed.
func (r Result) Found() bool {
	return len(r.Answered) > 0
}

// Session resolves capabilities for one scope. It owns its call store and
// entity graph; neither is safe to share with a concurrent session.
type Session struct {
	ID string

	registry *Registry
	calls    *CallStore
	graph    *model.Graph
	log      zerolog.Logger
}

func NewSession(registry *Registry) *Session {
	id := uuid.NewString()[:8]
	return &Session{
		ID:       id,
		registry: registry,
		calls:    NewCallStore(),
		graph:    model.NewGraph(),
		log: log.With().
			Str("session", id).
			Str("scope", registry.Scope()).
			Logger(),
	}
}

func (s *Session) Scope() string           { return s.registry.Scope() }
func (s *Session) Graph() *model.Graph     { return s.graph }
func (s *Session) Calls() *CallStore       { return s.calls }
func (s *Session) Registry() *Registry     { return s.registry }
func (s *Session) Logger() *zerolog.Logger { return &s.log }

// First resolves c with the first source that answers, in rank order.
func (s *Session) First(ctx context.Context, c Capability, args filter.Args) (Result, error) {
	return s.Resolve(ctx, FirstSuccess, c, args)
}

// All resolves c with every capable source and merges the answers.
func (s *Session) All(ctx context.Context, c Capability, args filter.Args) (Result, error) {
	return s.Resolve(ctx, MergeAll, c, args)
}

// Resolve walks the ranked candidates for c. Configuration errors
// (*NoValidSourcesError, *NoSupportedSourcesError) and non-query errors are
// returned; a source that fails with a *QueryError is recorded and skipped.
// When nobody answers the result is empty, not an error.
func (s *Session) Resolve(ctx context.Context, policy Policy, c Capability, args filter.Args) (Result, error) {
	candidates, err := s.registry.Capable(c)
	if err != nil {
		return Result{}, err
	}

	filters := args.Names()
	ranked := Rank(candidates, c, filters)
	res := Result{Capability: c, Graph: s.graph}

	for _, src := range ranked {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		name := src.Name()
		logger := s.log.With().Str("source", name).Str("capability", string(c)).Logger()

		if s.calls.HasBeenCalled(name, c) {
			ok, _ := s.calls.Status(name, c)
			logger.Debug().Bool("success", ok).Msg("Reusing recorded outcome")
			if !ok {
				res.Failed = append(res.Failed, name)
				continue
			}
			res.Answered = append(res.Answered, name)
			if policy == FirstSuccess {
				break
			}
			continue
		}

		logger.Debug().
			Int("score", Score(src, c, filters)).
			Strs("filters", filters).
			Msg("Querying source")

		fragment, err := s.invoke(ctx, src, c, args)
		if err != nil {
			var qe *QueryError
			if !errors.As(err, &qe) {
				return res, err
			}
			qe.Source, qe.Capability = name, c
			s.calls.Record(name, c, false)
			res.Failed = append(res.Failed, name)
			logger.Debug().Err(err).Msg("Source could not answer, trying next candidate")
			continue
		}

		s.calls.Record(name, c, true)
		s.graph.Merge(fragment)
		res.Answered = append(res.Answered, name)
		if policy == FirstSuccess {
			break
		}
	}

	if !res.Found() {
		s.log.Warn().
			Str("capability", string(c)).
			Strs("failed", res.Failed).
			Msg("No source could answer")
	}
	return res, nil
}

func (s *Session) invoke(ctx context.Context, src Source, c Capability, args filter.Args) (*model.Graph, error) {
	if !src.IsSetup() {
		if err := src.Setup(ctx); err != nil {
			return nil, err
		}
	}
	return src.Query(ctx, c, args)
}

// Close tears down every source this session set up.
func (s *Session) Close(ctx context.Context) error {
	var errs []error
	for _, src := range s.registry.Sources() {
		if !src.IsSetup() {
			continue
		}
		if err := src.Teardown(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
