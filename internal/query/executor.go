// Package query resolves a filtered query across the configured environments
// and assembles one report per system.
package query

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"ciquery/internal/config"
	"ciquery/internal/filter"
	"ciquery/internal/model"
	"ciquery/internal/source"
	"ciquery/internal/sources"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// Options selects what to query and how.
type Options struct {
	Args filter.Args
	// Environments and Systems restrict the run by name; empty means all.
	Environments []string
	Systems      []string
	// MergeSources merges the answers of every source instead of stopping at
	// the first one.
	MergeSources bool
	// Parallel bounds how many systems are resolved at once; zero means
	// DefaultParallel.
	Parallel int
}

// Report is the outcome of a query, in configuration order.
type Report struct {
	Environments []*EnvironmentReport `json:"environments"`
}

type EnvironmentReport struct {
	Name    string          `json:"name"`
	Systems []*SystemReport `json:"systems"`
}

// SystemReport holds the graph assembled for one system.
type SystemReport struct {
	Name     string              `json:"name"`
	Type     string              `json:"type"`
	Graph    *model.Graph        `json:"graph"`
	Results  []CapabilityOutcome `json:"results"`
	Duration time.Duration       `json:"duration_ns"`
}

// CapabilityOutcome records who answered one planned capability.
type CapabilityOutcome struct {
	Capability source.Capability `json:"capability"`
	Answered   []string          `json:"answered,omitempty"`
	Failed     []string          `json:"failed,omitempty"`
	// Unsupported is set when no enabled source declares the capability.
	Unsupported bool `json:"unsupported,omitempty"`
}

// Found reports whether any planned capability was answered.
func (s *SystemReport) Found() bool {
	for _, r := range s.Results {
		if len(r.Answered) > 0 {
			return true
		}
	}
	return false
}

// DefaultParallel is the number of systems resolved at once by default.
const DefaultParallel = 4

// ErrNoSystems is returned when the selection matches no configured system.
var ErrNoSystems = errors.New("no configured system matches the selection")

type target struct {
	env    string
	system config.System
	report *SystemReport
}

// Executor runs queries against one configuration.
type Executor struct {
	cfg      *config.AppConfig
	defaults sources.Defaults
	// newRegistry is swapped in tests.
	newRegistry func(env string, sys config.System) (*source.Registry, error)
}

func NewExecutor(cfg *config.AppConfig) *Executor {
	e := &Executor{cfg: cfg, defaults: sources.DefaultsFrom(cfg)}
	e.newRegistry = func(env string, sys config.System) (*source.Registry, error) {
		return sources.Registry(env, sys, e.defaults)
	}
	return e
}

// Run resolves the query for every selected system. Systems run
// concurrently, each in its own session with fresh source instances.
// Configuration errors, invalid filter expressions and source defects abort
// the run; a capability no source supports is only marked on its system.
func (e *Executor) Run(ctx context.Context, opts Options) (*Report, error) {
	report, targets := e.selectTargets(opts)
	if len(targets) == 0 {
		return nil, ErrNoSystems
	}

	limit := opts.Parallel
	if limit <= 0 {
		limit = DefaultParallel
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for _, t := range targets {
		t := t
		g.Go(func() error {
			return e.runSystem(gctx, t, opts)
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return report, nil
}

func (e *Executor) selectTargets(opts Options) (*Report, []target) {
	report := &Report{}
	var targets []target
	for _, env := range e.cfg.Environments {
		if len(opts.Environments) > 0 && !slices.Contains(opts.Environments, env.Name) {
			continue
		}
		er := &EnvironmentReport{Name: env.Name}
		for _, sys := range env.Systems {
			if len(opts.Systems) > 0 && !slices.Contains(opts.Systems, sys.Name) {
				continue
			}
			sr := &SystemReport{Name: sys.Name, Type: sys.Type}
			er.Systems = append(er.Systems, sr)
			targets = append(targets, target{env: env.Name, system: sys, report: sr})
		}
		if len(er.Systems) > 0 {
			report.Environments = append(report.Environments, er)
		}
	}
	return report, targets
}

func (e *Executor) runSystem(ctx context.Context, t target, opts Options) error {
	start := time.Now()
	reg, err := e.newRegistry(t.env, t.system)
	if err != nil {
		return err
	}
	session := source.NewSession(reg)
	defer func() {
		if cerr := session.Close(context.WithoutCancel(ctx)); cerr != nil {
			session.Logger().Warn().Err(cerr).Msg("Failed to tear down sources")
		}
	}()

	policy := source.FirstSuccess
	if opts.MergeSources {
		policy = source.MergeAll
	}

	plan := Plan(t.system.Type, opts.Args)
	session.Logger().Debug().
		Str("policy", policy.String()).
		Interface("plan", plan).
		Msg("Resolving system")

	for _, c := range plan {
		res, err := session.Resolve(ctx, policy, c, opts.Args)
		outcome := CapabilityOutcome{Capability: c, Answered: res.Answered, Failed: res.Failed}
		if err != nil {
			var unsupported *source.NoSupportedSourcesError
			if !errors.As(err, &unsupported) {
				return fmt.Errorf("%s.%s: %w", t.env, t.system.Name, err)
			}
			session.Logger().Info().Str("capability", string(c)).Msg("No enabled source supports this query")
			outcome.Unsupported = true
		}
		t.report.Results = append(t.report.Results, outcome)
	}

	t.report.Graph = session.Graph()
	t.report.Duration = time.Since(start)
	log.Debug().
		Str("system", t.system.Name).
		Dur("took", t.report.Duration).
		Int("jobs", t.report.Graph.JobCount()).
		Msg("System resolved")
	return nil
}
