// Package source selects, ranks and invokes CI data sources and merges what
// they return into one entity graph per session.
package source

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"ciquery/internal/filter"
	"ciquery/internal/model"
)

// Source is a backend able to answer some capabilities.
type Source interface {
	Name() string
	Driver() string
	Enabled() bool
	Priority() int
	Capabilities() Capabilities

	// Setup and Teardown are idempotent.
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
	IsSetup() bool
	IsDown() bool

	// Query answers a declared capability. A *QueryError means the source
	// could not answer and another source may be tried; any other error is a
	// defect and is not recovered.
	Query(ctx context.Context, c Capability, args filter.Args) (*model.Graph, error)
}

// Descriptor holds the static identity of a source.
type Descriptor struct {
	Name         string
	Driver       string
	Enabled      bool
	Priority     int
	Capabilities Capabilities
}

// Base implements the descriptor accessors and the setup/teardown gates.
// Concrete sources embed it and set OnSetup/OnTeardown.
type Base struct {
	Descriptor

	OnSetup    func(ctx context.Context) error
	OnTeardown func(ctx context.Context) error

	isSetup bool
	isDown  bool
	// setupErr is the outcome of a failed setup, returned without retrying.
	setupErr error
}

func (b *Base) Name() string               { return b.Descriptor.Name }
func (b *Base) Driver() string             { return b.Descriptor.Driver }
func (b *Base) Enabled() bool              { return b.Descriptor.Enabled }
func (b *Base) Priority() int              { return b.Descriptor.Priority }
func (b *Base) Capabilities() Capabilities { return b.Descriptor.Capabilities }
func (b *Base) IsSetup() bool              { return b.isSetup }
func (b *Base) IsDown() bool               { return b.isDown }

// Setup runs OnSetup at most once per instance. A failed setup is not
// retried: later calls return the same error.
func (b *Base) Setup(ctx context.Context) error {
	if b.isSetup {
		return nil
	}
	if b.setupErr != nil {
		return b.setupErr
	}
	if b.OnSetup != nil {
		if err := b.OnSetup(ctx); err != nil {
			b.setupErr = err
			return err
		}
	}
	b.isSetup = true
	b.isDown = false
	return nil
}

// Teardown runs OnTeardown once for a set-up source.
func (b *Base) Teardown(ctx context.Context) error {
	if b.isDown || !b.isSetup {
		return nil
	}
	if b.OnTeardown != nil {
		if err := b.OnTeardown(ctx); err != nil {
			return err
		}
	}
	b.isDown = true
	b.isSetup = false
	return nil
}

// Unsupported is the error a Query implementation returns for a capability
// it does not handle.
func (b *Base) Unsupported(c Capability) error {
	return fmt.Errorf("%w: source %s (%s) has no handler for %s", ErrUnsupportedCapability, b.Name(), b.Driver(), c)
}

// ErrUnsupportedCapability marks a capability that is declared but has no
// handler. It is never recovered by the orchestrator.
var ErrUnsupportedCapability = errors.New("capability not implemented")

// ErrCallNotRecorded is returned by CallStore.Status for an unknown key.
var ErrCallNotRecorded = errors.New("call not recorded")

// QueryError reports that a source could not answer a query: bad response,
// missing artifact, unreachable host.
type QueryError struct {
	Source     string
	Capability Capability
	Err        error
}

func (e *QueryError) Error() string {
	var b strings.Builder
	b.WriteString("source query failed")
	if e.Source != "" {
		fmt.Fprintf(&b, " [%s", e.Source)
		if e.Capability != "" {
			fmt.Fprintf(&b, " %s", e.Capability)
		}
		b.WriteString("]")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Fail wraps err as a recoverable query failure.
func Fail(err error) error {
	if err == nil {
		return nil
	}
	var qe *QueryError
	if errors.As(err, &qe) {
		return err
	}
	return &QueryError{Err: err}
}

// Failf formats a recoverable query failure.
func Failf(format string, args ...any) error {
	return &QueryError{Err: fmt.Errorf(format, args...)}
}

// NoValidSourcesError means a scope has no usable source configured at all.
type NoValidSourcesError struct {
	Scope string
	// Sources lists configured but unusable (disabled) sources.
	Sources []string
}

func (e *NoValidSourcesError) Error() string {
	msg := fmt.Sprintf("no valid sources configured for %s; add an enabled source under its 'sources' key", e.Scope)
	if len(e.Sources) > 0 {
		msg += fmt.Sprintf(" (configured but disabled: %s)", strings.Join(e.Sources, ", "))
	}
	return msg
}

// NoSupportedSourcesError means sources exist but none declares the capability.
type NoSupportedSourcesError struct {
	Scope      string
	Capability Capability
}

func (e *NoSupportedSourcesError) Error() string {
	return fmt.Sprintf("no source of %s supports %s", e.Scope, e.Capability)
}
