// Package sources builds concrete sources from configuration.
package sources

import (
	"fmt"
	"time"

	"ciquery/internal/config"
	"ciquery/internal/httpapi"
	"ciquery/internal/source"
	"ciquery/internal/sources/elasticsearch"
	"ciquery/internal/sources/jenkins"
	"ciquery/internal/sources/zuul"
	"ciquery/internal/sources/zuuld"
)

// Defaults are the client settings shared by every HTTP source.
type Defaults struct {
	RequestsPerSecond float64
	CacheTTL          time.Duration
	Timeout           time.Duration
}

// DefaultsFrom takes the shared client settings from the app configuration.
func DefaultsFrom(cfg *config.AppConfig) Defaults {
	return Defaults{RequestsPerSecond: cfg.RequestRate, CacheTTL: cfg.CacheTTL}
}

func httpConfig(sc config.SourceConfig, d Defaults) httpapi.Config {
	timeout := time.Duration(sc.Timeout)
	if timeout == 0 {
		timeout = d.Timeout
	}
	return httpapi.Config{
		BaseURL:           sc.URL,
		Username:          sc.Username,
		Token:             sc.Token,
		Timeout:           timeout,
		RequestsPerSecond: d.RequestsPerSecond,
		CacheTTL:          d.CacheTTL,
	}
}

// New builds the source a configuration entry describes.
func New(sc config.SourceConfig, d Defaults) (source.Source, error) {
	enabled := sc.IsEnabled()
	switch sc.Driver {
	case jenkins.Driver:
		return jenkins.New(jenkins.Config{
			Name:     sc.Name,
			Enabled:  enabled,
			Priority: sc.Priority,
			Artifact: sc.Artifact,
			HTTP:     httpConfig(sc, d),
		}), nil
	case zuul.Driver:
		return zuul.New(zuul.Config{
			Name:       sc.Name,
			Enabled:    enabled,
			Priority:   sc.Priority,
			BuildLimit: sc.BuildLimit,
			HTTP:       httpConfig(sc, d),
		}), nil
	case elasticsearch.Driver:
		return elasticsearch.New(elasticsearch.Config{
			Name:     sc.Name,
			Enabled:  enabled,
			Priority: sc.Priority,
			Index:    sc.Index,
			Size:     sc.Size,
			HTTP:     httpConfig(sc, d),
		}), nil
	case zuuld.Driver:
		repos := make([]string, 0, len(sc.Repos))
		for _, r := range sc.Repos {
			repos = append(repos, r.Path)
		}
		return zuuld.New(zuuld.Config{
			Name:     sc.Name,
			Enabled:  enabled,
			Priority: sc.Priority,
			Repos:    repos,
			Tenant:   sc.Tenant,
		}), nil
	}
	return nil, &config.Error{Path: sc.Name, Reason: fmt.Sprintf("unknown driver %q", sc.Driver)}
}

// Registry builds a fresh registry for one system, scoped "<env>.<system>".
// Sources are never shared between registries.
func Registry(env string, sys config.System, d Defaults) (*source.Registry, error) {
	reg := source.NewRegistry(env + "." + sys.Name)
	for _, sc := range sys.Sources {
		s, err := New(sc, d)
		if err != nil {
			return nil, err
		}
		reg.Add(s)
	}
	return reg, nil
}
