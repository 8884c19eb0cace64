package sources

import (
	"ciquery/internal/config"
	"ciquery/internal/source"
)

// Entry describes one configured source and what it can answer.
type Entry struct {
	Environment  string              `json:"environment"`
	System       string              `json:"system"`
	SystemType   string              `json:"system_type"`
	Name         string              `json:"name"`
	Driver       string              `json:"driver"`
	Enabled      bool                `json:"enabled"`
	Priority     int                 `json:"priority"`
	Capabilities source.Capabilities `json:"capabilities"`
}

// Catalog lists every configured source in configuration order. Sources are
// built but never set up, so no backend is contacted.
func Catalog(cfg *config.AppConfig) ([]Entry, error) {
	d := DefaultsFrom(cfg)
	var entries []Entry
	for _, env := range cfg.Environments {
		for _, sys := range env.Systems {
			reg, err := Registry(env.Name, sys, d)
			if err != nil {
				return nil, err
			}
			for _, s := range reg.Sources() {
				entries = append(entries, Entry{
					Environment:  env.Name,
					System:       sys.Name,
					SystemType:   sys.Type,
					Name:         s.Name(),
					Driver:       s.Driver(),
					Enabled:      s.Enabled(),
					Priority:     s.Priority(),
					Capabilities: s.Capabilities(),
				})
			}
		}
	}
	return entries, nil
}
