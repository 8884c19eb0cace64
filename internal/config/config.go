package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

// Drivers lists the source drivers a configuration may name. URL marks the
// drivers that talk to a remote service.
var Drivers = map[string]struct{ URL bool }{
	"jenkins":       {URL: true},
	"zuul":          {URL: true},
	"elasticsearch": {URL: true},
	"zuul.d":        {URL: false},
}

// SystemTypes lists the supported CI system kinds.
var SystemTypes = []string{"jenkins", "zuul"}

// AppConfig holds the complete application configuration.
type AppConfig struct {
	// ConfigPath is the YAML file the environments were read from, if any.
	ConfigPath   string
	DataPath     string
	LogDir       string
	CacheDir     string
	RequestRate  float64
	CacheTTL     time.Duration
	Environments []Environment
}

// Environment groups the systems of one deployment of the CI, in file order.
type Environment struct {
	Name    string
	Systems []System
}

// System is one CI system and the sources that can answer for it.
type System struct {
	Name    string
	Type    string
	Sources []SourceConfig
}

// SourceConfig is the raw configuration of one source. Driver-specific keys
// are ignored by drivers that do not use them.
type SourceConfig struct {
	Name     string   `yaml:"-"`
	Driver   string   `yaml:"driver"`
	Enabled  *bool    `yaml:"enabled"`
	Priority int      `yaml:"priority"`
	URL      string   `yaml:"url"`
	Username string   `yaml:"username"`
	Token    string   `yaml:"token"`
	Timeout  Duration `yaml:"timeout"`

	// elasticsearch
	Index string `yaml:"index"`
	Size  int    `yaml:"size"`
	// jenkins
	Artifact string `yaml:"artifact"`
	// zuul
	BuildLimit int `yaml:"build_limit"`
	// zuul.d
	Repos  []Repo `yaml:"repos"`
	Tenant string `yaml:"tenant"`
}

// IsEnabled reports the enabled flag, which defaults to true.
func (s SourceConfig) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

// Repo is a local repository checkout. It may be written as a plain path.
type Repo struct {
	Path string `yaml:"path"`
}

func (r *Repo) UnmarshalYAML(n *yaml.Node) error {
	if n.Kind == yaml.ScalarNode {
		r.Path = n.Value
		return nil
	}
	type plain Repo
	return n.Decode((*plain)(r))
}

// Duration accepts Go duration strings ("30s") or a number of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalYAML(n *yaml.Node) error {
	if secs, err := strconv.ParseFloat(n.Value, 64); err == nil {
		*d = Duration(secs * float64(time.Second))
		return nil
	}
	v, err := time.ParseDuration(n.Value)
	if err != nil {
		return fmt.Errorf("line %d: invalid duration %q", n.Line, n.Value)
	}
	*d = Duration(v)
	return nil
}

// Error is a configuration problem. Queries are never attempted against an
// invalid configuration.
type Error struct {
	Path   string
	Reason string
}

func (e *Error) Error() string {
	if e.Path == "" {
		return "configuration error: " + e.Reason
	}
	return fmt.Sprintf("configuration error at %s: %s", e.Path, e.Reason)
}

// Load loads the configuration from .env files, environment variables and
// the YAML environments file. path overrides CIQUERY_CONFIG.
func Load(path string) (*AppConfig, error) {
	// 1. Try to load from the executable's directory
	exePath, err := os.Executable()
	exeDir := ""
	if err == nil {
		exeDir = filepath.Dir(exePath)
		envPath := filepath.Join(exeDir, ".env")
		if err := godotenv.Load(envPath); err == nil {
			log.Debug().Str("path", envPath).Msg("Loaded configuration from binary directory")
		}
	}

	// 2. Fallback to current working directory
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found in working directory, relying on environment variables or binary-relative .env")
	}

	// 3. Resolve Data Paths
	dataPath := os.Getenv("DATA_PATH")
	if dataPath == "" {
		if exeDir != "" {
			dataPath = exeDir
		} else {
			dataPath = "."
		}
	}

	logDir := getEnv("LOGS_FOLDER", filepath.Join(dataPath, "logs"))
	cacheDir := filepath.Join(dataPath, "cache")

	if err := os.MkdirAll(cacheDir, 0755); err != nil {
		log.Warn().Err(err).Str("path", cacheDir).Msg("Failed to create cache directory")
	}

	rate, _ := strconv.ParseFloat(getEnv("CIQUERY_REQUEST_RATE", "5"), 64)
	ttlSecs, _ := strconv.Atoi(getEnv("CIQUERY_CACHE_TTL_SECONDS", "300"))

	cfg := &AppConfig{
		DataPath:    dataPath,
		LogDir:      logDir,
		CacheDir:    cacheDir,
		RequestRate: rate,
		CacheTTL:    time.Duration(ttlSecs) * time.Second,
	}

	explicit := path != ""
	if path == "" {
		path = os.Getenv("CIQUERY_CONFIG")
		explicit = path != ""
	}
	if path == "" {
		path = findConfig(dataPath)
	}
	if path == "" {
		log.Debug().Msg("No environments file found")
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, &Error{Path: path, Reason: err.Error()}
	}
	envs, err := Parse(data, filepath.Dir(path))
	if err != nil {
		return nil, err
	}
	cfg.ConfigPath = path
	cfg.Environments = envs
	log.Debug().Str("path", path).Int("environments", len(envs)).Msg("Loaded environments")
	return cfg, nil
}

// findConfig returns the first existing default configuration file.
func findConfig(dataPath string) string {
	candidates := []string{".ciquery.yaml", filepath.Join(dataPath, "ciquery.yaml")}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates, filepath.Join(home, ".config", "ciquery", "config.yaml"))
	}
	for _, c := range candidates {
		if _, err := os.Stat(c); err == nil {
			return c
		}
	}
	return ""
}

var envRef = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)\}`)

// expand replaces ${VAR} references with environment values.
func expand(data []byte) []byte {
	return envRef.ReplaceAllFunc(data, func(m []byte) []byte {
		return []byte(os.Getenv(string(envRef.FindSubmatch(m)[1])))
	})
}

// Parse reads an environments document. Mapping order is kept: it is the
// registration order that breaks ranking ties. Relative repository paths are
// resolved against baseDir.
func Parse(data []byte, baseDir string) ([]Environment, error) {
	var doc struct {
		Environments yaml.Node `yaml:"environments"`
	}
	if err := yaml.Unmarshal(expand(data), &doc); err != nil {
		return nil, &Error{Reason: err.Error()}
	}
	if doc.Environments.Kind == 0 {
		return nil, &Error{Reason: "missing environments"}
	}

	var envs []Environment
	err := eachPair(&doc.Environments, "environments", func(envName string, envNode *yaml.Node) error {
		env := Environment{Name: envName}
		err := eachPair(envNode, envName, func(sysName string, sysNode *yaml.Node) error {
			sys, err := parseSystem(envName+"."+sysName, sysName, sysNode, baseDir)
			if err != nil {
				return err
			}
			env.Systems = append(env.Systems, sys)
			return nil
		})
		if err != nil {
			return err
		}
		envs = append(envs, env)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return envs, nil
}

func parseSystem(path, name string, n *yaml.Node, baseDir string) (System, error) {
	var raw struct {
		SystemType string    `yaml:"system_type"`
		Sources    yaml.Node `yaml:"sources"`
	}
	if err := n.Decode(&raw); err != nil {
		return System{}, &Error{Path: path, Reason: err.Error()}
	}
	if raw.SystemType == "" {
		return System{}, &Error{Path: path, Reason: "missing system_type"}
	}
	if !slices.Contains(SystemTypes, raw.SystemType) {
		return System{}, &Error{Path: path, Reason: fmt.Sprintf("unknown system_type %q", raw.SystemType)}
	}
	sys := System{Name: name, Type: raw.SystemType}
	if raw.Sources.Kind == 0 {
		return System{}, &Error{Path: path, Reason: "system has no sources"}
	}
	err := eachPair(&raw.Sources, path+".sources", func(srcName string, srcNode *yaml.Node) error {
		srcPath := path + ".sources." + srcName
		var sc SourceConfig
		if err := srcNode.Decode(&sc); err != nil {
			return &Error{Path: srcPath, Reason: err.Error()}
		}
		sc.Name = srcName
		for i, r := range sc.Repos {
			if r.Path != "" && !filepath.IsAbs(r.Path) {
				sc.Repos[i].Path = filepath.Join(baseDir, r.Path)
			}
		}
		if err := validateSource(srcPath, sc); err != nil {
			return err
		}
		sys.Sources = append(sys.Sources, sc)
		return nil
	})
	if err != nil {
		return System{}, err
	}
	if len(sys.Sources) == 0 {
		return System{}, &Error{Path: path, Reason: "system has no sources"}
	}
	return sys, nil
}

func validateSource(path string, sc SourceConfig) error {
	d, ok := Drivers[sc.Driver]
	if !ok {
		return &Error{Path: path, Reason: fmt.Sprintf("unknown driver %q", sc.Driver)}
	}
	if d.URL && sc.URL == "" {
		return &Error{Path: path, Reason: "missing url"}
	}
	if sc.Driver == "zuul.d" && len(sc.Repos) == 0 {
		return &Error{Path: path, Reason: "missing repos"}
	}
	return nil
}

// eachPair walks a mapping node in document order.
func eachPair(n *yaml.Node, path string, fn func(key string, value *yaml.Node) error) error {
	if n.Kind != yaml.MappingNode {
		return &Error{Path: path, Reason: fmt.Sprintf("line %d: expected a mapping", n.Line)}
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		if err := fn(n.Content[i].Value, n.Content[i+1]); err != nil {
			return err
		}
	}
	return nil
}

// Environment returns the named environment.
func (c *AppConfig) Environment(name string) (Environment, bool) {
	for _, e := range c.Environments {
		if e.Name == name {
			return e, true
		}
	}
	return Environment{}, false
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}
