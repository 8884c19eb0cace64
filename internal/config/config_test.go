package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

const environmentsYAML = `
environments:
  production:
    ci_jenkins:
      system_type: jenkins
      sources:
        jenkins_api:
          driver: jenkins
          url: https://jenkins.example
          username: bot
          token: ${CIQ_TEST_TOKEN}
          priority: 2
          timeout: 30s
        es:
          driver: elasticsearch
          url: https://es.example
          index: jenkins_builds
          enabled: false
    ci_zuul:
      system_type: zuul
      sources:
        zuul_defs:
          driver: zuul.d
          repos: [config, {path: /abs/other}]
          tenant: openstack
  staging:
    ci_jenkins:
      system_type: jenkins
      sources:
        jenkins_api: {driver: jenkins, url: https://staging.example, timeout: 5}
`

func TestParse(t *testing.T) {
	t.Setenv("CIQ_TEST_TOKEN", "s3cret")
	envs, err := Parse([]byte(environmentsYAML), "/etc/ciquery")
	if err != nil {
		t.Fatal(err)
	}

	var names []string
	for _, e := range envs {
		names = append(names, e.Name)
	}
	if diff := cmp.Diff([]string{"production", "staging"}, names); diff != "" {
		t.Errorf("environment order (-want +got):\n%s", diff)
	}

	prod := envs[0]
	if len(prod.Systems) != 2 || prod.Systems[0].Name != "ci_jenkins" || prod.Systems[1].Type != "zuul" {
		t.Fatalf("systems = %+v", prod.Systems)
	}

	jenkins := prod.Systems[0].Sources
	if jenkins[0].Name != "jenkins_api" || jenkins[1].Name != "es" {
		t.Errorf("source order = %s, %s", jenkins[0].Name, jenkins[1].Name)
	}
	if jenkins[0].Token != "s3cret" {
		t.Errorf("token not expanded: %q", jenkins[0].Token)
	}
	if time.Duration(jenkins[0].Timeout) != 30*time.Second {
		t.Errorf("timeout = %v", time.Duration(jenkins[0].Timeout))
	}
	if !jenkins[0].IsEnabled() || jenkins[1].IsEnabled() {
		t.Errorf("enabled = %v, %v", jenkins[0].IsEnabled(), jenkins[1].IsEnabled())
	}

	repos := prod.Systems[1].Sources[0].Repos
	want := []Repo{{Path: filepath.Join("/etc/ciquery", "config")}, {Path: "/abs/other"}}
	if diff := cmp.Diff(want, repos); diff != "" {
		t.Errorf("repos mismatch (-want +got):\n%s", diff)
	}

	if got := time.Duration(envs[1].Systems[0].Sources[0].Timeout); got != 5*time.Second {
		t.Errorf("numeric timeout = %v", got)
	}
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name, doc, want string
	}{
		{"no environments", "foo: bar", "missing environments"},
		{"unknown driver", `
environments:
  e:
    s:
      system_type: jenkins
      sources:
        x: {driver: gitlab, url: https://x}`, `unknown driver "gitlab"`},
		{"missing url", `
environments:
  e:
    s:
      system_type: jenkins
      sources:
        x: {driver: jenkins}`, "missing url"},
		{"empty system", `
environments:
  e:
    s:
      system_type: zuul
      sources: {}`, "system has no sources"},
		{"missing system type", `
environments:
  e:
    s:
      sources:
        x: {driver: jenkins, url: https://x}`, "missing system_type"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.doc), ".")
			var cfgErr *Error
			if !errors.As(err, &cfgErr) {
				t.Fatalf("err = %v, want *Error", err)
			}
			if !strings.Contains(err.Error(), tt.want) {
				t.Errorf("err = %q, want it to mention %q", err, tt.want)
			}
		})
	}
}

func TestLoad_ExplicitPath(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "envs.yaml")
	if err := os.WriteFile(path, []byte(environmentsYAML), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("DATA_PATH", dir)
	t.Setenv("CIQUERY_REQUEST_RATE", "2.5")

	cfg, err := Load(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.ConfigPath != path || len(cfg.Environments) != 2 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.RequestRate != 2.5 {
		t.Errorf("RequestRate = %v", cfg.RequestRate)
	}
	if _, ok := cfg.Environment("staging"); !ok {
		t.Error("staging environment missing")
	}

	if _, err := Load(filepath.Join(dir, "missing.yaml")); err == nil {
		t.Error("explicit missing file did not fail")
	}
}
