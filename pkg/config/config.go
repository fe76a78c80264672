// Package config loads cglens defaults from an optional YAML file and the environment.
package config

import (
	"io"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"

	"github.com/srodi/cglens/pkg/types"
)

const (
	EnvConfig  = "CGLENS_CONFIG"
	EnvPidstat = "CGLENS_PIDSTAT"
)

// Config holds defaults for every subcommand. Command line flags take precedence.
type Config struct {
	// Version is "v1" or "v2"; empty picks the hierarchy each report reads from.
	Version      string  `yaml:"version"`
	Mount        string  `yaml:"mount"`
	Pidstat      string  `yaml:"pidstat"`
	Depth        int     `yaml:"depth"`
	Limit        int     `yaml:"limit"`
	Metric       string  `yaml:"metric"`
	Threshold    float64 `yaml:"threshold"`
	Field        string  `yaml:"field"`
	ASCII        bool    `yaml:"ascii"`
	Textfile     string  `yaml:"textfile"`
	HideKernel   bool    `yaml:"hide_kernel"`
	CgroupFilter string  `yaml:"cgroup_filter"`
}

// Defaults is the configuration used when no file is given.
func Defaults() Config {
	return Config{
		Pidstat:   getenv(EnvPidstat, "pidstat"),
		Depth:     -1,
		Limit:     types.DefaultLimit,
		Metric:    "%CPU",
		Threshold: 1.0,
		Field:     "some-avg10",
	}
}

// Path returns flagValue, falling back to $CGLENS_CONFIG.
func Path(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	return os.Getenv(EnvConfig)
}

// Load overlays the YAML file at path onto Defaults. An empty path returns Defaults.
func Load(fs afero.Fs, path string) (Config, error) {
	cfg := Defaults()
	if path == "" {
		return cfg, nil
	}

	f, err := fs.Open(path)
	if err != nil {
		return cfg, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && err != io.EOF {
		return cfg, errors.Wrapf(err, "parsing config %s", path)
	}
	return cfg, nil
}

func getenv(k, d string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return d
}
