package main

import (
	"os"

	"gopkg.in/yaml.v3"
)

// RuleConfig is the YAML shape of a single rule.
type RuleConfig struct {
	Interval  int64 `yaml:"interval"`
	Limit     int64 `yaml:"limit"`
	Precision int64 `yaml:"precision"`
}

// ConfigFile is the YAML configuration for the ratelimitctl CLI. This is
// the demo binary's own config, not part of the library's contract: the
// library never parses a config file itself.
type ConfigFile struct {
	RedisAddr        string       `yaml:"redis_addr"`
	Prefix           string       `yaml:"prefix"`
	ClientPrefixMode bool         `yaml:"client_prefix_mode"`
	Rules            []RuleConfig `yaml:"rules"`
	MetricsListen    string       `yaml:"metrics_listen"`
}

func LoadConfig(path string) (*ConfigFile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var c ConfigFile
	if err := yaml.Unmarshal(b, &c); err != nil {
		return nil, err
	}
	return &c, nil
}
