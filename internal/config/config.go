package config

import "github.com/spf13/viper"

// Config holds all runtime configuration for a run.
// Values are populated from .hsversions.yaml, HSV_* env vars, and CLI flags.
type Config struct {
	CacheDir     string `mapstructure:"cache_dir"`
	Output       string `mapstructure:"output"`
	ServerList   string `mapstructure:"server_list"`
	StorePath    string `mapstructure:"store_path"`
	SpecRemote   string `mapstructure:"spec_remote"`
	SpecBranch   string `mapstructure:"spec_branch"`
	Concurrency  int    `mapstructure:"concurrency"`
	ForceUpdates bool   `mapstructure:"force_updates"`
	Verbose      bool   `mapstructure:"verbose"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() Config {
	viper.SetDefault("cache_dir", ".cache")
	viper.SetDefault("output", "data.json")
	viper.SetDefault("server_list", "")
	viper.SetDefault("store_path", "")
	viper.SetDefault("spec_remote", "")
	viper.SetDefault("spec_branch", "main")
	viper.SetDefault("concurrency", 4)
	viper.SetDefault("force_updates", false)
	viper.SetDefault("verbose", false)

	var cfg Config
	_ = viper.Unmarshal(&cfg)
	return cfg
}
