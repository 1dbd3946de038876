package config

import (
	"os"
	"testing"

	"github.com/spf13/viper"
)

// resetViper clears all viper state between tests to avoid cross-contamination.
func resetViper() {
	viper.Reset()
}

func TestLoad_Defaults(t *testing.T) {
	resetViper()

	cfg := Load()

	tests := []struct {
		name string
		got  any
		want any
	}{
		{"CacheDir", cfg.CacheDir, ".cache"},
		{"Output", cfg.Output, "data.json"},
		{"ServerList", cfg.ServerList, ""},
		{"StorePath", cfg.StorePath, ""},
		{"SpecRemote", cfg.SpecRemote, ""},
		{"SpecBranch", cfg.SpecBranch, "main"},
		{"Concurrency", cfg.Concurrency, 4},
		{"ForceUpdates", cfg.ForceUpdates, false},
		{"Verbose", cfg.Verbose, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("%s = %v, want %v", tt.name, tt.got, tt.want)
			}
		})
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	resetViper()

	tests := []struct {
		name   string
		envKey string
		envVal string
		field  func(Config) any
		want   any
	}{
		{
			name:   "cache_dir",
			envKey: "HSV_CACHE_DIR",
			envVal: "/var/cache/hsversions",
			field:  func(c Config) any { return c.CacheDir },
			want:   "/var/cache/hsversions",
		},
		{
			name:   "output",
			envKey: "HSV_OUTPUT",
			envVal: "/tmp/out.json",
			field:  func(c Config) any { return c.Output },
			want:   "/tmp/out.json",
		},
		{
			name:   "server_list",
			envKey: "HSV_SERVER_LIST",
			envVal: "servers.toml",
			field:  func(c Config) any { return c.ServerList },
			want:   "servers.toml",
		},
		{
			name:   "spec_branch",
			envKey: "HSV_SPEC_BRANCH",
			envVal: "old-master",
			field:  func(c Config) any { return c.SpecBranch },
			want:   "old-master",
		},
		{
			name:   "concurrency",
			envKey: "HSV_CONCURRENCY",
			envVal: "8",
			field:  func(c Config) any { return c.Concurrency },
			want:   8,
		},
		{
			name:   "force_updates",
			envKey: "HSV_FORCE_UPDATES",
			envVal: "true",
			field:  func(c Config) any { return c.ForceUpdates },
			want:   true,
		},
		{
			name:   "verbose",
			envKey: "HSV_VERBOSE",
			envVal: "true",
			field:  func(c Config) any { return c.Verbose },
			want:   true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resetViper()
			// Set env prefix so HSV_* env vars map to config keys.
			viper.SetEnvPrefix("HSV")
			viper.AutomaticEnv()

			os.Setenv(tt.envKey, tt.envVal)
			defer os.Unsetenv(tt.envKey)

			cfg := Load()
			got := tt.field(cfg)
			if got != tt.want {
				t.Errorf("%s: got %v (%T), want %v (%T)", tt.name, got, got, tt.want, tt.want)
			}
		})
	}
}

func TestLoad_DefaultsAreNotZero(t *testing.T) {
	resetViper()

	cfg := Load()

	if cfg.CacheDir == "" {
		t.Error("CacheDir should not be empty")
	}
	if cfg.Output == "" {
		t.Error("Output should not be empty")
	}
	if cfg.SpecBranch == "" {
		t.Error("SpecBranch should not be empty")
	}
	if cfg.Concurrency == 0 {
		t.Error("Concurrency should not be zero")
	}
}
