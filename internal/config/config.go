package config

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/spf13/viper"
)

// Config is the full agent configuration, loaded from YAML with
// NBUP_-prefixed environment overrides.
type Config struct {
	// Primary target.
	PackageID   string `mapstructure:"package_id"`
	ServiceName string `mapstructure:"service_name"`
	DelayDays   int    `mapstructure:"delay_days"`

	// Fleet desynchronization: maximum random sleep before the run starts.
	StartJitterSeconds int `mapstructure:"start_jitter_seconds"`

	StateDir string `mapstructure:"state_dir"`

	Secondary  SecondaryConfig  `mapstructure:"secondary"`
	SelfUpdate SelfUpdateConfig `mapstructure:"self_update"`
	Logging    LoggingConfig    `mapstructure:"logging"`
}

// SecondaryConfig describes the companion component installed after a
// successful primary upgrade.
type SecondaryConfig struct {
	Enabled       bool     `mapstructure:"enabled"`
	Name          string   `mapstructure:"name"`
	InstallerURL  string   `mapstructure:"installer_url"`
	InstallerArgs []string `mapstructure:"installer_args"`
	UIProcessName string   `mapstructure:"ui_process_name"`
}

// SelfUpdateConfig describes how the agent updates its own artifact.
type SelfUpdateConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ReleaseURL  string `mapstructure:"release_url"`
	ArtifactURL string `mapstructure:"artifact_url"` // %s is replaced by the release tag
	SourceDir   string `mapstructure:"source_dir"`   // git checkout, if the agent runs from source
	BinaryPath  string `mapstructure:"binary_path"`  // defaults to the running executable
}

// LoggingConfig controls log output and retention.
type LoggingConfig struct {
	Level         string `mapstructure:"level"`
	Format        string `mapstructure:"format"`
	File          string `mapstructure:"file"`
	MaxSizeMB     int    `mapstructure:"max_size_mb"`
	MaxBackups    int    `mapstructure:"max_backups"`
	RetentionDays int    `mapstructure:"retention_days"`
}

// Default returns the reference-deployment configuration: the NetBird
// client gated for seven days, with the UI installer as the secondary
// component.
func Default() *Config {
	return &Config{
		PackageID:          "NetBird.NetBird",
		ServiceName:        "NetBird",
		DelayDays:          7,
		StartJitterSeconds: 300,
		StateDir:           stateDir(),
		Secondary: SecondaryConfig{
			Name:          "netbird-ui",
			InstallerArgs: []string{"/S"},
			UIProcessName: "netbird-ui.exe",
		},
		SelfUpdate: SelfUpdateConfig{
			ReleaseURL:  "https://api.github.com/repos/NetHorror/netbird-delayed-auto-update-windows/releases/latest",
			ArtifactURL: "https://github.com/NetHorror/netbird-delayed-auto-update-windows/releases/download/%s/nb-update-agent.exe",
		},
		Logging: LoggingConfig{
			Level:         "info",
			Format:        "text",
			MaxSizeMB:     10,
			MaxBackups:    5,
			RetentionDays: 30,
		},
	}
}

// Load reads the configuration file, falling back to defaults when the
// file is absent.
func Load(cfgFile string) (*Config, error) {
	cfg := Default()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("agent")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(configDir())
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("NBUP")

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// AgingStatePath returns the path of the primary aging state document.
func (c *Config) AgingStatePath() string {
	return filepath.Join(c.StateDir, "aging-state.json")
}

// SecondaryStatePath returns the path of the secondary state document.
func (c *Config) SecondaryStatePath() string {
	return filepath.Join(c.StateDir, "secondary-state.json")
}

// LockPath returns the advisory run-lock path.
func (c *Config) LockPath() string {
	return filepath.Join(c.StateDir, "run.lock")
}

func configDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "NbUpdateAgent")
	case "darwin":
		return "/Library/Application Support/NbUpdateAgent"
	default:
		return "/etc/nb-update-agent"
	}
}

func stateDir() string {
	switch runtime.GOOS {
	case "windows":
		return filepath.Join(os.Getenv("ProgramData"), "NbUpdateAgent", "state")
	case "darwin":
		return "/Library/Application Support/NbUpdateAgent/state"
	default:
		return "/var/lib/nb-update-agent"
	}
}
