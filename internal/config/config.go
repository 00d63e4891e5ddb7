package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log         LogConfig         `yaml:"log" mapstructure:"log"`
	Data        DataConfig        `yaml:"data" mapstructure:"data"`
	Output      OutputConfig      `yaml:"output" mapstructure:"output"`
	Model       ModelConfig       `yaml:"model" mapstructure:"model"`
	Sampler     SamplerConfig     `yaml:"sampler" mapstructure:"sampler"`
	Convergence ConvergenceConfig `yaml:"convergence" mapstructure:"convergence"`
	Server      ServerConfig      `yaml:"server" mapstructure:"server"`
	Fetch       FetchConfig       `yaml:"fetch" mapstructure:"fetch"`
}

// DataConfig locates the analysis document and the retailer extracts.
type DataConfig struct {
	AnalysisPath           string   `yaml:"analysis_path" mapstructure:"analysis_path"`
	StageDir               string   `yaml:"stage_dir" mapstructure:"stage_dir"`
	MaxConcurrentRetailers int      `yaml:"max_concurrent_retailers" mapstructure:"max_concurrent_retailers"`
	Sources                []Source `yaml:"sources" mapstructure:"sources"`
}

// Source is one retailer extract: a local path or an http(s)/ftp/file URL.
type Source struct {
	Retailer string `yaml:"retailer" mapstructure:"retailer"`
	Path     string `yaml:"path" mapstructure:"path"`
}

// OutputConfig configures where artifacts are written.
type OutputConfig struct {
	Dir string `yaml:"dir" mapstructure:"dir"`
}

// ModelConfig selects the prior library entry.
type ModelConfig struct {
	PriorSet string `yaml:"prior_set" mapstructure:"prior_set"`
}

// SamplerConfig configures posterior sampling.
type SamplerConfig struct {
	Draws        int     `yaml:"draws" mapstructure:"draws"`
	Tune         int     `yaml:"tune" mapstructure:"tune"`
	Chains       int     `yaml:"chains" mapstructure:"chains"`
	TargetAccept float64 `yaml:"target_accept" mapstructure:"target_accept"`
	Seed         uint64  `yaml:"seed" mapstructure:"seed"`
	MaxLeapfrog  int     `yaml:"max_leapfrog" mapstructure:"max_leapfrog"`
}

// ConvergenceConfig holds the acceptance thresholds.
type ConvergenceConfig struct {
	RHatMax        float64 `yaml:"rhat_max" mapstructure:"rhat_max"`
	ESSMin         float64 `yaml:"ess_min" mapstructure:"ess_min"`
	MaxDivergences int     `yaml:"max_divergences" mapstructure:"max_divergences"`
}

// ServerConfig configures the artifact API.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
}

// FetchConfig configures remote extract staging.
type FetchConfig struct {
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ELASTICITY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("data.analysis_path", "analysis.yaml")
	v.SetDefault("data.stage_dir", filepath.Join(os.TempDir(), "elasticity"))
	v.SetDefault("data.max_concurrent_retailers", 4)
	v.SetDefault("output.dir", "output")
	v.SetDefault("model.prior_set", "default")
	v.SetDefault("sampler.draws", 2000)
	v.SetDefault("sampler.tune", 1000)
	v.SetDefault("sampler.chains", 4)
	v.SetDefault("sampler.target_accept", 0.95)
	v.SetDefault("sampler.seed", 42)
	v.SetDefault("sampler.max_leapfrog", 1024)
	v.SetDefault("convergence.rhat_max", 1.01)
	v.SetDefault("convergence.ess_min", 400)
	v.SetDefault("convergence.max_divergences", 0)
	v.SetDefault("server.port", 8080)
	v.SetDefault("fetch.timeout_secs", 120)
	v.SetDefault("fetch.requests_per_second", 2)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// ParseSource parses a "retailer=path" command-line source. The split is on
// the first '=' so URLs with query strings survive.
func ParseSource(s string) (Source, error) {
	retailer, path, ok := strings.Cut(s, "=")
	retailer = strings.TrimSpace(retailer)
	path = strings.TrimSpace(path)
	if !ok || retailer == "" || path == "" {
		return Source{}, eris.Errorf("config: source %q must be retailer=path", s)
	}
	return Source{Retailer: retailer, Path: path}, nil
}

// Validate checks the settings a command mode depends on.
func (c *Config) Validate(mode string) error {
	var errs []string

	if c.Data.MaxConcurrentRetailers < 1 || c.Data.MaxConcurrentRetailers > 64 {
		errs = append(errs, "data.max_concurrent_retailers must be between 1 and 64")
	}

	switch mode {
	case "prep", "run":
		if c.Data.AnalysisPath == "" {
			errs = append(errs, "data.analysis_path is required")
		}
		if c.Output.Dir == "" {
			errs = append(errs, "output.dir is required")
		}
		seen := make(map[string]bool, len(c.Data.Sources))
		for _, s := range c.Data.Sources {
			if s.Retailer == "" || s.Path == "" {
				errs = append(errs, "data.sources entries need retailer and path")
				continue
			}
			if seen[s.Retailer] {
				errs = append(errs, "data.sources["+s.Retailer+"] is listed twice")
			}
			seen[s.Retailer] = true
		}
		if mode == "run" {
			if c.Sampler.Draws < 1 || c.Sampler.Tune < 0 || c.Sampler.Chains < 1 {
				errs = append(errs, "sampler.draws and sampler.chains must be > 0, sampler.tune >= 0")
			}
			if c.Sampler.TargetAccept <= 0 || c.Sampler.TargetAccept >= 1 {
				errs = append(errs, "sampler.target_accept must be in (0, 1)")
			}
			if c.Convergence.RHatMax <= 1 {
				errs = append(errs, "convergence.rhat_max must be > 1")
			}
		}
	case "serve":
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	case "summarize", "scenario", "contracts":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
