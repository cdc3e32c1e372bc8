package config

// #region imports
import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// #endregion

// #region config-struct

// Config holds every engine option. Zero values are replaced by
// defaults in Default(); Load layers a YAML file and environment
// variables on top.
type Config struct {
	MaxGenerations   int     `yaml:"max_generations"`
	RoundsPerGen     int     `yaml:"rounds_per_gen"`
	PairsPerRound    int     `yaml:"pairs_per_round"` // 0 = auto-sized per round
	InitialProposals int     `yaml:"initial_proposals"`
	TopMEvolve       int     `yaml:"top_m_evolve"`
	KFactor          float64 `yaml:"k_factor"`
	MaxInflight      int     `yaml:"max_inflight"`
	ConvergenceEps   float64 `yaml:"convergence_epsilon"`

	WorkerEndpoint string        `yaml:"worker_endpoint"`
	WorkerModel    string        `yaml:"worker_model"`
	SoftTimeout    time.Duration `yaml:"soft_timeout"`
	HardTimeout    time.Duration `yaml:"hard_timeout"`

	SearchEndpoint string `yaml:"search_endpoint"`
	SearchAPIKey   string `yaml:"search_api_key"`
	SearchMax      int    `yaml:"search_max_results"`

	TraceDir       string `yaml:"trace_dir"`
	DBDSN          string `yaml:"db_dsn"`
	DisableTracing bool   `yaml:"disable_tracing"`
}

// #endregion

// #region defaults

// Default returns the built-in engine configuration.
func Default() Config {
	return Config{
		MaxGenerations:   3,
		RoundsPerGen:     5,
		PairsPerRound:    0,
		InitialProposals: 3,
		TopMEvolve:       2,
		KFactor:          32,
		MaxInflight:      4,
		ConvergenceEps:   20,
		WorkerModel:      "gpt-4o",
		SoftTimeout:      60 * time.Second,
		HardTimeout:      120 * time.Second,
		SearchMax:        3,
		TraceDir:         "traces",
	}
}

// #endregion

// #region load

// Load builds the effective configuration: defaults, then the YAML
// file at path (optional, "" skips), then environment variables.
// local.env / .env are loaded into the environment first when present.
func Load(path string) (Config, error) {
	LoadDotenv()

	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return Config{}, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotenv loads local.env then .env into the process environment.
// Missing files are fine; existing variables are never overridden.
func LoadDotenv() {
	for _, name := range []string{"local.env", ".env"} {
		if _, err := os.Stat(name); err == nil {
			_ = godotenv.Load(name)
		}
	}
}

// #endregion

// #region env

// applyEnv overlays POLICYAIDE_* engine knobs and OPENAI_AGENTS_*
// tracing toggles onto the config.
func (c *Config) applyEnv() {
	envInt("POLICYAIDE_MAX_GENERATIONS", &c.MaxGenerations)
	envInt("POLICYAIDE_ROUNDS_PER_GEN", &c.RoundsPerGen)
	envInt("POLICYAIDE_PAIRS_PER_ROUND", &c.PairsPerRound)
	envInt("POLICYAIDE_INITIAL_PROPOSALS", &c.InitialProposals)
	envInt("POLICYAIDE_TOP_M_EVOLVE", &c.TopMEvolve)
	envFloat("POLICYAIDE_K_FACTOR", &c.KFactor)
	envInt("POLICYAIDE_MAX_INFLIGHT", &c.MaxInflight)
	envFloat("POLICYAIDE_CONVERGENCE_EPSILON", &c.ConvergenceEps)
	envString("POLICYAIDE_WORKER_ENDPOINT", &c.WorkerEndpoint)
	envString("POLICYAIDE_WORKER_MODEL", &c.WorkerModel)
	envString("OPENAI_MODEL", &c.WorkerModel)
	envString("POLICYAIDE_SEARCH_ENDPOINT", &c.SearchEndpoint)
	envString("POLICYAIDE_SEARCH_API_KEY", &c.SearchAPIKey)
	envString("SERP_API_KEY", &c.SearchAPIKey)
	envInt("POLICYAIDE_SEARCH_MAX_RESULTS", &c.SearchMax)

	envString("OPENAI_AGENTS_TRACE_DIR", &c.TraceDir)
	envString("OPENAI_AGENTS_DB_DSN", &c.DBDSN)
	envBool("OPENAI_AGENTS_DISABLE_TRACING", &c.DisableTracing)
}

func envString(key string, dst *string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func envInt(key string, dst *int) {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			*dst = n
		}
	}
}

func envFloat(key string, dst *float64) {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			*dst = f
		}
	}
}

func envBool(key string, dst *bool) {
	if v := os.Getenv(key); v != "" {
		*dst = v == "true" || v == "1"
	}
}

// #endregion

// #region validate

// Validate enforces the option bounds from the configuration surface.
func (c Config) Validate() error {
	if c.MaxGenerations < 1 {
		return fmt.Errorf("max_generations must be >= 1, got %d", c.MaxGenerations)
	}
	if c.RoundsPerGen < 1 {
		return fmt.Errorf("rounds_per_gen must be >= 1, got %d", c.RoundsPerGen)
	}
	if c.PairsPerRound < 0 {
		return fmt.Errorf("pairs_per_round must be >= 1 or 0 for auto, got %d", c.PairsPerRound)
	}
	if c.InitialProposals < 2 {
		return fmt.Errorf("initial_proposals must be >= 2, got %d", c.InitialProposals)
	}
	if c.TopMEvolve < 1 {
		return fmt.Errorf("top_m_evolve must be >= 1, got %d", c.TopMEvolve)
	}
	if c.MaxInflight < 1 {
		return fmt.Errorf("max_inflight must be >= 1, got %d", c.MaxInflight)
	}
	return nil
}

// #endregion
