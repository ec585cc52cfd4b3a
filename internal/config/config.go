package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Addr      string `yaml:"addr"`
	AuthToken string `yaml:"auth_token"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level string `yaml:"level"`
}

// ExecConfig holds code execution settings.
type ExecConfig struct {
	Interpreter string        `yaml:"interpreter"`
	MaxTimeout  time.Duration `yaml:"max_timeout"`
	OutputCap   int           `yaml:"output_cap"`
}

// ModelingConfig holds modeling defaults.
type ModelingConfig struct {
	MaxRows        int `yaml:"max_rows"`
	CardinalityCap int `yaml:"cardinality_cap"`
}

// Config holds all runtime configuration for the daemon.
type Config struct {
	Mode          string         `yaml:"mode"` // http, mcp or both
	WorkspaceDir  string         `yaml:"workspace_dir"`
	StateDir      string         `yaml:"state_dir"`
	ShutdownGrace time.Duration  `yaml:"shutdown_grace"`
	Server        ServerConfig   `yaml:"server"`
	Log           LogConfig      `yaml:"log"`
	Exec          ExecConfig     `yaml:"exec"`
	Modeling      ModelingConfig `yaml:"modeling"`
}

const (
	defaultMode           = "http"
	defaultAddr           = "0.0.0.0:7171"
	defaultLogLevel       = "info"
	defaultWorkspaceDir   = "workspace"
	defaultInterpreter    = "python3 -u"
	defaultExecMaxTimeout = 60 * time.Second
	defaultExecOutputCap  = 64 * 1024
	defaultMaxRows        = 20000
	defaultCardinality    = 50
	defaultShutdownGrace  = 5 * time.Second
)

// InterpreterArgs returns the interpreter command split into argv form.
func (c *ExecConfig) InterpreterArgs() []string {
	return strings.Fields(c.Interpreter)
}

func defaults() *Config {
	return &Config{
		Mode:          defaultMode,
		WorkspaceDir:  defaultWorkspaceDir,
		ShutdownGrace: defaultShutdownGrace,
		Server:        ServerConfig{Addr: defaultAddr},
		Log:           LogConfig{Level: defaultLogLevel},
		Exec: ExecConfig{
			Interpreter: defaultInterpreter,
			MaxTimeout:  defaultExecMaxTimeout,
			OutputCap:   defaultExecOutputCap,
		},
		Modeling: ModelingConfig{
			MaxRows:        defaultMaxRows,
			CardinalityCap: defaultCardinality,
		},
	}
}

func getEnvString(key, defaultVal string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val, ok := os.LookupEnv(key); ok {
		if i, err := strconv.Atoi(val); err == nil {
			return i
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val, ok := os.LookupEnv(key); ok {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}

// Load builds the configuration from the given command-line arguments.
// Priority: CLI flags > environment variables > .env file > YAML config
// file > defaults. The YAML file is looked up at the -config flag path,
// then $DATALAB_CONFIG, then ./config.yaml; a missing file is not an error.
func Load(args []string) (*Config, error) {
	fs := flag.NewFlagSet("datalabd", flag.ContinueOnError)
	var (
		configPath    string
		mode          string
		addr          string
		workspaceDir  string
		stateDir      string
		logLevel      string
		interpreter   string
		shutdownGrace time.Duration
	)
	fs.StringVar(&configPath, "config", "", "Path to YAML config file")
	fs.StringVar(&mode, "mode", "", "Run mode: http, mcp or both")
	fs.StringVar(&addr, "addr", "", "HTTP listen address")
	fs.StringVar(&workspaceDir, "workspace-dir", "", "Sandbox workspace root")
	fs.StringVar(&stateDir, "state-dir", "", "Directory for the run history database")
	fs.StringVar(&logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&interpreter, "interpreter", "", "Code execution interpreter command")
	fs.DurationVar(&shutdownGrace, "shutdown-grace", 0, "Grace period when shutting down")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	// .env is optional; it only backfills unset environment variables.
	_ = godotenv.Load(".env")

	cfg := defaults()
	if err := loadYAML(cfg, configPath); err != nil {
		return nil, err
	}

	// Environment variables override the file layer.
	cfg.Mode = getEnvString("DATALAB_MODE", cfg.Mode)
	cfg.WorkspaceDir = getEnvString("DATALAB_WORKSPACE_DIR", cfg.WorkspaceDir)
	cfg.StateDir = getEnvString("DATALAB_STATE_DIR", cfg.StateDir)
	cfg.ShutdownGrace = getEnvDuration("DATALAB_SHUTDOWN_GRACE", cfg.ShutdownGrace)
	cfg.Server.Addr = getEnvString("DATALAB_ADDR", cfg.Server.Addr)
	cfg.Server.AuthToken = getEnvString("DATALAB_AUTH_TOKEN", cfg.Server.AuthToken)
	cfg.Log.Level = getEnvString("DATALAB_LOG_LEVEL", cfg.Log.Level)
	cfg.Exec.Interpreter = getEnvString("DATALAB_INTERPRETER", cfg.Exec.Interpreter)
	cfg.Exec.MaxTimeout = getEnvDuration("DATALAB_EXEC_MAX_TIMEOUT", cfg.Exec.MaxTimeout)
	cfg.Exec.OutputCap = getEnvInt("DATALAB_EXEC_OUTPUT_CAP", cfg.Exec.OutputCap)
	cfg.Modeling.MaxRows = getEnvInt("DATALAB_MODELING_MAX_ROWS", cfg.Modeling.MaxRows)
	cfg.Modeling.CardinalityCap = getEnvInt("DATALAB_CARDINALITY_CAP", cfg.Modeling.CardinalityCap)

	// CLI flags win over everything.
	if mode != "" {
		cfg.Mode = mode
	}
	if addr != "" {
		cfg.Server.Addr = addr
	}
	if workspaceDir != "" {
		cfg.WorkspaceDir = workspaceDir
	}
	if stateDir != "" {
		cfg.StateDir = stateDir
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if interpreter != "" {
		cfg.Exec.Interpreter = interpreter
	}
	if shutdownGrace > 0 {
		cfg.ShutdownGrace = shutdownGrace
	}

	if cfg.StateDir == "" {
		dir, err := defaultStateDir()
		if err != nil {
			return nil, fmt.Errorf("resolve default state dir: %w", err)
		}
		cfg.StateDir = dir
	}

	switch cfg.Mode {
	case "http", "mcp", "both":
	default:
		return nil, fmt.Errorf("invalid mode %q (valid: http, mcp, both)", cfg.Mode)
	}
	return cfg, nil
}

func loadYAML(cfg *Config, explicit string) error {
	path := explicit
	if path == "" {
		path = os.Getenv("DATALAB_CONFIG")
	}
	if path == "" {
		path = "config.yaml"
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && explicit == "" {
			return nil
		}
		return fmt.Errorf("read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}
	return nil
}

func defaultStateDir() (string, error) {
	baseDir, err := os.UserConfigDir()
	if err != nil {
		return "", err
	}
	path := filepath.Join(baseDir, "datalab")
	if err := os.MkdirAll(path, 0o755); err != nil {
		return "", err
	}
	return path, nil
}
