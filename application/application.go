package application

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/oconnor0/tutkain/internal/nrepl"
	tlog "github.com/oconnor0/tutkain/pkg/log"
	"github.com/oconnor0/tutkain/pkg/metrics"
	"github.com/oconnor0/tutkain/pkg/util/conc"
	tviper "github.com/oconnor0/tutkain/pkg/util/viper"
)

// ServerConfig 描述远端求值器的地址。
type ServerConfig struct {
	Host string `mapstructure:"host" json:"host"`
	Port int    `mapstructure:"port" json:"port"`
}

// Application is the main runtime container for tutkain.
// It owns configuration, logging, metrics, and the connection manager.
type Application struct {
	cfg     *tviper.Config
	server  ServerConfig
	manager *nrepl.Manager

	metricsCancel context.CancelFunc
}

// New creates a new Application instance.
func New() *Application {
	return &Application{}
}

// Run is the entry of the tutkain application.
// It parses command-line arguments (os.Args) and loads configuration file
// using the following priority:
//  1. Default: ./config.yaml
//  2. Env: TUTKAIN_CONFIG_FILE_PATH
//  3. CLI: --config <path> or --config=<path>
func (a *Application) Run() error {
	cfg, err := a.loadConfig()
	if err != nil {
		return err
	}
	a.cfg = cfg

	if err := a.initLogging(); err != nil {
		return err
	}

	a.initMetrics()

	if err := a.initManager(); err != nil {
		return err
	}

	return nil
}

// Config returns the loaded configuration, if any.
func (a *Application) Config() *tviper.Config {
	return a.cfg
}

// Server returns the configured remote evaluator address.
func (a *Application) Server() ServerConfig {
	return a.server
}

// Manager returns the connection manager.
func (a *Application) Manager() *nrepl.Manager {
	return a.manager
}

// Shutdown terminates every connection and stops background sampling.
func (a *Application) Shutdown(ctx context.Context) error {
	if a.metricsCancel != nil {
		a.metricsCancel()
	}
	var err error
	if a.manager != nil {
		err = a.manager.Shutdown(ctx)
	}
	_ = tlog.Sync()
	return err
}

// loadConfig resolves config file path and loads it via viper wrapper.
// A missing config file is not an error; defaults and env vars apply.
func (a *Application) loadConfig() (*tviper.Config, error) {
	configPath := "./config.yaml"
	explicit := false

	if envPath := os.Getenv("TUTKAIN_CONFIG_FILE_PATH"); envPath != "" {
		configPath = envPath
		explicit = true
	}

	args := os.Args[1:]
	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--config" {
			if i+1 >= len(args) {
				return nil, fmt.Errorf("missing value after --config")
			}
			configPath = args[i+1]
			explicit = true
			i++
			continue
		}
		if strings.HasPrefix(arg, "--config=") {
			val := strings.TrimPrefix(arg, "--config=")
			if val != "" {
				configPath = val
				explicit = true
			}
			continue
		}
	}

	cfg := tviper.New()
	cfg.BindEnv("TUTKAIN")
	if err := cfg.LoadFile(configPath); err != nil {
		if explicit {
			return nil, fmt.Errorf("failed to load config file %q: %w", configPath, err)
		}
		// 默认路径上没有配置文件属于正常情况。
		return cfg, nil
	}

	return cfg, nil
}

// initLogging configures the process-wide logger based on TUTKAIN_LOG_* env vars.
//
// Priority:
//   - TUTKAIN_LOG_ENABLE: "1"/"true" to enable outputs; others treated as disabled.
//   - TUTKAIN_LOG_LEVEL: log level (default "info").
//   - TUTKAIN_LOG_STDOUT: whether to log to stdout (default false).
//   - TUTKAIN_LOG_FILE_DIR: log directory.
//   - TUTKAIN_LOG_FILE: log file name (empty means no file).
//   - TUTKAIN_LOG_FORMAT: log format ("text" or "json", default "text").
func (a *Application) initLogging() error {
	enabled := getenvBool("TUTKAIN_LOG_ENABLE", false)

	cfg := &tlog.Config{
		Level:               getenvDefault("TUTKAIN_LOG_LEVEL", "info"),
		Format:              getenvDefault("TUTKAIN_LOG_FORMAT", "text"),
		DisableTimestamp:    false,
		Stdout:              getenvBool("TUTKAIN_LOG_STDOUT", false),
		DisableCaller:       false,
		DisableStacktrace:   false,
		DisableErrorVerbose: true,
		File: tlog.FileLogConfig{
			RootPath: getenvDefault("TUTKAIN_LOG_FILE_DIR", ""),
			Filename: getenvDefault("TUTKAIN_LOG_FILE", ""),
		},
	}

	// When not enabled, direct all outputs to a discarded sink.
	if !enabled {
		cfg.Stdout = false
		cfg.File.Filename = ""
	}

	logger, props, err := tlog.InitLogger(cfg)
	if err != nil {
		return fmt.Errorf("init global logger from env: %w", err)
	}
	tlog.ReplaceGlobals(logger, props)
	return nil
}

// initMetrics registers all metrics and starts the process sampling loop.
func (a *Application) initMetrics() {
	registry, ok := prometheus.DefaultRegisterer.(*prometheus.Registry)
	if !ok {
		registry = prometheus.NewRegistry()
	}
	metrics.Register(registry)
	metrics.RegisterQueueMetrics(registry)
	metrics.RegisterProcessMetrics(registry)

	ctx, cancel := context.WithCancel(context.Background())
	a.metricsCancel = cancel
	_ = conc.Go(func() (struct{}, error) {
		metrics.StartProcessMetricsLoop(ctx, 15*time.Second)
		return struct{}{}, nil
	})
}

// initManager builds the connection manager from the "server" and "dial"
// config sections.
//
// Example:
//
//	server:
//	  host: 127.0.0.1
//	  port: 1234
//	dial:
//	  dial-retries: 3
//	  dial-backoff-initial: 200ms
func (a *Application) initManager() error {
	a.server = ServerConfig{Host: "127.0.0.1", Port: 1234}
	if a.cfg != nil {
		if err := a.cfg.UnmarshalKey("server", &a.server); err != nil {
			return fmt.Errorf("parse server config: %w", err)
		}
	}

	managerCfg := nrepl.DefaultManagerConfig()
	if a.cfg != nil {
		if err := a.cfg.UnmarshalKey("dial", &managerCfg); err != nil {
			return fmt.Errorf("parse dial config: %w", err)
		}
	}

	a.manager = nrepl.NewManager(managerCfg)
	return nil
}

func getenvDefault(key, def string) string {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	return val
}

func getenvBool(key string, def bool) bool {
	val := strings.TrimSpace(os.Getenv(key))
	if val == "" {
		return def
	}
	switch strings.ToLower(val) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	default:
		return def
	}
}
