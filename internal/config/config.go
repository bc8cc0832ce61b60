package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config captures the settings required to boot the optimizer engine.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	Optimizer OptimizerConfig `yaml:"optimizer"`
	Adapters  AdaptersConfig  `yaml:"adapters"`
	Rules     RulesConfig     `yaml:"rules"`
	Cache     CacheConfig     `yaml:"cache"`
}

// ServerConfig controls the HTTP control surface and metrics listener.
type ServerConfig struct {
	Address         string        `yaml:"address"`
	MetricsAddress  string        `yaml:"metricsAddress"`
	GracefulTimeout time.Duration `yaml:"gracefulTimeout"`
}

// LoggingConfig controls structured logging.
type LoggingConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// OptimizerConfig holds the control-loop cadences, feature gates and report
// shape for the orchestrator.
type OptimizerConfig struct {
	EnableAutomatedOptimization    bool `yaml:"enableAutomatedOptimization"`
	EnableAdvancedAnalytics        bool `yaml:"enableAdvancedAnalytics"`
	EnableDatabaseOptimization     bool `yaml:"enableDatabaseOptimization"`
	EnableMultiLayerCaching        bool `yaml:"enableMultiLayerCaching"`
	EnableIntelligentLoadBalancing bool `yaml:"enableIntelligentLoadBalancing"`
	EnableCapacityPlanning         bool `yaml:"enableCapacityPlanning"`

	OptimizationInterval time.Duration `yaml:"optimizationInterval"`
	HealthCheckInterval  time.Duration `yaml:"healthCheckInterval"`
	RuleSweepInterval    time.Duration `yaml:"ruleSweepInterval"`

	ReportHistoryLimit int `yaml:"reportHistoryLimit"`
	TopRecommendations int `yaml:"topRecommendations"`

	AlertThresholds AlertThresholds `yaml:"alertThresholds"`
}

// AlertThresholds are the fixed limits recommendation rules and threshold
// triggers compare against.
type AlertThresholds struct {
	ResponseTimeMs     float64 `yaml:"responseTimeMs"`
	ErrorRatePercent   float64 `yaml:"errorRatePercent"`
	CPUUsagePercent    float64 `yaml:"cpuUsagePercent"`
	MemoryUsagePercent float64 `yaml:"memoryUsagePercent"`
}

// AdapterConfig configures one subsystem adapter client.
type AdapterConfig struct {
	BaseURL      string        `yaml:"baseURL"`
	SnapshotPath string        `yaml:"snapshotPath"`
	CommandPath  string        `yaml:"commandPath"`
	Timeout      time.Duration `yaml:"timeout"`
}

// AdaptersConfig groups the five subsystem collaborators.
type AdaptersConfig struct {
	Performance  AdapterConfig `yaml:"performance"`
	Database     AdapterConfig `yaml:"database"`
	Cache        AdapterConfig `yaml:"cache"`
	LoadBalancer AdapterConfig `yaml:"loadBalancer"`
	Capacity     AdapterConfig `yaml:"capacity"`
}

// RulesConfig controls rule-pack loading for the automation engine.
type RulesConfig struct {
	Path string `yaml:"path"`
}

// CacheConfig controls Valkey-backed publication of the latest report and
// health snapshots.
type CacheConfig struct {
	Enabled      bool          `yaml:"enabled"`
	Addr         string        `yaml:"addr"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dialTimeout"`
	ReadTimeout  time.Duration `yaml:"readTimeout"`
	WriteTimeout time.Duration `yaml:"writeTimeout"`
	MaxRetries   int           `yaml:"maxRetries"`
	TLS          bool          `yaml:"tls"`
	SnapshotTTL  time.Duration `yaml:"snapshotTTL"`
}

// Load initialises Config from a YAML file and optional environment overrides.
func Load(path string) (*Config, error) {
	if path == "" {
		path = os.Getenv("OPTIMIZER_CONFIG")
	}

	cfg := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return nil, fmt.Errorf("config file %s not found: %w", path, err)
			}
			return nil, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config: %w", err)
		}
	}

	applyEnvOverrides(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects configurations the orchestrator cannot run with. A missing
// performance adapter is fatal here so start is never reachable without it.
func Validate(cfg *Config) error {
	if cfg.Optimizer.OptimizationInterval <= 0 {
		return fmt.Errorf("optimizer.optimizationInterval must be positive")
	}
	if cfg.Optimizer.ReportHistoryLimit <= 0 {
		return fmt.Errorf("optimizer.reportHistoryLimit must be positive")
	}
	if cfg.Optimizer.TopRecommendations <= 0 {
		return fmt.Errorf("optimizer.topRecommendations must be positive")
	}
	if cfg.Adapters.Performance.BaseURL == "" {
		return fmt.Errorf("adapters.performance.baseURL is required")
	}
	return nil
}

func defaultConfig() Config {
	return Config{
		Server: ServerConfig{
			Address:         ":8090",
			MetricsAddress:  ":2112",
			GracefulTimeout: 10 * time.Second,
		},
		Logging: LoggingConfig{Level: "info", JSON: false},
		Optimizer: OptimizerConfig{
			EnableAutomatedOptimization:    true,
			EnableAdvancedAnalytics:        true,
			EnableDatabaseOptimization:     true,
			EnableMultiLayerCaching:        true,
			EnableIntelligentLoadBalancing: true,
			EnableCapacityPlanning:         true,
			OptimizationInterval:           30 * time.Minute,
			HealthCheckInterval:            time.Minute,
			RuleSweepInterval:              30 * time.Second,
			ReportHistoryLimit:             50,
			TopRecommendations:             10,
			AlertThresholds: AlertThresholds{
				ResponseTimeMs:     500,
				ErrorRatePercent:   5,
				CPUUsagePercent:    80,
				MemoryUsagePercent: 85,
			},
		},
		Adapters: AdaptersConfig{
			Performance:  AdapterConfig{SnapshotPath: "/api/v1/performance/snapshot", CommandPath: "/api/v1/performance/command", Timeout: 5 * time.Second},
			Database:     AdapterConfig{SnapshotPath: "/api/v1/database/snapshot", CommandPath: "/api/v1/database/command", Timeout: 5 * time.Second},
			Cache:        AdapterConfig{SnapshotPath: "/api/v1/cache/snapshot", CommandPath: "/api/v1/cache/command", Timeout: 5 * time.Second},
			LoadBalancer: AdapterConfig{SnapshotPath: "/api/v1/loadbalancer/snapshot", CommandPath: "/api/v1/loadbalancer/command", Timeout: 5 * time.Second},
			Capacity:     AdapterConfig{SnapshotPath: "/api/v1/capacity/snapshot", CommandPath: "/api/v1/capacity/command", Timeout: 5 * time.Second},
		},
		Rules: RulesConfig{Path: "configs/rules/default.yaml"},
		Cache: CacheConfig{
			Enabled:      false,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
			MaxRetries:   2,
			SnapshotTTL:  10 * time.Minute,
		},
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPTIMIZER_SERVER_ADDRESS"); v != "" {
		cfg.Server.Address = v
	}
	if v := os.Getenv("OPTIMIZER_METRICS_ADDRESS"); v != "" {
		cfg.Server.MetricsAddress = v
	}
	if v := os.Getenv("OPTIMIZER_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("OPTIMIZER_LOG_FORMAT"); v == "json" {
		cfg.Logging.JSON = true
	}
	if v := os.Getenv("OPTIMIZER_RULES_PATH"); v != "" {
		cfg.Rules.Path = v
	}
	if v := os.Getenv("OPTIMIZER_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Optimizer.OptimizationInterval = d
		}
	}
	if v := os.Getenv("OPTIMIZER_AUTOMATION_ENABLED"); v != "" {
		cfg.Optimizer.EnableAutomatedOptimization = isTrue(v)
	}
	if v := os.Getenv("OPTIMIZER_PERFORMANCE_URL"); v != "" {
		cfg.Adapters.Performance.BaseURL = v
	}
	if v := os.Getenv("OPTIMIZER_DATABASE_URL"); v != "" {
		cfg.Adapters.Database.BaseURL = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_ADAPTER_URL"); v != "" {
		cfg.Adapters.Cache.BaseURL = v
	}
	if v := os.Getenv("OPTIMIZER_LOADBALANCER_URL"); v != "" {
		cfg.Adapters.LoadBalancer.BaseURL = v
	}
	if v := os.Getenv("OPTIMIZER_CAPACITY_URL"); v != "" {
		cfg.Adapters.Capacity.BaseURL = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_ADDR"); v != "" {
		cfg.Cache.Addr = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_ENABLED"); v != "" {
		cfg.Cache.Enabled = isTrue(v)
	}
	if v := os.Getenv("OPTIMIZER_CACHE_USERNAME"); v != "" {
		cfg.Cache.Username = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_PASSWORD"); v != "" {
		cfg.Cache.Password = v
	}
	if v := os.Getenv("OPTIMIZER_CACHE_DB"); v != "" {
		if db, err := strconv.Atoi(v); err == nil {
			cfg.Cache.DB = db
		}
	}
	if v := os.Getenv("OPTIMIZER_CACHE_TLS"); isTrue(v) {
		cfg.Cache.TLS = true
	}
	if v := os.Getenv("OPTIMIZER_CACHE_SNAPSHOT_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Cache.SnapshotTTL = d
		}
	}
}

func isTrue(v string) bool {
	return strings.EqualFold(v, "true") || strings.EqualFold(v, "1")
}
