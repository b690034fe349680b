package main

import (
	"fmt"
	"os"
	"time"

	"fuzoj/internal/common/cache"
	"fuzoj/internal/common/db"
	"fuzoj/internal/judge/sandbox/engine"
	"fuzoj/internal/judge/sandbox/profile"
	"fuzoj/internal/judge/sandbox/spec"
	"fuzoj/pkg/utils/logger"

	"gopkg.in/yaml.v3"
)

const (
	defaultWorkerPoolCapacity  = 50
	defaultServiceLoopInterval = 5 * time.Second
)

// SandboxConfig holds the native sandbox engine's settings.
type SandboxConfig struct {
	CgroupRoot           string `yaml:"cgroupRoot"`
	SeccompDir           string `yaml:"seccompDir"`
	HelperPath           string `yaml:"helperPath"`
	StdoutStderrMaxBytes int64  `yaml:"stdoutStderrMaxBytes"`
	EnableSeccomp        bool   `yaml:"enableSeccomp"`
	EnableCgroup         bool   `yaml:"enableCgroup"`
	EnableNamespaces     bool   `yaml:"enableNamespaces"`
}

func (s SandboxConfig) toEngineConfig() engine.Config {
	return engine.Config{
		CgroupRoot:           s.CgroupRoot,
		SeccompDir:           s.SeccompDir,
		HelperPath:           s.HelperPath,
		StdoutStderrMaxBytes: s.StdoutStderrMaxBytes,
		EnableSeccomp:        s.EnableSeccomp,
		EnableCgroup:         s.EnableCgroup,
		EnableNamespaces:     s.EnableNamespaces,
	}
}

// ImageProfileConfig binds one Docker-vocabulary image name
// ("checker-lang-gcc", "binary-runner") to the isolation profile the
// engine applies when it runs a Task under that image.
type ImageProfileConfig struct {
	Image          string             `yaml:"image"`
	RootFS         string             `yaml:"rootFS"`
	SeccompProfile string             `yaml:"seccompProfile"`
	DefaultLimits  ResourceLimitConfig `yaml:"defaultLimits"`
}

// ResourceLimitConfig mirrors spec.ResourceLimit for YAML decoding.
type ResourceLimitConfig struct {
	CPUTimeMs  int64 `yaml:"cpuTimeMs"`
	WallTimeMs int64 `yaml:"wallTimeMs"`
	MemoryMB   int64 `yaml:"memoryMB"`
	StackMB    int64 `yaml:"stackMB"`
	OutputMB   int64 `yaml:"outputMB"`
	PIDs       int64 `yaml:"pids"`
}

func (r ResourceLimitConfig) toSpec() spec.ResourceLimit {
	return spec.ResourceLimit{
		CPUTimeMs:  r.CPUTimeMs,
		WallTimeMs: r.WallTimeMs,
		MemoryMB:   r.MemoryMB,
		StackMB:    r.StackMB,
		OutputMB:   r.OutputMB,
		PIDs:       r.PIDs,
	}
}

func (c ImageProfileConfig) toTaskProfile() profile.TaskProfile {
	return profile.TaskProfile{
		LanguageID:     c.Image,
		TaskType:       profile.TaskTypeRun,
		RootFS:         c.RootFS,
		SeccompProfile: c.SeccompProfile,
		DefaultLimits:  c.DefaultLimits.toSpec(),
	}
}

// JudgeConfig holds the settings specific to the judge dispatch loop
// and worker pool.
type JudgeConfig struct {
	ResourceRoot        string        `yaml:"resourceRoot"`
	WorkRoot            string        `yaml:"workRoot"`
	WorkerPoolCapacity  int           `yaml:"workerPoolCapacity"`
	ServiceLoopInterval time.Duration `yaml:"serviceLoopInterval"`
}

// AppConfig holds judge-service config: the persistent schema
// connection, the sandbox engine, its per-image profiles, the judge
// dispatch settings, and the Redis cache backing the status reader.
type AppConfig struct {
	Logger   logger.Config        `yaml:"logger"`
	Database db.MySQLConfig       `yaml:"database"`
	Redis    cache.RedisConfig    `yaml:"redis"`
	Sandbox  SandboxConfig        `yaml:"sandbox"`
	Images   []ImageProfileConfig `yaml:"images"`
	Judge    JudgeConfig          `yaml:"judge"`
}

func loadYAML(path string, out interface{}) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file failed: %w", err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("parse config file failed: %w", err)
	}
	return nil
}

func loadAppConfig(path string) (*AppConfig, error) {
	var cfg AppConfig
	if err := loadYAML(path, &cfg); err != nil {
		return nil, err
	}
	if cfg.Database.DSN == "" {
		return nil, fmt.Errorf("database dsn is required")
	}
	if cfg.Judge.ResourceRoot == "" {
		return nil, fmt.Errorf("judge.resourceRoot is required")
	}
	if cfg.Judge.WorkRoot == "" {
		return nil, fmt.Errorf("judge.workRoot is required")
	}
	if len(cfg.Images) == 0 {
		return nil, fmt.Errorf("at least one sandbox image profile is required")
	}
	if cfg.Judge.WorkerPoolCapacity <= 0 {
		cfg.Judge.WorkerPoolCapacity = defaultWorkerPoolCapacity
	}
	if cfg.Judge.ServiceLoopInterval <= 0 {
		cfg.Judge.ServiceLoopInterval = defaultServiceLoopInterval
	}
	applyRedisDefaults(&cfg.Redis)
	return &cfg, nil
}

func applyRedisDefaults(cfg *cache.RedisConfig) {
	defaults := cache.DefaultRedisConfig()
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = defaults.MaxRetries
	}
	if cfg.MinRetryBackoff == 0 {
		cfg.MinRetryBackoff = defaults.MinRetryBackoff
	}
	if cfg.MaxRetryBackoff == 0 {
		cfg.MaxRetryBackoff = defaults.MaxRetryBackoff
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaults.DialTimeout
	}
	if cfg.PoolSize == 0 {
		cfg.PoolSize = defaults.PoolSize
	}
}
