package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

// Cache blob-store backends.
const (
	CacheBackendDisk  = "disk"
	CacheBackendRedis = "redis"
)

// CacheRedisConfig selects the optional shared redis blob store.
type CacheRedisConfig struct {
	Addr string `yaml:"addr"`
	DB   int    `yaml:"db"`
}

// CacheConfig is the cache: block of the application config. TTLs and the
// cleanup interval are seconds.
type CacheConfig struct {
	Enabled                bool             `yaml:"enabled"`
	StoragePath            string           `yaml:"storage_path"`
	DataTTLSeconds         int              `yaml:"data_ttl"`
	ChartTTLSeconds        int              `yaml:"chart_ttl"`
	AnalysisTTLSeconds     int              `yaml:"analysis_ttl"`
	MaxMemoryEntries       int              `yaml:"max_memory_entries"`
	MaxDiskSizeMB          int              `yaml:"max_disk_size_mb"`
	CleanupIntervalSeconds int              `yaml:"cleanup_interval"`
	Backend                string           `yaml:"backend"`
	Redis                  CacheRedisConfig `yaml:"redis"`
}

// GetDefaultCacheConfig returns the compiled-in cache defaults.
func GetDefaultCacheConfig() *CacheConfig {
	return &CacheConfig{
		Enabled:                true,
		StoragePath:            "./cache_data",
		DataTTLSeconds:         300,
		ChartTTLSeconds:        600,
		AnalysisTTLSeconds:     1800,
		MaxMemoryEntries:       1000,
		MaxDiskSizeMB:          500,
		CleanupIntervalSeconds: 3600,
		Backend:                CacheBackendDisk,
	}
}

// LoadCacheConfig reads the cache: block from a YAML file, falling back to
// the compiled-in defaults when the file is absent. Fields missing from the
// file keep their default values.
func LoadCacheConfig(path string) (*CacheConfig, error) {
	cfg := GetDefaultCacheConfig()
	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read cache config %s: %w", path, err)
	}

	wrapper := struct {
		Cache *CacheConfig `yaml:"cache"`
	}{Cache: cfg}
	if err := yaml.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("failed to parse cache config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects incoherent cache settings.
func (c *CacheConfig) Validate() error {
	if c.DataTTLSeconds <= 0 || c.ChartTTLSeconds <= 0 || c.AnalysisTTLSeconds <= 0 {
		return fmt.Errorf("cache ttls must be positive (data=%d chart=%d analysis=%d)",
			c.DataTTLSeconds, c.ChartTTLSeconds, c.AnalysisTTLSeconds)
	}
	if c.MaxMemoryEntries <= 0 {
		return fmt.Errorf("max_memory_entries must be positive, got %d", c.MaxMemoryEntries)
	}
	if c.MaxDiskSizeMB <= 0 {
		return fmt.Errorf("max_disk_size_mb must be positive, got %d", c.MaxDiskSizeMB)
	}
	if c.CleanupIntervalSeconds <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %d", c.CleanupIntervalSeconds)
	}
	switch c.Backend {
	case CacheBackendDisk:
		if c.StoragePath == "" {
			return fmt.Errorf("storage_path is required for the disk backend")
		}
	case CacheBackendRedis:
		if c.Redis.Addr == "" {
			return fmt.Errorf("redis.addr is required for the redis backend")
		}
	default:
		return fmt.Errorf("unknown cache backend %q", c.Backend)
	}
	return nil
}

// DataTTL returns the data bucket TTL.
func (c *CacheConfig) DataTTL() time.Duration {
	return time.Duration(c.DataTTLSeconds) * time.Second
}

// ChartTTL returns the chart bucket TTL.
func (c *CacheConfig) ChartTTL() time.Duration {
	return time.Duration(c.ChartTTLSeconds) * time.Second
}

// AnalysisTTL returns the analysis bucket TTL.
func (c *CacheConfig) AnalysisTTL() time.Duration {
	return time.Duration(c.AnalysisTTLSeconds) * time.Second
}

// CleanupInterval returns the background sweeper cadence.
func (c *CacheConfig) CleanupInterval() time.Duration {
	return time.Duration(c.CleanupIntervalSeconds) * time.Second
}
