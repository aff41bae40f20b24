package config

import (
	"fmt"
	"os"
	"time"
)

const (
	ClusterModeLive   = "live"
	ClusterModeMemory = "memory"
)

type Config struct {
	KubeConfig       string
	KubeMaster       string
	ClusterConfigDir string
	Namespace        string
	ClusterMode      string
	ResyncInterval   time.Duration
	ResyncSchedule   string
	ResyncTZ         string
	CallTimeout      time.Duration
	WatchBackoff     time.Duration
	MaxTaskBackoff   time.Duration
	PingerInterval   time.Duration
	LogLevel         string
	LogFormat        string
	HTTPPort         string
	MetricsPort      string
	ResourceAPIURL   string
	ResourceAPIToken string
}

func Load() (*Config, error) {
	cfg := &Config{
		KubeConfig:       getEnvWithFallback(envKeyKubeConfig, envKeyKubeConfigFallback, ""),
		KubeMaster:       getEnvWithFallback(envKeyKubeMaster, envKeyKubeMasterFallback, ""),
		ClusterConfigDir: os.Getenv(envKeyClusterConfigDir),
		Namespace:        getEnvOrDefault(envKeyNamespace, "default"),
		ClusterMode:      getEnvOrDefault(envKeyClusterMode, ClusterModeLive),
		ResyncSchedule:   os.Getenv(envKeyResyncSchedule),
		ResyncTZ:         os.Getenv(envKeyResyncTZ),
		LogLevel:         getEnvOrDefault(envKeyLogLevel, "info"),
		LogFormat:        getEnvOrDefault(envKeyLogFormat, "json"),
		HTTPPort:         getEnvOrDefault(envKeyHTTPPort, "8080"),
		MetricsPort:      getEnvOrDefault(envKeyMetricsPort, "9090"),
		ResourceAPIURL:   os.Getenv(envKeyResourceAPIURL),
		ResourceAPIToken: os.Getenv(envKeyResourceAPIToken),
	}

	if cfg.ClusterMode != ClusterModeLive && cfg.ClusterMode != ClusterModeMemory {
		return nil, fmt.Errorf("invalid %s: %q", envKeyClusterMode, cfg.ClusterMode)
	}

	durations := []struct {
		target       *time.Duration
		key          string
		defaultValue time.Duration
		minimum      time.Duration
	}{
		{&cfg.ResyncInterval, envKeyResyncInterval, 600 * time.Second, envMinResyncInterval},
		{&cfg.CallTimeout, envKeyCallTimeout, 10 * time.Second, envMinCallTimeout},
		{&cfg.WatchBackoff, envKeyWatchBackoff, 3 * time.Second, envMinWatchBackoff},
		{&cfg.MaxTaskBackoff, envKeyMaxTaskBackoff, 300 * time.Second, envMinMaxTaskBackoff},
		{&cfg.PingerInterval, envKeyPingerInterval, 15 * time.Second, envMinPingerInterval},
	}

	for _, d := range durations {
		value, err := getDuration(d.key, d.defaultValue, d.minimum)
		if err != nil {
			return nil, err
		}

		*d.target = value
	}

	return cfg, nil
}

func getDuration(key string, defaultValue, minimum time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return defaultValue, nil
	}

	value, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}

	if value < minimum {
		return 0, fmt.Errorf("%s below minimum %s: %s", key, minimum, value)
	}

	return value, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	return value
}

func getEnvWithFallback(key, fallbackKey, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return getEnvOrDefault(fallbackKey, defaultValue)
}
