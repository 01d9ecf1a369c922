/*
 * Copyright (c) 2025, WSO2 LLC. (https://www.wso2.com).
 *
 * WSO2 LLC. licenses this file to you under the Apache License,
 * Version 2.0 (the "License"); you may not use this file except
 * in compliance with the License.
 * You may obtain a copy of the License at
 *
 * http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing,
 * software distributed under the License is distributed on an
 * "AS IS" BASIS, WITHOUT WARRANTIES OR CONDITIONS OF ANY
 * KIND, either express or implied.  See the License for the
 * specific language governing permissions and limitations
 * under the License.
 */

package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	toml "github.com/knadh/koanf/parsers/toml/v2"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	// EnvPrefix is the prefix for environment variables used to configure the proxy.
	EnvPrefix = "PIAM_"
)

// Config is the proxy's full runtime configuration.
type Config struct {
	Proxy     ProxyConfig     `koanf:"proxy"`
	Manager   ManagerConfig   `koanf:"manager"`
	Admin     AdminConfig     `koanf:"admin"`
	Metrics   MetricsConfig   `koanf:"metrics"`
	Logging   LoggingConfig   `koanf:"logging"`
	Tracing   TracingConfig   `koanf:"tracing"`
	Analytics AnalyticsConfig `koanf:"analytics"`
}

// ProxyConfig identifies this proxy instance and the deployment it runs in.
type ProxyConfig struct {
	// ListenAddr is the address the S3-compatible listener binds, e.g. ":80".
	ListenAddr string `koanf:"listen_addr"`

	// Type is reported in the x-patsnap-proxy-type response header.
	Type string `koanf:"type"`

	// ClusterEnv is reported in the x-patsnap-proxy-cluster-env response header.
	ClusterEnv string `koanf:"cluster_env"`

	// Region pins this instance for the optional region/env prefilter and for
	// selecting among multi-region bucket owners under the uni-key feature.
	Region string `koanf:"region"`

	// Env is this instance's deployment environment (e.g. "prod", "staging"),
	// matched against ConditionPolicy.Range.Proxy.Env.
	Env string `koanf:"env"`

	// DevMode toggles dev-only behavior: account id "dev"->"prod" substitution,
	// the extra stacked backoff sleep, and appending DevProxyHost to ProxyHosts.
	DevMode bool `koanf:"dev_mode"`

	// UniKeyEnabled turns on single-access-key multi-account bucket routing.
	UniKeyEnabled bool `koanf:"uni_key_enabled"`

	// TencentSignatureEnabled turns on Tencent COS signature parsing.
	TencentSignatureEnabled bool `koanf:"tencent_signature_enabled"`

	// ConfigFetchingTimeout bounds each uni-key ListBuckets probe.
	ConfigFetchingTimeout time.Duration `koanf:"config_fetching_timeout"`

	// StateUpdateInterval is how often ProxyState is refreshed from the manager.
	StateUpdateInterval time.Duration `koanf:"state_update_interval"`
}

// ManagerConfig points at the control-plane manager service.
type ManagerConfig struct {
	// BaseAddress is the manager's base URL, e.g. "http://piam-manager:8080".
	BaseAddress string `koanf:"base_address"`

	// MetaKey is the passphrase the manager's payloads are AES-encrypted with.
	MetaKey string `koanf:"meta_key"`

	// RequestTimeout bounds each manager HTTP call.
	RequestTimeout time.Duration `koanf:"request_timeout"`
}

// AdminConfig holds the debug/admin HTTP surface configuration.
type AdminConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port"`
}

// MetricsConfig holds Prometheus metrics server configuration.
type MetricsConfig struct {
	Enabled bool `koanf:"enabled"`
	Port    int  `koanf:"port"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Level can be "debug", "info", "warn", "error". Mutable at runtime via
	// the admin debug toggle, independent of this startup value.
	Level string `koanf:"level"`

	// Format can be "json" or "text".
	Format string `koanf:"format"`
}

// TracingConfig holds OpenTelemetry tracing configuration.
type TracingConfig struct {
	Enabled            bool          `koanf:"enabled"`
	Endpoint           string        `koanf:"endpoint"`
	Insecure           bool          `koanf:"insecure"`
	ServiceVersion     string        `koanf:"service_version"`
	BatchTimeout       time.Duration `koanf:"batch_timeout"`
	MaxExportBatchSize int           `koanf:"max_export_batch_size"`
	SamplingRate       float64       `koanf:"sampling_rate"`
}

// AnalyticsConfig holds analytics configuration.
type AnalyticsConfig struct {
	Enabled    bool              `koanf:"enabled"`
	Publishers []PublisherConfig `koanf:"publishers"`
}

// PublisherConfig holds one analytics publisher's configuration.
type PublisherConfig struct {
	Enabled  bool                   `koanf:"enabled"`
	Type     string                 `koanf:"type"`
	Settings map[string]interface{} `koanf:"settings"`
}

// Load loads configuration from file, environment variables, and defaults.
// Priority: environment variables > config file > defaults.
//
// Go-style duration strings (e.g. "10s", "5m") are supported for all
// duration fields; the DecodeHook converts them to time.Duration.
func Load(configPath string) (*Config, error) {
	cfg := defaultConfig()

	k := koanf.New(".")

	if configPath != "" {
		if err := k.Load(file.Provider(configPath), toml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file: %w", err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", func(s string) string {
		s = strings.TrimPrefix(s, EnvPrefix)
		s = strings.ToLower(s)
		s = strings.ReplaceAll(s, "__", "%UNDERSCORE%")
		s = strings.ReplaceAll(s, "_", ".")
		s = strings.ReplaceAll(s, "%UNDERSCORE%", "_")
		return s
	}), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	if err := k.UnmarshalWithConf("", cfg, koanf.UnmarshalConf{
		DecoderConfig: &mapstructure.DecoderConfig{
			TagName:          "koanf",
			WeaklyTypedInput: true,
			Result:           cfg,
			DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		},
	}); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		Proxy: ProxyConfig{
			ListenAddr:            ":80",
			Type:                  "s3",
			ClusterEnv:            "unknown",
			DevMode:               false,
			UniKeyEnabled:         true,
			ConfigFetchingTimeout: 10 * time.Second,
			StateUpdateInterval:   30 * time.Second,
		},
		Manager: ManagerConfig{
			RequestTimeout: 10 * time.Second,
		},
		Admin: AdminConfig{
			Enabled: true,
			Port:    9002,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Port:    9003,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
		Tracing: TracingConfig{
			Enabled:            false,
			Endpoint:           "otel-collector:4317",
			Insecure:           true,
			ServiceVersion:     "1.0.0",
			BatchTimeout:       1 * time.Second,
			MaxExportBatchSize: 512,
			SamplingRate:       1.0,
		},
		Analytics: AnalyticsConfig{
			Enabled:    false,
			Publishers: []PublisherConfig{},
		},
	}
}

// Validate checks the loaded configuration for internally-consistent,
// usable values.
func (c *Config) Validate() error {
	if c.Proxy.ListenAddr == "" {
		return fmt.Errorf("proxy.listen_addr is required")
	}
	if c.Manager.BaseAddress == "" {
		return fmt.Errorf("manager.base_address is required")
	}
	if c.Manager.MetaKey == "" {
		return fmt.Errorf("manager.meta_key is required")
	}
	if c.Proxy.ConfigFetchingTimeout <= 0 {
		return fmt.Errorf("proxy.config_fetching_timeout must be positive")
	}
	if c.Proxy.StateUpdateInterval <= 0 {
		return fmt.Errorf("proxy.state_update_interval must be positive")
	}

	if c.Admin.Enabled {
		if c.Admin.Port <= 0 || c.Admin.Port > 65535 {
			return fmt.Errorf("invalid admin.port: %d (must be 1-65535)", c.Admin.Port)
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.Port <= 0 || c.Metrics.Port > 65535 {
			return fmt.Errorf("invalid metrics.port: %d (must be 1-65535)", c.Metrics.Port)
		}
		if c.Admin.Enabled && c.Metrics.Port == c.Admin.Port {
			return fmt.Errorf("metrics.port cannot be same as admin.port")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid logging.level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[c.Logging.Format] {
		return fmt.Errorf("invalid logging.format: %s (must be json or text)", c.Logging.Format)
	}

	if c.Analytics.Enabled {
		if err := c.validateAnalyticsConfig(); err != nil {
			return fmt.Errorf("analytics configuration validation failed: %v", err)
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.Endpoint == "" {
			return fmt.Errorf("tracing.endpoint is required when tracing is enabled")
		}
		if c.Tracing.BatchTimeout <= 0 {
			return fmt.Errorf("tracing.batch_timeout must be positive")
		}
		if c.Tracing.MaxExportBatchSize <= 0 {
			return fmt.Errorf("tracing.max_export_batch_size must be positive")
		}
		if c.Tracing.SamplingRate <= 0.0 || c.Tracing.SamplingRate > 1.0 {
			return fmt.Errorf("tracing.sampling_rate must be > 0.0 and <= 1.0, got %f", c.Tracing.SamplingRate)
		}
	}

	return nil
}

func (c *Config) validateAnalyticsConfig() error {
	for i, pub := range c.Analytics.Publishers {
		if !pub.Enabled {
			continue
		}
		if pub.Type == "" {
			return fmt.Errorf("analytics.publishers[%d].type is required when enabled", i)
		}
		switch pub.Type {
		case "moesif":
			if pub.Settings == nil {
				return fmt.Errorf("analytics.publishers[%d].settings is required for type 'moesif'", i)
			}
			rawAppID, ok := pub.Settings["application_id"]
			appID, okStr := rawAppID.(string)
			if !ok || !okStr || appID == "" {
				return fmt.Errorf("analytics.publishers[%d].settings.application_id is required and must be a non-empty string for type 'moesif'", i)
			}
			if rawBaseURL, ok := pub.Settings["moesif_base_url"]; ok && rawBaseURL != nil {
				baseURL, okStr := rawBaseURL.(string)
				if !okStr {
					return fmt.Errorf("analytics.publishers[%d].settings.moesif_base_url must be a string", i)
				}
				if baseURL != "" {
					if u, err := url.Parse(baseURL); err != nil || u.Scheme == "" || u.Host == "" {
						return fmt.Errorf("analytics.publishers[%d].settings.moesif_base_url must be a valid URL (e.g. https://api.moesif.net), got %q", i, baseURL)
					}
				}
			}
		default:
			return fmt.Errorf("unknown publisher type: %s", pub.Type)
		}
	}
	return nil
}
