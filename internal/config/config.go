// Package config loads the node's configuration surface (spec §6) from a
// YAML file, environment variables, and defaults, following the teacher
// pack's viper + mapstructure + validator pattern (marmos91-dittofs's
// pkg/config).
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/tamtunnel/spacecomms/internal/model"
)

// Config is the top-level node configuration.
type Config struct {
	Node     NodeConfig     `mapstructure:"node" yaml:"node"`
	Server   ServerConfig   `mapstructure:"server" yaml:"server"`
	API      APIConfig      `mapstructure:"api" yaml:"api"`
	Peers    []PeerConfig   `mapstructure:"peers" yaml:"peers,omitempty"`
	Storage  StorageConfig  `mapstructure:"storage" yaml:"storage"`
	Logging  LoggingConfig  `mapstructure:"logging" yaml:"logging"`
	Protocol ProtocolConfig `mapstructure:"protocol" yaml:"protocol"`
}

// NodeConfig identifies this node (spec §3 "node_id", §6 "node.{id,name}").
type NodeConfig struct {
	ID   string `mapstructure:"id" validate:"required" yaml:"id"`
	Name string `mapstructure:"name" yaml:"name,omitempty"`
}

// TLSConfig configures the reference HTTP/2 transport's TLS listener.
type TLSConfig struct {
	Enabled  bool   `mapstructure:"enabled" yaml:"enabled"`
	CertPath string `mapstructure:"cert_path" yaml:"cert_path,omitempty"`
	KeyPath  string `mapstructure:"key_path" yaml:"key_path,omitempty"`
}

// ServerConfig is the inbound listener's bind address and TLS settings.
type ServerConfig struct {
	Host string    `mapstructure:"host" yaml:"host"`
	Port int       `mapstructure:"port" validate:"min=1,max=65535" yaml:"port"`
	TLS  TLSConfig `mapstructure:"tls" yaml:"tls"`
}

// APITokenConfig is one bearer token entry (spec §6 "api.auth.tokens[]").
type APITokenConfig struct {
	ID          string   `mapstructure:"id" yaml:"id"`
	Secret      string   `mapstructure:"secret" yaml:"secret"`
	Permissions []string `mapstructure:"permissions" validate:"dive,oneof=read write admin" yaml:"permissions"`
}

// AuthConfig gates the local ingest/query surface (spec §6 "Authorization").
type AuthConfig struct {
	Enabled bool             `mapstructure:"enabled" yaml:"enabled"`
	Tokens  []APITokenConfig `mapstructure:"tokens" yaml:"tokens,omitempty"`
}

// APIConfig configures the local HTTP ingest/query surface (spec §6).
type APIConfig struct {
	Auth AuthConfig `mapstructure:"auth" yaml:"auth"`
}

// PeerConfig is one statically-configured peer entry (spec §6 "peers[]").
type PeerConfig struct {
	ID        string            `mapstructure:"id" validate:"required" yaml:"id"`
	Address   string            `mapstructure:"address" validate:"required" yaml:"address"`
	AuthToken string            `mapstructure:"auth_token" yaml:"auth_token,omitempty"`
	Policies  model.PeerPolicy  `mapstructure:"policies" yaml:"policies,omitempty"`
}

// CleanupConfig configures the storage garbage collector (spec §4.3).
type CleanupConfig struct {
	Enabled              bool `mapstructure:"enabled" yaml:"enabled"`
	CDMRetentionHours    int  `mapstructure:"cdm_retention_hours" yaml:"cdm_retention_hours"`
	ObjectRetentionHours int  `mapstructure:"object_retention_hours" yaml:"object_retention_hours"`
}

// StorageConfig selects and configures the record store backend (spec §4.3, §6).
type StorageConfig struct {
	Type     string        `mapstructure:"type" validate:"oneof=memory file" yaml:"type"`
	FilePath string        `mapstructure:"file_path" yaml:"file_path,omitempty"`
	Cleanup  CleanupConfig `mapstructure:"cleanup" yaml:"cleanup"`
}

// LoggingConfig controls structured log output (spec §6 "logging.*").
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"omitempty,oneof=debug info warn error" yaml:"level"`
	Format string `mapstructure:"format" validate:"omitempty,oneof=json pretty" yaml:"format"`
	Output string `mapstructure:"output" yaml:"output,omitempty"`
}

// ProtocolConfig tunes session and routing behavior (spec §6 "protocol.*").
type ProtocolConfig struct {
	HeartbeatIntervalSeconds int `mapstructure:"heartbeat_interval_seconds" validate:"gt=0" yaml:"heartbeat_interval_seconds"`
	SessionTimeoutSeconds    int `mapstructure:"session_timeout_seconds" validate:"gt=0" yaml:"session_timeout_seconds"`
	MaxHopCount              int `mapstructure:"max_hop_count" validate:"gt=0" yaml:"max_hop_count"`
}

func (p ProtocolConfig) HeartbeatInterval() time.Duration {
	return time.Duration(p.HeartbeatIntervalSeconds) * time.Second
}

func (p ProtocolConfig) SessionTimeout() time.Duration {
	return time.Duration(p.SessionTimeoutSeconds) * time.Second
}

// Load starts from the defaults, overlays the config file (configPath, or
// a "spacecomms" config file in the working directory when configPath is
// empty)
// with environment variables prefixed SPACECOMMS_ taking precedence over
// file values, fills any field still zero with its default, then validates
// the result. Environment variables are applied only when a file is found.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	found, err := readConfigFile(v)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if found {
		if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		))); err != nil {
			return nil, fmt.Errorf("unmarshal config: %w", err)
		}
	}

	ApplyDefaults(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("SPACECOMMS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("spacecomms")
		v.SetConfigType("yaml")
	}
}

func readConfigFile(v *viper.Viper) (bool, error) {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			return false, nil
		}
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("read config file: %w", err)
	}
	return true, nil
}

// SaveConfig writes cfg as YAML, preserving yaml tags.
func SaveConfig(cfg *Config, path string) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o600)
}
