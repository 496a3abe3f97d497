package config

// DefaultConfig returns a Config with every field at its spec §6 default,
// suitable for a memory-backed, single-node, no-auth development run.
func DefaultConfig() *Config {
	cfg := &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8443,
		},
		Storage: StorageConfig{
			Type: "memory",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "pretty",
			Output: "stdout",
		},
		Protocol: ProtocolConfig{
			HeartbeatIntervalSeconds: 30,
			SessionTimeoutSeconds:    120,
			MaxHopCount:              10,
		},
	}
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their spec §6 defaults. It is
// idempotent and safe to call after unmarshalling a partial file.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8443
	}
	if cfg.Storage.Type == "" {
		cfg.Storage.Type = "memory"
	}
	if cfg.Storage.Cleanup.CDMRetentionHours == 0 {
		cfg.Storage.Cleanup.CDMRetentionHours = 168
	}
	if cfg.Storage.Cleanup.ObjectRetentionHours == 0 {
		cfg.Storage.Cleanup.ObjectRetentionHours = 720
	}
	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "pretty"
	}
	if cfg.Logging.Output == "" {
		cfg.Logging.Output = "stdout"
	}
	if cfg.Protocol.HeartbeatIntervalSeconds == 0 {
		cfg.Protocol.HeartbeatIntervalSeconds = 30
	}
	if cfg.Protocol.SessionTimeoutSeconds == 0 {
		cfg.Protocol.SessionTimeoutSeconds = 120
	}
	if cfg.Protocol.MaxHopCount == 0 {
		cfg.Protocol.MaxHopCount = 10
	}
}
