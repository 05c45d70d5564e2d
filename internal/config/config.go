// Package config provides viper-backed configuration loading for the
// supervisor, worker, and dispatcher processes (spec.md §6).
package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// SupervisorConfig holds the supervisor's tick-loop and enforcement
// tunables (spec.md §6 Supervisor configuration), plus the HTTP sink
// it hosts and the alert webhook it posts to.
type SupervisorConfig struct {
	SlotsRoot                string        `mapstructure:"slots_root"`
	RuntimeRoot              string        `mapstructure:"runtime_root"`
	NodeID                   string        `mapstructure:"node_id"`
	ListenAddr               string        `mapstructure:"listen_addr"`
	WorkerSecret             string        `mapstructure:"worker_secret"`
	AlertWebhookURL          string        `mapstructure:"alert_webhook_url"`
	HeartbeatTTLSeconds      int           `mapstructure:"heartbeat_ttl_seconds"`
	ScanIntervalSeconds      int           `mapstructure:"scan_interval_seconds"`
	MinRestartIntervalSeconds int          `mapstructure:"min_restart_interval_seconds"`
	AlertsMinSeconds         int           `mapstructure:"alerts_min_seconds"`
	ShutdownGraceSeconds     int           `mapstructure:"shutdown_grace_seconds"`
	WorkerHeartbeatIntervalSeconds int     `mapstructure:"worker_heartbeat_interval_seconds"`
}

// WorkerHeartbeatInterval returns WorkerHeartbeatIntervalSeconds as a
// duration; it is passed as the worker's heartbeat_interval_seconds
// positional argument (spec.md §6), defaulting to the original's 2s
// (original_source/core/slot_manager.py SlotManager.heartbeat_interval).
func (c SupervisorConfig) WorkerHeartbeatInterval() time.Duration {
	return time.Duration(c.WorkerHeartbeatIntervalSeconds) * time.Second
}

// HeartbeatTTL returns HeartbeatTTLSeconds as a duration.
func (c SupervisorConfig) HeartbeatTTL() time.Duration {
	return time.Duration(c.HeartbeatTTLSeconds) * time.Second
}

// ScanInterval returns ScanIntervalSeconds as a duration.
func (c SupervisorConfig) ScanInterval() time.Duration {
	return time.Duration(c.ScanIntervalSeconds) * time.Second
}

// MinRestartInterval returns MinRestartIntervalSeconds as a duration.
func (c SupervisorConfig) MinRestartInterval() time.Duration {
	return time.Duration(c.MinRestartIntervalSeconds) * time.Second
}

// AlertsMinInterval returns AlertsMinSeconds as a duration.
func (c SupervisorConfig) AlertsMinInterval() time.Duration {
	return time.Duration(c.AlertsMinSeconds) * time.Second
}

// ShutdownGrace returns ShutdownGraceSeconds as a duration: how long
// the supervisor waits for its HTTP server to shut down. Worker
// SIGTERM-to-SIGKILL escalation uses the supervisor's own fixed grace.
func (c SupervisorConfig) ShutdownGrace() time.Duration {
	return time.Duration(c.ShutdownGraceSeconds) * time.Second
}

// LoadSupervisorConfig reads supervisor configuration from an optional
// config file and the environment variable names spec.md §6 defines.
func LoadSupervisorConfig() (*SupervisorConfig, error) {
	v := newViper()
	v.SetDefault("slots_root", "./slots")
	v.SetDefault("runtime_root", "./runtime")
	v.SetDefault("node_id", "node-1")
	v.SetDefault("listen_addr", ":8090")
	v.SetDefault("worker_secret", "")
	v.SetDefault("alert_webhook_url", "")
	v.SetDefault("heartbeat_ttl_seconds", 30)
	v.SetDefault("scan_interval_seconds", 3)
	v.SetDefault("min_restart_interval_seconds", 5)
	v.SetDefault("alerts_min_seconds", 300)
	v.SetDefault("shutdown_grace_seconds", 5)
	v.SetDefault("worker_heartbeat_interval_seconds", 2)

	if err := readOptional(v); err != nil {
		return nil, err
	}

	var cfg SupervisorConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// DispatcherConfig holds one dispatcher process's tunables (spec.md §6
// Dispatcher process contract). Channel-specific webhook settings are
// resolved separately via {CHANNEL}_WEBHOOK_URL / {CHANNEL}_WEBHOOK_SECRET
// since the channel is a process argument, not a config key.
type DispatcherConfig struct {
	RuntimeRoot             string `mapstructure:"runtime_root"`
	PollSeconds             int    `mapstructure:"dispatcher_poll_seconds"`
	RatePerMinute           int    `mapstructure:"dispatcher_rate_per_minute"`
	DryRun                  bool   `mapstructure:"dispatcher_dry_run"`
	DryRunAdvance           bool   `mapstructure:"dispatcher_dry_run_advance"`
	DeliveryTimeoutSeconds  int    `mapstructure:"dispatcher_delivery_timeout_seconds"`
}

// PollInterval returns PollSeconds as a duration.
func (c DispatcherConfig) PollInterval() time.Duration {
	return time.Duration(c.PollSeconds) * time.Second
}

// DeliveryTimeout returns DeliveryTimeoutSeconds as a duration.
func (c DispatcherConfig) DeliveryTimeout() time.Duration {
	return time.Duration(c.DeliveryTimeoutSeconds) * time.Second
}

// LoadDispatcherConfig reads dispatcher configuration from environment
// variables, matching spec.md's DISPATCHER_* names.
func LoadDispatcherConfig() (*DispatcherConfig, error) {
	v := newViper()
	v.SetDefault("runtime_root", "./runtime")
	v.SetDefault("dispatcher_poll_seconds", 5)
	v.SetDefault("dispatcher_rate_per_minute", 20)
	v.SetDefault("dispatcher_dry_run", false)
	v.SetDefault("dispatcher_dry_run_advance", true)
	v.SetDefault("dispatcher_delivery_timeout_seconds", 10)

	if err := readOptional(v); err != nil {
		return nil, err
	}

	var cfg DispatcherConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ChannelWebhook resolves {CHANNEL}_WEBHOOK_URL and {CHANNEL}_WEBHOOK_SECRET
// for the named channel directly from the environment (unprefixed, per
// spec.md §6), since viper's struct-unmarshal can't model a dynamic
// per-channel key and these names are fixed by the process contract.
func ChannelWebhook(channel string) (url, secret string) {
	prefix := strings.ToUpper(channel) + "_WEBHOOK_"
	return os.Getenv(prefix + "URL"), os.Getenv(prefix + "SECRET")
}

// newViper builds a viper instance that reads an optional YAML config
// file, overridable by the literal environment variable names spec.md
// §6 gives each setting (HEARTBEAT_TTL_SECONDS, DISPATCHER_POLL_SECONDS,
// ...) rather than an application-wide prefix.
func newViper() *viper.Viper {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("/etc/nodecore")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func readOptional(v *viper.Viper) error {
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}
