// Package config loads and validates the TOML configuration for rouilleftpd.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Config is the top-level configuration file shape.
type Config struct {
	Server  ServerConfig  `toml:"server"`
	Quota   QuotaConfig   `toml:"quota"`
	TLS     TLSConfig     `toml:"tls"`
	Metrics MetricsConfig `toml:"metrics"`
}

// ServerConfig holds control/data channel and chroot settings.
type ServerConfig struct {
	ListenPort         int    `toml:"listen_port"`
	PasvAddress        string `toml:"pasv_address"`
	IPCKey             string `toml:"ipc_key"`
	ChrootDir          string `toml:"chroot_dir"`
	MinHomedir         string `toml:"min_homedir"`
	UploadBufferSize   int    `toml:"upload_buffer_size"`
	DownloadBufferSize int    `toml:"download_buffer_size"`
	PasswdFile         string `toml:"passwd_file"`
}

// QuotaConfig holds default quota/ratio values and persistence paths.
type QuotaConfig struct {
	DefaultQuota     int64  `toml:"default_quota"`
	DefaultRatio     string `toml:"default_ratio"`
	QuotaStorageFile string `toml:"quota_storage_file"`
	RatioStorageFile string `toml:"ratio_storage_file"`
	StatsStorageFile string `toml:"stats_storage_file"`
	EnableQuota      bool   `toml:"enable_quota"`
	EnableRatio      bool   `toml:"enable_ratio"`
}

// MetricsConfig holds the Prometheus scrape endpoint parameters.
type MetricsConfig struct {
	Enabled    bool   `toml:"enabled"`
	ListenAddr string `toml:"listen_addr"`
	Path       string `toml:"path"`
}

// TLSConfig holds FTPS parameters.
type TLSConfig struct {
	Enabled         bool   `toml:"enabled"`
	CertFile        string `toml:"cert_file"`
	KeyFile         string `toml:"key_file"`
	ImplicitTLS     bool   `toml:"implicit_tls"`
	ImplicitTLSPort int    `toml:"implicit_tls_port"`
}

const (
	defaultUploadBufferSize   = 256 * 1024
	defaultDownloadBufferSize = 128 * 1024
	defaultQuotaBytes         = 10 * 1024 * 1024 * 1024 // 10 GiB
	defaultRatio              = "1:1"
)

// Default returns a Config populated with the documented defaults.
func Default() Config {
	return Config{
		Server: ServerConfig{
			ListenPort:         21,
			PasvAddress:        "0.0.0.0",
			IPCKey:             "rouilleftpd",
			ChrootDir:          "/var/ftp",
			MinHomedir:         "/",
			UploadBufferSize:   defaultUploadBufferSize,
			DownloadBufferSize: defaultDownloadBufferSize,
			PasswdFile:         "/etc/rouilleftpd.passwd",
		},
		Quota: QuotaConfig{
			DefaultQuota:     defaultQuotaBytes,
			DefaultRatio:     defaultRatio,
			QuotaStorageFile: "ftp-data/quota.json",
			RatioStorageFile: "ftp-data/ratio.json",
			StatsStorageFile: "ftp-data/stats.json",
			EnableQuota:      true,
			EnableRatio:      true,
		},
		Metrics: MetricsConfig{
			ListenAddr: "127.0.0.1:9121",
			Path:       "/metrics",
		},
	}
}

// Load reads and parses the TOML file at path. Fields absent from the file
// keep their Default() values; non-positive buffer sizes and an empty
// default_ratio are reset to their defaults, other explicit zeros are kept.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Server.UploadBufferSize <= 0 {
		cfg.Server.UploadBufferSize = defaultUploadBufferSize
	}
	if cfg.Server.DownloadBufferSize <= 0 {
		cfg.Server.DownloadBufferSize = defaultDownloadBufferSize
	}
	if cfg.Quota.DefaultRatio == "" {
		cfg.Quota.DefaultRatio = defaultRatio
	}

	return cfg, nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.ListenPort <= 0 || c.Server.ListenPort > 65535 {
		return fmt.Errorf("server.listen_port out of range: %d", c.Server.ListenPort)
	}
	if c.Server.ChrootDir == "" {
		return errors.New("server.chroot_dir is required")
	}
	if c.Server.MinHomedir == "" {
		return errors.New("server.min_homedir is required")
	}
	if c.Server.PasswdFile == "" {
		return errors.New("server.passwd_file is required")
	}

	if c.Metrics.Enabled && c.Metrics.ListenAddr == "" {
		return errors.New("metrics.listen_addr is required when metrics.enabled is true")
	}

	if c.TLS.Enabled {
		if c.TLS.CertFile == "" || c.TLS.KeyFile == "" {
			return errors.New("tls.cert_file and tls.key_file are required when tls.enabled is true")
		}
		if c.TLS.ImplicitTLS && (c.TLS.ImplicitTLSPort <= 0 || c.TLS.ImplicitTLSPort > 65535) {
			return fmt.Errorf("tls.implicit_tls_port out of range: %d", c.TLS.ImplicitTLSPort)
		}
	}

	return nil
}

// QuotaFlushInterval is the write-back cadence of the quota cache.
const QuotaFlushInterval = 5 * time.Second
