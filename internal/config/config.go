package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"incmgr/internal/crm"
)

// Config is the server configuration.
type Config struct {
	Listen         string        `yaml:"listen"`
	DBPath         string        `yaml:"db_path"`
	CRMBaseURL     string        `yaml:"crm_base_url"`
	SessionTTL     time.Duration `yaml:"session_ttl"`
	UploadMaxBytes int64         `yaml:"upload_max_bytes"`
	CompanyName    string        `yaml:"company_name"`
	// UploadDir holds INC photos.
	UploadDir string `yaml:"upload_dir"`
	// PrinterAddr is the host:port of the ZPL label printer. Empty disables
	// label printing.
	PrinterAddr string `yaml:"printer_addr"`
	// Representatives restricts the INC representative field when set.
	Representatives []string `yaml:"representatives"`
	// PageSize is the number of INCs per listing page.
	PageSize int `yaml:"page_size"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Listen:         ":9000",
		DBPath:         "incmgr.db",
		SessionTTL:     24 * time.Hour,
		UploadMaxBytes: 16 << 20,
		CompanyName:    "Your Company",
		UploadDir:      "uploads",
		PageSize:       20,
	}
}

// Load reads path (if non-empty) over the defaults, then applies INCMGR_*
// environment overrides.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}
	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup("INCMGR_LISTEN"); ok && v != "" {
		c.Listen = v
	}
	if v, ok := lookup("INCMGR_DB"); ok && v != "" {
		c.DBPath = v
	}
	if v, ok := lookup("INCMGR_CRM_BASE_URL"); ok {
		c.CRMBaseURL = v
	}
	if v, ok := lookup("INCMGR_COMPANY_NAME"); ok && v != "" {
		c.CompanyName = v
	}
	if v, ok := lookup("INCMGR_UPLOAD_DIR"); ok && v != "" {
		c.UploadDir = v
	}
	if v, ok := lookup("INCMGR_PRINTER_ADDR"); ok {
		c.PrinterAddr = v
	}
	if v, ok := lookup("INCMGR_SESSION_TTL"); ok && v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("INCMGR_SESSION_TTL: %w", err)
		}
		c.SessionTTL = d
	}
	if v, ok := lookup("INCMGR_UPLOAD_MAX_BYTES"); ok && v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("INCMGR_UPLOAD_MAX_BYTES: %w", err)
		}
		c.UploadMaxBytes = n
	}
	return nil
}

// Validate checks the configuration for values the server cannot run with.
func (c Config) Validate() error {
	if c.Listen == "" {
		return errors.New("listen address is required")
	}
	if c.DBPath == "" {
		return errors.New("db_path is required")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session_ttl must be positive")
	}
	if c.UploadMaxBytes <= 0 {
		return errors.New("upload_max_bytes must be positive")
	}
	if c.UploadDir == "" {
		return errors.New("upload_dir is required")
	}
	if c.PageSize <= 0 {
		return errors.New("page_size must be positive")
	}
	if c.PrinterAddr != "" {
		if _, _, err := net.SplitHostPort(c.PrinterAddr); err != nil {
			return fmt.Errorf("printer_addr: %w", err)
		}
	}
	if err := crm.ValidateBase(c.CRMBaseURL); err != nil {
		return fmt.Errorf("crm_base_url: %w", err)
	}
	return nil
}
