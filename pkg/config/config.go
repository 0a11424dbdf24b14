package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// FormConfig describes one document that receives an injected form block.
type FormConfig struct {
	Document   string `mapstructure:"document"`
	Keyword    string `mapstructure:"keyword"`
	Template   string `mapstructure:"template"` // builtin name ("contact", "booking") or a file path
	Stylesheet string `mapstructure:"stylesheet"`
}

// Config stores all configuration for a mirror run.
type Config struct {
	StartURL       string   `mapstructure:"start_url"`
	SiteDomain     string   `mapstructure:"site_domain"`
	PreviewDomains []string `mapstructure:"preview_domains"`
	MaxDepth       int      `mapstructure:"max_depth"`
	OutputDir      string   `mapstructure:"output_dir"`
	LogLevel       string   `mapstructure:"log_level"`

	UserAgent         string        `mapstructure:"user_agent"`
	NavigationTimeout time.Duration `mapstructure:"navigation_timeout"`
	HydrationDelay    time.Duration `mapstructure:"hydration_delay"`
	DownloadTimeout   time.Duration `mapstructure:"download_timeout"`

	KeepRemoteHosts   []string     `mapstructure:"keep_remote_hosts"`
	InjectStylesheets []string     `mapstructure:"inject_stylesheets"`
	InjectScripts     []string     `mapstructure:"inject_scripts"`
	Forms             []FormConfig `mapstructure:"forms"`
	SuccessDocument   string       `mapstructure:"success_document"`

	InventoryFile string `mapstructure:"inventory_file"`
	ReportFile    string `mapstructure:"report_file"`
	MetricsFile   string `mapstructure:"metrics_file"`

	OptimizeMinBytes int64 `mapstructure:"optimize_min_bytes"`
	OptimizeMaxWidth int   `mapstructure:"optimize_max_width"`
	JPEGQuality      int   `mapstructure:"jpeg_quality"`

	PostgresURL   string `mapstructure:"postgres_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// NewViper returns a viper instance with defaults and MIRROR_* env overrides.
func NewViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix("MIRROR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("start_url", "")
	v.SetDefault("site_domain", "")
	v.SetDefault("preview_domains", []string{})
	v.SetDefault("max_depth", 5)
	v.SetDefault("output_dir", "dist")
	v.SetDefault("log_level", "info")
	v.SetDefault("user_agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36")
	v.SetDefault("navigation_timeout", 60*time.Second)
	v.SetDefault("hydration_delay", 3*time.Second)
	v.SetDefault("download_timeout", 10*time.Second)
	v.SetDefault("keep_remote_hosts", []string{})
	v.SetDefault("inject_stylesheets", []string{"assets/mirror-fix.css"})
	v.SetDefault("inject_scripts", []string{"assets/mirror-fix.js"})
	v.SetDefault("forms", []map[string]any{
		{"document": "contact.html", "keyword": "Get in touch", "template": "contact", "stylesheet": "assets/forms.css"},
		{"document": "book-inspection.html", "keyword": "so we can schedule", "template": "booking", "stylesheet": "assets/forms.css"},
	})
	v.SetDefault("success_document", "success.html")
	v.SetDefault("inventory_file", "asset_inventory.csv")
	v.SetDefault("report_file", "qa_report.json")
	v.SetDefault("metrics_file", "")
	v.SetDefault("optimize_min_bytes", 500*1024)
	v.SetDefault("optimize_max_width", 1920)
	v.SetDefault("jpeg_quality", 80)
	v.SetDefault("postgres_url", "")
	v.SetDefault("redis_addr", "")
	v.SetDefault("redis_password", "")
	v.SetDefault("redis_db", 0)
	return v
}

// Load reads the optional config file into v and returns the validated config.
func Load(v *viper.Viper, path string) (*Config, error) {
	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	if cfg.SiteDomain == "" && cfg.StartURL != "" {
		if u, err := url.Parse(cfg.StartURL); err == nil {
			cfg.SiteDomain = strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
		}
	}

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// RequireStartURL is checked by commands that talk to the live site.
func (c *Config) RequireStartURL() error {
	if c.StartURL == "" {
		return errors.New("start_url is required")
	}
	u, err := url.ParseRequestURI(c.StartURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return fmt.Errorf("start_url %q is not an absolute http(s) URL", c.StartURL)
	}
	return nil
}

func validate(cfg *Config) error {
	if cfg.OutputDir == "" {
		return errors.New("output_dir is required")
	}
	if cfg.MaxDepth < 0 {
		return errors.New("max_depth must be >= 0")
	}
	if cfg.NavigationTimeout < time.Second {
		return errors.New("navigation_timeout must be >= 1s")
	}
	if cfg.DownloadTimeout < time.Second {
		return errors.New("download_timeout must be >= 1s")
	}
	if cfg.HydrationDelay < 0 {
		return errors.New("hydration_delay must not be negative")
	}
	if cfg.JPEGQuality < 1 || cfg.JPEGQuality > 100 {
		return errors.New("jpeg_quality must be within 1..100")
	}
	for i, f := range cfg.Forms {
		if f.Document == "" || f.Template == "" {
			return fmt.Errorf("forms[%d]: document and template are required", i)
		}
	}
	return nil
}
