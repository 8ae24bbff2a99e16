// Package config loads the pagecap command's YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	pagecap "github.com/porticus-lab/go-pagecap"
)

// Config is the top-level configuration.
type Config struct {
	Browser BrowserConfig `yaml:"browser"`
	Reader  ReaderConfig  `yaml:"reader"`
	Timing  TimingConfig  `yaml:"timing"`
	Output  OutputConfig  `yaml:"output"`
	Server  ServerConfig  `yaml:"server"`
}

// BrowserConfig controls Chrome.
type BrowserConfig struct {
	ChromePath   string        `yaml:"chrome_path"`
	AutoDownload bool          `yaml:"auto_download"`
	NoSandbox    bool          `yaml:"no_sandbox"`
	Headful      bool          `yaml:"headful"`
	Stealth      bool          `yaml:"stealth"`
	Timeout      time.Duration `yaml:"timeout"` // page load
}

// ReaderConfig describes the host reader.
type ReaderConfig struct {
	ImageID      string `yaml:"image_id"`
	MinDimension int    `yaml:"min_dimension"`
	PageNumber   string `yaml:"page_number_selector"`
	PageCount    string `yaml:"page_count_selector"`
	Next         string `yaml:"next_selector"`
	Limit        int    `yaml:"limit"`
	MaxFailures  int    `yaml:"max_failures"`
}

// TimingConfig overrides the capture loop's timeouts and delays.
type TimingConfig struct {
	ProbeTimeout   time.Duration `yaml:"probe_timeout"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
	FirstSettle    time.Duration `yaml:"first_settle"`
	AdvanceSettle  time.Duration `yaml:"advance_settle"`
}

// OutputConfig controls the generated document.
type OutputConfig struct {
	Dir       string  `yaml:"dir"`
	PageSize  string  `yaml:"page_size"` // a3 | a4 | a5 | letter | legal | tabloid
	Landscape bool    `yaml:"landscape"`
	Margin    float64 `yaml:"margin"`   // cm
	Renderer  string  `yaml:"renderer"` // pdfcpu | chrome
}

// ServerConfig controls the HTTP control API.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

var pageSizes = map[string]pagecap.PageSize{
	"a3":      pagecap.A3,
	"a4":      pagecap.A4,
	"a5":      pagecap.A5,
	"letter":  pagecap.Letter,
	"legal":   pagecap.Legal,
	"tabloid": pagecap.Tabloid,
}

// Default returns the configuration used without a file.
func Default() *Config {
	var cfg Config
	cfg.applyDefaults()
	return &cfg
}

// LoadFile reads a YAML configuration file.
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: %s: %w", path, err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Browser.Timeout <= 0 {
		c.Browser.Timeout = 30 * time.Second
	}
	if c.Reader.ImageID == "" {
		c.Reader.ImageID = "page-image"
	}
	if c.Reader.Limit <= 0 {
		c.Reader.Limit = 50
	}
	if c.Output.Dir == "" {
		c.Output.Dir = "."
	}
	if c.Output.PageSize == "" {
		c.Output.PageSize = "a4"
	}
	if c.Output.Renderer == "" {
		c.Output.Renderer = "pdfcpu"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = "127.0.0.1:8765"
	}
}

// Validate reports settings that cannot be used.
func (c *Config) Validate() error {
	if _, ok := pageSizes[strings.ToLower(c.Output.PageSize)]; !ok {
		return fmt.Errorf("config: unknown page size %q", c.Output.PageSize)
	}
	switch c.Output.Renderer {
	case "pdfcpu", "chrome":
	default:
		return fmt.Errorf("config: unknown renderer %q", c.Output.Renderer)
	}
	if c.Output.Margin < 0 {
		return fmt.Errorf("config: negative margin %v", c.Output.Margin)
	}
	return nil
}

// CapturerOptions translates the configuration into capturer options.
func (c *Config) CapturerOptions(logger *slog.Logger) []pagecap.Option {
	opts := []pagecap.Option{
		pagecap.WithTimeout(c.Browser.Timeout),
		pagecap.WithImageID(c.Reader.ImageID),
		pagecap.WithSelectors(pagecap.Selectors{
			PageNumber: c.Reader.PageNumber,
			PageCount:  c.Reader.PageCount,
			Next:       c.Reader.Next,
		}),
		pagecap.WithTiming(pagecap.Timing{
			ProbeTimeout:   c.Timing.ProbeTimeout,
			CaptureTimeout: c.Timing.CaptureTimeout,
			FirstSettle:    c.Timing.FirstSettle,
			AdvanceSettle:  c.Timing.AdvanceSettle,
		}),
	}
	if logger != nil {
		opts = append(opts, pagecap.WithLogger(logger))
	}
	if c.Browser.ChromePath != "" {
		opts = append(opts, pagecap.WithChromePath(c.Browser.ChromePath))
	}
	if c.Browser.AutoDownload {
		opts = append(opts, pagecap.WithAutoDownload())
	}
	if c.Browser.NoSandbox {
		opts = append(opts, pagecap.WithNoSandbox())
	}
	if c.Browser.Headful {
		opts = append(opts, pagecap.WithHeadful())
	}
	if c.Browser.Stealth {
		opts = append(opts, pagecap.WithStealth())
	}
	if c.Reader.MinDimension > 0 {
		opts = append(opts, pagecap.WithMinDimension(c.Reader.MinDimension))
	}
	if c.Reader.MaxFailures > 0 {
		opts = append(opts, pagecap.WithMaxConsecutiveFailures(c.Reader.MaxFailures))
	}
	if c.Output.Renderer == "chrome" {
		opts = append(opts, pagecap.WithChromeRenderer())
	}
	return opts
}

// PageConfig returns the output page description.
func (c *Config) PageConfig() *pagecap.PageConfig {
	pc := &pagecap.PageConfig{
		Size:   pageSizes[strings.ToLower(c.Output.PageSize)],
		Margin: c.Output.Margin,
	}
	if c.Output.Landscape {
		pc.Orientation = pagecap.Landscape
	}
	return pc
}
