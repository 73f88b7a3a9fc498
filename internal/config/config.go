package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// EnvPrefix is prepended to environment overrides, e.g. BOXLABEL_STORE_KIND
const EnvPrefix = "BOXLABEL"

// Store kinds
const (
	StoreYOLO   = "yolo"
	StoreSQLite = "sqlite"
	StoreHTTP   = "http"
)

// Vision providers
const (
	ProviderOllama   = "ollama"
	ProviderLlamaCpp = "llamacpp"
	ProviderSaliency = "saliency"
)

// Config holds the application configuration
type Config struct {
	Editor EditorConfig `mapstructure:"editor"`
	Render RenderConfig `mapstructure:"render"`
	Store  StoreConfig  `mapstructure:"store"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Server ServerConfig `mapstructure:"server"`
	Vision VisionConfig `mapstructure:"vision"`
	Output OutputConfig `mapstructure:"output"`
}

// EditorConfig holds the editing constants
type EditorConfig struct {
	MinBoxSize      float64           `mapstructure:"min_box_size"`
	UndoDepth       int               `mapstructure:"undo_depth"`
	MinZoom         float64           `mapstructure:"min_zoom"`
	MaxZoom         float64           `mapstructure:"max_zoom"`
	DefaultClass    int               `mapstructure:"default_class"`
	ContainerWidth  int               `mapstructure:"container_width"`
	ContainerHeight int               `mapstructure:"container_height"`
	Classes         map[string]string `mapstructure:"classes"`
}

// RenderConfig holds the overlay appearance
type RenderConfig struct {
	ShowLabels    bool `mapstructure:"show_labels"`
	BoxWidth      int  `mapstructure:"box_width"`
	SelectedWidth int  `mapstructure:"selected_width"`
}

// StoreConfig selects where labels are read and written
type StoreConfig struct {
	Kind       string        `mapstructure:"kind"`
	Root       string        `mapstructure:"root"`
	SQLitePath string        `mapstructure:"sqlite_path"`
	URL        string        `mapstructure:"url"`
	Token      string        `mapstructure:"token"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RedisConfig configures the optional label cache
type RedisConfig struct {
	Enabled  bool          `mapstructure:"enabled"`
	Addr     string        `mapstructure:"addr"`
	Password string        `mapstructure:"password"`
	DB       int           `mapstructure:"db"`
	TTL      time.Duration `mapstructure:"ttl"`
}

// ServerConfig configures the label backend
type ServerConfig struct {
	Addr         string        `mapstructure:"addr"`
	Mode         string        `mapstructure:"mode"`
	Token        string        `mapstructure:"token"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	BodyLimit    int           `mapstructure:"body_limit"`
}

// VisionConfig configures box suggestions
type VisionConfig struct {
	Provider      string  `mapstructure:"provider"`
	URL           string  `mapstructure:"url"`
	Model         string  `mapstructure:"model"`
	MinConfidence float64 `mapstructure:"min_confidence"`
	MaxBoxes      int     `mapstructure:"max_boxes"`
	MaxDim        int     `mapstructure:"max_dim"`
}

// OutputConfig holds configuration for exported files
type OutputConfig struct {
	DefaultFormat string `mapstructure:"default_format"`
	OutputDir     string `mapstructure:"output_dir"`
	Quality       int    `mapstructure:"quality"`
	CropSize      int    `mapstructure:"crop_size"`
}

// Default returns a configuration with default values
func Default() *Config {
	return &Config{
		Editor: EditorConfig{
			MinBoxSize:      0.01,
			UndoDepth:       10,
			MinZoom:         0.5,
			MaxZoom:         3,
			DefaultClass:    0,
			ContainerWidth:  1280,
			ContainerHeight: 800,
			Classes:         map[string]string{},
		},
		Render: RenderConfig{
			ShowLabels:    true,
			BoxWidth:      2,
			SelectedWidth: 3,
		},
		Store: StoreConfig{
			Kind:       StoreYOLO,
			Root:       "./datasets",
			SQLitePath: "./boxlabel.db",
			Timeout:    30 * time.Second,
		},
		Redis: RedisConfig{
			Addr: "localhost:6379",
			TTL:  10 * time.Minute,
		},
		Server: ServerConfig{
			Addr:         ":8080",
			Mode:         "debug",
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
			BodyLimit:    20 * 1024 * 1024,
		},
		Vision: VisionConfig{
			Provider:      ProviderSaliency,
			URL:           "http://localhost:11434",
			Model:         "llava",
			MinConfidence: 0.3,
			MaxBoxes:      50,
			MaxDim:        1024,
		},
		Output: OutputConfig{
			DefaultFormat: "jpg",
			OutputDir:     "./output",
			Quality:       85,
			CropSize:      224,
		},
	}
}

// Load reads the configuration file at path (YAML, JSON or TOML by extension)
// over the defaults and applies BOXLABEL_* environment overrides. An empty
// path uses defaults and the environment only.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, Default())

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	if cfg.Editor.Classes == nil {
		cfg.Editor.Classes = map[string]string{}
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper, c *Config) {
	for key, value := range c.settings() {
		v.SetDefault(key, value)
	}
}

// settings flattens the configuration into viper keys. Durations are written
// as strings so saved files stay readable.
func (c *Config) settings() map[string]any {
	return map[string]any{
		"editor.min_box_size":     c.Editor.MinBoxSize,
		"editor.undo_depth":       c.Editor.UndoDepth,
		"editor.min_zoom":         c.Editor.MinZoom,
		"editor.max_zoom":         c.Editor.MaxZoom,
		"editor.default_class":    c.Editor.DefaultClass,
		"editor.container_width":  c.Editor.ContainerWidth,
		"editor.container_height": c.Editor.ContainerHeight,
		"editor.classes":          c.Editor.Classes,

		"render.show_labels":    c.Render.ShowLabels,
		"render.box_width":      c.Render.BoxWidth,
		"render.selected_width": c.Render.SelectedWidth,

		"store.kind":        c.Store.Kind,
		"store.root":        c.Store.Root,
		"store.sqlite_path": c.Store.SQLitePath,
		"store.url":         c.Store.URL,
		"store.token":       c.Store.Token,
		"store.timeout":     c.Store.Timeout.String(),

		"redis.enabled":  c.Redis.Enabled,
		"redis.addr":     c.Redis.Addr,
		"redis.password": c.Redis.Password,
		"redis.db":       c.Redis.DB,
		"redis.ttl":      c.Redis.TTL.String(),

		"server.addr":          c.Server.Addr,
		"server.mode":          c.Server.Mode,
		"server.token":         c.Server.Token,
		"server.read_timeout":  c.Server.ReadTimeout.String(),
		"server.write_timeout": c.Server.WriteTimeout.String(),
		"server.body_limit":    c.Server.BodyLimit,

		"vision.provider":       c.Vision.Provider,
		"vision.url":            c.Vision.URL,
		"vision.model":          c.Vision.Model,
		"vision.min_confidence": c.Vision.MinConfidence,
		"vision.max_boxes":      c.Vision.MaxBoxes,
		"vision.max_dim":        c.Vision.MaxDim,

		"output.default_format": c.Output.DefaultFormat,
		"output.output_dir":     c.Output.OutputDir,
		"output.quality":        c.Output.Quality,
		"output.crop_size":      c.Output.CropSize,
	}
}

// SaveToFile saves configuration to a file; the format follows the extension
func (c *Config) SaveToFile(filename string) error {
	dir := filepath.Dir(filename)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	v := viper.New()
	for key, value := range c.settings() {
		v.Set(key, value)
	}
	if err := v.WriteConfigAs(filename); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Editor.MinBoxSize <= 0 || c.Editor.MinBoxSize >= 1 {
		return fmt.Errorf("editor.min_box_size must be between 0 and 1")
	}
	if c.Editor.UndoDepth < 1 {
		return fmt.Errorf("editor.undo_depth must be positive")
	}
	if c.Editor.MinZoom <= 0 || c.Editor.MaxZoom < c.Editor.MinZoom {
		return fmt.Errorf("editor zoom limits are invalid: min %g, max %g", c.Editor.MinZoom, c.Editor.MaxZoom)
	}

	switch c.Store.Kind {
	case StoreYOLO:
		if c.Store.Root == "" {
			return fmt.Errorf("store.root is required for the yolo store")
		}
	case StoreSQLite:
		if c.Store.SQLitePath == "" {
			return fmt.Errorf("store.sqlite_path is required for the sqlite store")
		}
	case StoreHTTP:
		if c.Store.URL == "" {
			return fmt.Errorf("store.url is required for the http store")
		}
	default:
		return fmt.Errorf("store.kind must be one of yolo, sqlite, http; got %q", c.Store.Kind)
	}

	if c.Redis.Enabled && c.Redis.Addr == "" {
		return fmt.Errorf("redis.addr is required when redis is enabled")
	}

	switch c.Vision.Provider {
	case ProviderOllama, ProviderLlamaCpp:
		if c.Vision.Model == "" {
			return fmt.Errorf("vision.model is required for provider %s", c.Vision.Provider)
		}
	case ProviderSaliency:
	default:
		return fmt.Errorf("vision.provider must be one of ollama, llamacpp, saliency; got %q", c.Vision.Provider)
	}
	if c.Vision.MinConfidence < 0 || c.Vision.MinConfidence > 1 {
		return fmt.Errorf("vision.min_confidence must be between 0 and 1")
	}

	if c.Output.Quality < 1 || c.Output.Quality > 100 {
		return fmt.Errorf("output.quality must be between 1 and 100")
	}
	return nil
}

// GetConfigPath returns the default configuration file path
func GetConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "./boxlabel.yaml"
	}
	return filepath.Join(home, ".config", "boxlabel", "config.yaml")
}
