package shared

import (
	_ "embed"
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

//go:embed config.example.toml
var exampleConf []byte

// Config represents the application configuration loaded from a TOML file.
type Config struct {
	Credentials CredentialsConfig `toml:"credentials"`
	Engine      EngineConfig      `toml:"engine"`
	Covers      CoversConfig      `toml:"covers"`
	Database    DatabaseConfig    `toml:"database"`
	Log         LogConfig         `toml:"log"`
}

// CredentialsConfig contains service-specific credentials.
type CredentialsConfig struct {
	Qobuz QobuzConfig `toml:"qobuz"`
}

// QobuzConfig contains catalog API credentials and transport settings.
type QobuzConfig struct {
	AppID         string  `toml:"app_id"`
	UserAuthToken string  `toml:"user_auth_token"`
	BaseURL       string  `toml:"base_url"`
	RateLimit     float64 `toml:"rate_limit"` // requests per second, 0 disables
}

// EngineConfig is the read-only configuration surface of the query engine.
type EngineConfig struct {
	Concurrency         ConcurrencyConfig `toml:"concurrency"`
	FlushIntervalMS     int               `toml:"flush_interval_ms"`
	DownloadAlbumCovers bool              `toml:"download_album_covers"`
	ArtistsSearchLimit  int               `toml:"artists_search_limit"`
	AlbumsSearchLimit   int               `toml:"albums_search_limit"`
	SongsSearchLimit    int               `toml:"songs_search_limit"`
	URLScheme           string            `toml:"url_scheme"`
}

// ConcurrencyConfig holds the per-stage in-flight request caps.
type ConcurrencyConfig struct {
	Artists      int `toml:"artists"`
	Albums       int `toml:"albums"`
	Songs        int `toml:"songs"`
	ArtistAlbums int `toml:"artist_albums"`
	AlbumSongs   int `toml:"album_songs"`
	AlbumCovers  int `toml:"album_covers"`
}

// FlushInterval returns the flush tick as a [time.Duration].
func (e EngineConfig) FlushInterval() time.Duration {
	return time.Duration(e.FlushIntervalMS) * time.Millisecond
}

// CoversConfig controls where downloaded album covers are written.
type CoversConfig struct {
	Dir string `toml:"dir"`
}

// DatabaseConfig contains database connection settings.
type DatabaseConfig struct {
	Path         string `toml:"path"`
	MaxOpenConns int    `toml:"max_open_conns"`
	MaxIdleConns int    `toml:"max_idle_conns"`
}

// LogConfig contains logger settings.
type LogConfig struct {
	Level string `toml:"level"`
}

// LoadConfig reads and parses a TOML configuration file from the specified path.
//
// Values missing from the file keep the embedded defaults.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	config := DefaultConfig()
	if err := toml.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// Validate rejects engine settings the query engine cannot run with.
func (c *Config) Validate() error {
	caps := []int{
		c.Engine.Concurrency.Artists,
		c.Engine.Concurrency.Albums,
		c.Engine.Concurrency.Songs,
		c.Engine.Concurrency.ArtistAlbums,
		c.Engine.Concurrency.AlbumSongs,
		c.Engine.Concurrency.AlbumCovers,
	}
	for _, n := range caps {
		if n <= 0 {
			return fmt.Errorf("%w: concurrency caps must be positive", ErrInvalidConfig)
		}
	}
	if c.Engine.FlushIntervalMS <= 0 {
		return fmt.Errorf("%w: flush_interval_ms must be positive", ErrInvalidConfig)
	}
	if c.Engine.ArtistsSearchLimit < 0 || c.Engine.AlbumsSearchLimit < 0 || c.Engine.SongsSearchLimit < 0 {
		return fmt.Errorf("%w: search limits cannot be negative", ErrInvalidConfig)
	}
	return nil
}

// DefaultConfig returns a Config with sensible defaults loaded from the embedded example config.
func DefaultConfig() *Config {
	var config Config
	if err := toml.Unmarshal(exampleConf, &config); err != nil {
		panic(fmt.Sprintf("failed to parse embedded default config: %v", err))
	}
	return &config
}

// CreateConfigFile creates a config.toml file at the specified path using the embedded example config.
func CreateConfigFile(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists at %s: %w", path, err)
	}

	if err := os.WriteFile(path, exampleConf, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
