package config

import (
	"os"
	"path/filepath"
	"strconv"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config represents the global ~/.parley/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`
}

// Session represents a per-session config.toml: where the backend lives, who
// we are, and the engine's tunables.
type Session struct {
	ServerURL  string `toml:"server_url"`  // REST base URL, e.g. http://localhost:5000/api
	SocketURL  string `toml:"socket_url"`  // event socket URL, e.g. ws://localhost:5000/ws
	Token      string `toml:"token"`       // bearer token for both paths
	UserID     string `toml:"user_id"`
	Username   string `toml:"username"`
	ListenAddr string `toml:"listen_addr"` // local API, loopback only

	PageSize      int `toml:"page_size"`
	DedupWindowMS int `toml:"dedup_window_ms"`
	TypingIdleMS  int `toml:"typing_idle_ms"`
}

// Load reads the global config from the given path.
func Load(path string) (*Config, error) {
	var cfg Config
	_, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Save writes the global config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}

// LoadSession reads a session config, fills defaults, and applies environment
// overrides. A missing file is not an error; env vars alone can configure a
// session. A .env file next to the config is honored if present.
func LoadSession(path string) (*Session, error) {
	var s Session
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &s); err != nil {
			return nil, err
		}
	}

	// Optional .env in the session dir; ignore if absent.
	_ = godotenv.Load(filepath.Join(filepath.Dir(path), ".env"))
	s.applyEnv()
	s.applyDefaults()
	return &s, nil
}

func (s *Session) applyEnv() {
	for env, dst := range map[string]*string{
		"PARLEY_SERVER_URL":  &s.ServerURL,
		"PARLEY_SOCKET_URL":  &s.SocketURL,
		"PARLEY_TOKEN":       &s.Token,
		"PARLEY_USER_ID":     &s.UserID,
		"PARLEY_USERNAME":    &s.Username,
		"PARLEY_LISTEN_ADDR": &s.ListenAddr,
	} {
		if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	if v := os.Getenv("PARLEY_PAGE_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			s.PageSize = n
		}
	}
}

func (s *Session) applyDefaults() {
	if s.ListenAddr == "" {
		s.ListenAddr = "127.0.0.1:7475"
	}
	if s.PageSize <= 0 {
		s.PageSize = 50
	}
	if s.DedupWindowMS <= 0 {
		s.DedupWindowMS = 10_000
	}
	if s.TypingIdleMS <= 0 {
		s.TypingIdleMS = 3_000
	}
}
