package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoad_AppliesDefaultsWhenNoFileGiven(t *testing.T) {
	req := require.New(t)

	cfg, err := Load("")
	req.NoError(err)

	req.Equal("0.0.0.0", cfg.HTTP.Host)
	req.EqualValues(8080, cfg.HTTP.Port)
	req.Equal(10*time.Second, cfg.HTTP.ReadTimeout)
	req.Equal(30*time.Second, cfg.HTTP.WriteTimeout)
	req.Equal(20, cfg.RateLimiter.MaxRequests)
	req.Equal(60*time.Second, cfg.RateLimiter.Window)
	req.Equal(100, cfg.History.DefaultLimit)
}

func TestLoad_FileValuesOverrideDefaults(t *testing.T) {
	req := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
http:
  host: 127.0.0.1
  port: 9090
rate_limiter:
  max_requests: 5
rooms:
  - id: lobby
    name: Lobby
    events: ["chat.message"]
`
	req.NoError(os.WriteFile(path, []byte(contents), 0o644))

	cfg, err := Load(path)
	req.NoError(err)

	req.Equal("127.0.0.1", cfg.HTTP.Host)
	req.EqualValues(9090, cfg.HTTP.Port)
	req.Equal(5, cfg.RateLimiter.MaxRequests)
	req.Equal(60*time.Second, cfg.RateLimiter.Window)

	req.Len(cfg.Rooms, 1)
	req.Equal("lobby", cfg.Rooms[0].ID)
	req.Equal([]string{"chat.message"}, cfg.Rooms[0].Events)
}

func TestLoad_EnvOverridesBeatFileAndDefaults(t *testing.T) {
	req := require.New(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	contents := `
http:
  port: 9090
rate_limiter:
  max_requests: 5
`
	req.NoError(os.WriteFile(path, []byte(contents), 0o644))

	t.Setenv("DIALOGUE_HTTP_PORT", "7000")
	t.Setenv("DIALOGUE_RATE_LIMIT_MAX_REQUESTS", "99")

	cfg, err := Load(path)
	req.NoError(err)

	req.EqualValues(7000, cfg.HTTP.Port)
	req.Equal(99, cfg.RateLimiter.MaxRequests)
}

func TestLoad_MissingFileReturnsError(t *testing.T) {
	req := require.New(t)

	_, err := Load("/nonexistent/path/to/config.yaml")
	req.Error(err)
}
