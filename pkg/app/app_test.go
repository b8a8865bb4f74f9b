package app

import (
	"context"
	"errors"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teslashibe/go-temi/pkg/tour"
)

func testConfig(t *testing.T) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.HTTPPort = "0"
	cfg.JournalPath = filepath.Join(t.TempDir(), "journal.db")
	cfg.OpenAI.APIKey = ""
	return cfg
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		adjust func(*Config)
		field  string
	}{
		{"defaults", func(*Config) {}, ""},
		{"no port", func(c *Config) { c.HTTPPort = "" }, "HTTPPort"},
		{"unknown mode", func(c *Config) { c.Behavior.Mode = "dance" }, "Behavior.Mode"},
		{"unimplemented mode", func(c *Config) { c.Behavior.Mode = "distance" }, "Behavior.Mode"},
		{"zero tick", func(c *Config) { c.Timing.Tick = 0 }, "Timing"},
		{"thinking bounds", func(c *Config) { c.Dialogue.ThinkingMin = time.Minute }, "Dialogue"},
		{"no attempts", func(c *Config) { c.Interrupt.MaxAttempts = 0 }, "Interrupt.MaxAttempts"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := testConfig(t)
			tt.adjust(&cfg)
			err := cfg.Validate()
			if tt.field == "" {
				assert.NoError(t, err)
				return
			}
			var cerr *ConfigError
			require.True(t, errors.As(err, &cerr))
			assert.Equal(t, tt.field, cerr.Field)
		})
	}
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Behavior.Mode = "angle"
	_, err := New(cfg, nil)
	assert.Error(t, err)
}

func TestInit(t *testing.T) {
	dir := t.TempDir()
	itinerary := filepath.Join(dir, "tour.yaml")
	require.NoError(t, os.WriteFile(itinerary, []byte(`
welcome: Welcome.
stops:
  - location: lobby
    script: This is the lobby.
`), 0o600))

	cfg := testConfig(t)
	cfg.Behavior.Mode = "tour"
	cfg.Behavior.ItineraryFile = itinerary
	cfg.Behavior.GreetMode = true

	a, err := New(cfg, nil)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	defer a.Shutdown()

	assert.Equal(t, tour.ModeTour, a.Orchestrator().Mode())
	assert.True(t, a.Orchestrator().GreetMode())
	assert.Len(t, a.Orchestrator().Poses(), 4)

	resp, err := a.Web().App().Test(httptest.NewRequest("GET", "/api/status", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)

	resp, err = a.Web().App().Test(httptest.NewRequest("GET", "/api/journal", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

func TestInitMissingItinerary(t *testing.T) {
	cfg := testConfig(t)
	cfg.Behavior.ItineraryFile = filepath.Join(t.TempDir(), "missing.yaml")

	a, err := New(cfg, nil)
	require.NoError(t, err)
	assert.Error(t, a.Init())
	a.Shutdown()
}

func TestRunRequiresInit(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	assert.Error(t, a.Run(context.Background()))
}

func TestRunWaitsForRobotAndStops(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	require.NoError(t, a.Init())
	defer a.Shutdown()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Run(ctx) }()

	time.Sleep(50 * time.Millisecond)
	assert.False(t, a.Orchestrator().Running())

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}
