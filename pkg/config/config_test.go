package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, "/api/v1", cfg.APIPrefix)
	assert.Equal(t, 104, cfg.Schedule.MaxOccurrences)
	assert.Equal(t, 2*time.Minute, cfg.Events.CacheTTL)
	assert.Equal(t, "eduschedule:events", cfg.Feed.Channel)
	assert.True(t, cfg.Feed.Enabled)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("ENV", EnvProduction)
	t.Setenv("PORT", "9090")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("EVENTS_CACHE_TTL", "not-a-duration")
	t.Setenv("SCHEDULE_MAX_OCCURRENCES", "-3")
	t.Setenv("FEED_QUEUE_SIZE", "1024")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, EnvProduction, cfg.Env)
	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORS.AllowedOrigins)
	assert.Equal(t, 2*time.Minute, cfg.Events.CacheTTL)
	assert.Equal(t, 104, cfg.Schedule.MaxOccurrences)
	assert.Equal(t, 1024, cfg.Feed.QueueSize)
}

func TestScheduleLocationFallsBackToUTC(t *testing.T) {
	assert.Equal(t, time.UTC, ScheduleConfig{}.Location())
	assert.Equal(t, time.UTC, ScheduleConfig{Timezone: "Mars/Olympus"}.Location())
}
