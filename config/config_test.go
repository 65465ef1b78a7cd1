package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "test-secret")
	t.Setenv("POSTGRESQL_REPLICA_DSNS", "host=r1, ,host=r2")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8888", cfg.ServerPort)
	assert.Equal(t, "skillswap", cfg.RedisPrefix)
	assert.Equal(t, 20, cfg.UsernameMaxAttempts)
	assert.Equal(t, 5*time.Second, cfg.UsernameCheckTimeout)
	assert.Equal(t, "English", cfg.DefaultLanguage)
	assert.Equal(t, 25*time.Second, cfg.OnboardingEventsWait)
	assert.Equal(t, []string{"host=r1", "host=r2"}, cfg.ReplicaDSNs())
	assert.Equal(t, cfg.ServerPort, Cfg.ServerPort)
}

func TestLoadRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")

	_, err := Load()
	assert.ErrorContains(t, err, "JWT_SECRET")
}

func TestValidateCSRFNeedsSessionSecret(t *testing.T) {
	cfg := Config{JWTSecret: "x", UsernameMaxAttempts: 1, WorkerConcurrency: 1, OTelSampler: 1, CSRFEnabled: true, SessionSecret: "short"}
	assert.Error(t, cfg.Validate())

	cfg.SessionSecret = "0123456789abcdef0123456789abcdef"
	assert.NoError(t, cfg.Validate())
}

func TestDSN(t *testing.T) {
	cfg := Config{
		PostgreSQLHost: "db", PostgreSQLPort: "5432", PostgreSQLUser: "u", PostgreSQLPassword: "p",
		PostgreSQLDatabase: "skillswap", PostgreSQLSSLMode: "disable", PostgreSQLSchema: "public",
		RabbitMQUsername: "guest", RabbitMQPassword: "guest", RabbitMQAddr: "mq", RabbitMQPort: "5672", RabbitMQVhost: "/",
	}
	assert.Equal(t, "host=db port=5432 user=u password=p dbname=skillswap sslmode=disable search_path=public", cfg.GetDSN())
	assert.Equal(t, "amqp://guest:guest@mq:5672/", cfg.GetRabbitMQURL())
}

func TestLoadClientWithoutServerSecrets(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("SKILLSWAP_TOKEN", "tok")
	t.Setenv("COLLABORATOR_HTTP_TIMEOUT", "3s")

	cfg, err := LoadClient()
	require.NoError(t, err)
	assert.Equal(t, "tok", cfg.AccessToken)
	assert.Equal(t, 3*time.Second, cfg.HTTPTimeout)
	assert.Equal(t, "http://localhost:8888", cfg.BaseURL)
	assert.Equal(t, ".skillswap", cfg.StateDir)
}
