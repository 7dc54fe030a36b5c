package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrymomot/posnotify/pkg/config"
)

type storeConfig struct {
	URL      string        `env:"CFGTEST_STORE_URL,required"`
	PoolSize int           `env:"CFGTEST_STORE_POOL" envDefault:"10"`
	Timeout  time.Duration `env:"CFGTEST_STORE_TIMEOUT" envDefault:"5s"`
}

func TestLoad(t *testing.T) {
	t.Setenv("CFGTEST_STORE_URL", "mongodb://localhost:27017")
	t.Setenv("CFGTEST_STORE_POOL", "25")

	var cfg storeConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "mongodb://localhost:27017", cfg.URL)
	assert.Equal(t, 25, cfg.PoolSize)
	assert.Equal(t, 5*time.Second, cfg.Timeout)

	t.Run("second load is cached", func(t *testing.T) {
		t.Setenv("CFGTEST_STORE_POOL", "99")
		var again storeConfig
		require.NoError(t, config.Load(&again))
		assert.Equal(t, cfg, again)
	})
}

type requiredConfig struct {
	Token string `env:"CFGTEST_REQUIRED_TOKEN,required"`
}

func TestLoad_FailureIsNotCached(t *testing.T) {
	var cfg requiredConfig
	err := config.Load(&cfg)
	require.ErrorIs(t, err, config.ErrParsingConfig)

	t.Setenv("CFGTEST_REQUIRED_TOKEN", "sk-live")
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "sk-live", cfg.Token)
}

func TestLoad_Nil(t *testing.T) {
	assert.ErrorIs(t, config.Load[storeConfig](nil), config.ErrNilPointer)
}

type badConfig struct {
	Port int `env:"CFGTEST_BAD_PORT"`
}

func TestMustLoad(t *testing.T) {
	t.Setenv("CFGTEST_BAD_PORT", "eighty")
	assert.Panics(t, func() {
		var cfg badConfig
		config.MustLoad(&cfg)
	})
}

type fileConfig struct {
	Sender string `env:"CFGTEST_FILE_SENDER"`
	Region string `env:"CFGTEST_FILE_REGION"`
}

func TestLoadEnvFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ".env.test")
	require.NoError(t, os.WriteFile(path, []byte("CFGTEST_FILE_SENDER=alerts@shop.example\nCFGTEST_FILE_REGION=from-file\n"), 0o600))

	t.Setenv("CFGTEST_FILE_REGION", "from-env")
	t.Cleanup(func() { os.Unsetenv("CFGTEST_FILE_SENDER") })

	require.NoError(t, config.LoadEnvFiles(filepath.Join(dir, "missing.env"), path))

	var cfg fileConfig
	require.NoError(t, config.Load(&cfg))
	assert.Equal(t, "alerts@shop.example", cfg.Sender)
	assert.Equal(t, "from-env", cfg.Region)
}

func TestLoadEnvFiles_Malformed(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".env.bad")
	require.NoError(t, os.WriteFile(path, []byte("CFGTEST_X='unterminated\n"), 0o600))
	assert.ErrorIs(t, config.LoadEnvFiles(path), config.ErrEnvFile)
}
