package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	chdir(t, t.TempDir())

	config, err := Load(New(""))
	require.NoError(t, err)

	assert.Equal(t, ":8081", config.HTTP.Address)
	assert.Equal(t, 30*time.Second, config.Dispatcher.TickInterval)
	assert.Equal(t, 8, config.Dispatcher.Concurrency)
	assert.Equal(t, 5, config.Dispatcher.MaxEventsPerTick)
	assert.Equal(t, StoreDriverMemory, config.Store.Driver)
	assert.Equal(t, 1000, config.Executor.MaxLoopIterations)
}

func TestLoad_FileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "flowcore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
http:
  address: ":9000"
dispatcher:
  tick_interval: 10s
  concurrency: 2
store:
  driver: postgres
  postgres_dsn: postgres://localhost/flowcore
log:
  level: debug
`), 0o600))

	t.Setenv("FLOWCORE_DISPATCHER_CONCURRENCY", "4")

	config, err := Load(New(path))
	require.NoError(t, err)

	assert.Equal(t, ":9000", config.HTTP.Address)
	assert.Equal(t, 10*time.Second, config.Dispatcher.TickInterval)
	assert.Equal(t, 4, config.Dispatcher.Concurrency)
	assert.Equal(t, StoreDriverPostgres, config.Store.Driver)
	assert.Equal(t, "debug", config.Log.Level)
}

func TestConfig_Validate(t *testing.T) {
	valid := func() Config {
		config, err := Load(New(""))
		require.NoError(t, err)

		return config
	}

	chdir(t, t.TempDir())

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(c *Config) {}},
		{name: "zero tick", mutate: func(c *Config) { c.Dispatcher.TickInterval = 0 }, wantErr: "tick_interval"},
		{name: "postgres without dsn", mutate: func(c *Config) { c.Store.Driver = StoreDriverPostgres }, wantErr: "postgres_dsn"},
		{name: "mongo without uri", mutate: func(c *Config) { c.Store.Driver = StoreDriverMongo }, wantErr: "mongo_uri"},
		{name: "unknown driver", mutate: func(c *Config) { c.Store.Driver = "sqlite" }, wantErr: "unknown store.driver"},
		{name: "no loop budget", mutate: func(c *Config) { c.Executor.MaxLoopIterations = 0 }, wantErr: "max_loop_iterations"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := valid()
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}

			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })
}
