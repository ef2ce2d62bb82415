package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	fs.String("rpc-url", "http://localhost:8000", "")
	fs.Uint("db-port", 5432, "")
	fs.Duration("period", time.Minute, "")
	fs.Bool("verbose", false, "")
	fs.StringSlice("assets", nil, "")
	return fs
}

func TestFile_Apply(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	err := os.WriteFile(path, []byte(`
rpc-url: https://rpc.example.org
db-port: 6543
period: 5m
verbose: true
assets:
  - USDC:GA5ZSEJYB37JRC5AVCIA5MOP4RHTM335X2KGX3IHOJAPP5RE34K4KZVN
  - EURC:GDHU6WRG4IEQXM5NZ4BMPKOXHW76MZM4Y2IEMFDVXBSDP6SJY4ITNPP2
`), 0o600)
	require.NoError(t, err)

	file, err := Load(path)
	require.NoError(t, err)

	fs := newFlagSet()
	require.NoError(t, fs.Parse([]string{"--db-port", "1234"}))
	require.NoError(t, file.Apply(fs))

	url, _ := fs.GetString("rpc-url")
	assert.Equal(t, "https://rpc.example.org", url)
	port, _ := fs.GetUint("db-port")
	assert.Equal(t, uint(1234), port, "explicit flags win")
	period, _ := fs.GetDuration("period")
	assert.Equal(t, 5*time.Minute, period)
	verbose, _ := fs.GetBool("verbose")
	assert.True(t, verbose)
	assets, _ := fs.GetStringSlice("assets")
	assert.Len(t, assets, 2)
}

func TestFile_Apply_Errors(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown option", "rpc: x"},
		{"bad value", "db-port: abc"},
		{"nested", "rpc-url: {a: b}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			file, err := Parse([]byte(tt.yaml))
			require.NoError(t, err)
			assert.Error(t, file.Apply(newFlagSet()))
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}
