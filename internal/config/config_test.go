package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ossyrian/mintypack/internal/config"
)

func TestDecodeFromTOML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	require.NoError(t, os.WriteFile(path, []byte(`
input = "Content.ggpk"
format_version = 4
offset = 16
length = -1
dry_run = true
log_level = "debug"
`), 0o644))

	v := viper.New()
	v.SetConfigFile(path)
	require.NoError(t, v.ReadInConfig())

	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))

	assert.Equal(t, config.Config{
		InputFile:     "Content.ggpk",
		FormatVersion: 4,
		Offset:        16,
		Length:        -1,
		DryRun:        true,
		LogLevel:      "debug",
	}, cfg)
}

func TestDecodeFromEnv(t *testing.T) {
	t.Setenv("MINTYPACK_SOURCE_DIR", "/srv/pack")
	t.Setenv("MINTYPACK_OUTPUT", "out.ggpk")

	v := viper.New()
	v.SetEnvPrefix("MINTYPACK")
	v.AutomaticEnv()
	// AutomaticEnv only serves keys viper already knows about.
	v.SetDefault("source_dir", "")
	v.SetDefault("output", "")

	var cfg config.Config
	require.NoError(t, v.Unmarshal(&cfg))
	assert.Equal(t, "/srv/pack", cfg.SourceDir)
	assert.Equal(t, "out.ggpk", cfg.OutputFile)
}
