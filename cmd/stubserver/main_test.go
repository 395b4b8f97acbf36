package main

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFlagDefaultsComeFromEnvironment(t *testing.T) {
	t.Setenv("STUB_PORT", "9191")
	t.Setenv("STUB_TOKEN_TTL", "90m")
	t.Setenv("STUB_DB_PATH", "/tmp/forum.db")

	f := newRootCmd().Flags()

	port, err := f.GetInt("port")
	require.NoError(t, err)
	assert.Equal(t, 9191, port)

	ttl, err := f.GetDuration("token-ttl")
	require.NoError(t, err)
	assert.Equal(t, 90*time.Minute, ttl)

	db, err := f.GetString("db")
	require.NoError(t, err)
	assert.Equal(t, "/tmp/forum.db", db)
}

func TestFlagDefaultsIgnoreMalformedEnvironment(t *testing.T) {
	t.Setenv("STUB_PORT", "eighty")
	t.Setenv("STUB_TOKEN_TTL", "soon")
	t.Setenv("STUB_DB_PATH", "")

	f := newRootCmd().Flags()

	port, _ := f.GetInt("port")
	assert.Equal(t, 8080, port)
	db, _ := f.GetString("db")
	assert.Equal(t, ":memory:", db)
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	t.Setenv("STUB_PORT", "9191")

	cmd := newRootCmd()
	require.NoError(t, cmd.ParseFlags([]string{"--port", "7000", "--seed"}))

	port, _ := cmd.Flags().GetInt("port")
	assert.Equal(t, 7000, port)
	seed, _ := cmd.Flags().GetBool("seed")
	assert.True(t, seed)
}

func TestRejectsPositionalArgs(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetArgs([]string{"extra"})
	assert.Error(t, cmd.Execute())
}
