package db

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/jackc/pgx/v5/tracelog"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMigrations_SortsAndSkips(t *testing.T) {
	source := fstest.MapFS{
		"010_late.sql":  {Data: []byte("SELECT 10;")},
		"002_next.sql":  {Data: []byte("SELECT 2;")},
		"001_first.sql": {Data: []byte("SELECT 1;")},
		"README.md":     {Data: []byte("docs")},
		"notes.sql":     {Data: []byte("no prefix")},
		"abc_bad.sql":   {Data: []byte("bad prefix")},
	}

	migrations, err := LoadMigrations(source)
	require.NoError(t, err)
	require.Len(t, migrations, 3)

	assert.Equal(t, 1, migrations[0].Version)
	assert.Equal(t, "001_first.sql", migrations[0].Name)
	assert.Equal(t, "SELECT 1;", migrations[0].SQL)
	assert.Equal(t, 2, migrations[1].Version)
	assert.Equal(t, 10, migrations[2].Version)
}

func TestEmbeddedMigrations(t *testing.T) {
	m := NewMigrator(nil)
	migrations, err := LoadMigrations(m.source)
	require.NoError(t, err)
	require.NotEmpty(t, migrations)

	core := migrations[0].SQL
	for _, table := range []string{"doctors", "patients", "appointments", "event_logs"} {
		assert.True(t, strings.Contains(core, "CREATE TABLE IF NOT EXISTS "+table), table)
	}
	assert.Contains(t, core, "appointments_scheduled_slot_idx")
}

func TestZerologLevel(t *testing.T) {
	assert.Equal(t, zerolog.DebugLevel, zerologLevel(tracelog.LogLevelDebug))
	assert.Equal(t, zerolog.WarnLevel, zerologLevel(tracelog.LogLevelWarn))
	assert.Equal(t, zerolog.ErrorLevel, zerologLevel(tracelog.LogLevelError))
	assert.Equal(t, zerolog.ErrorLevel, zerologLevel(tracelog.LogLevelNone))
}

func TestQueryTracerLevelFollowsLogger(t *testing.T) {
	assert.Equal(t, tracelog.LogLevelError, newQueryTracer(zerolog.Nop().Level(zerolog.InfoLevel)).LogLevel)
	assert.Equal(t, tracelog.LogLevelDebug, newQueryTracer(zerolog.Nop().Level(zerolog.DebugLevel)).LogLevel)
}
