package resources

import (
	"io/ioutil"
	"testing"

	"github.com/activecm/threatsync/config"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitLoggerLevels(t *testing.T) {
	cases := map[int]log.Level{
		0: log.ErrorLevel,
		1: log.WarnLevel,
		2: log.InfoLevel,
		3: log.DebugLevel,
	}
	for level, expected := range cases {
		logger := initLogger(&config.LogStaticCfg{LogLevel: level})
		assert.Equal(t, expected, logger.Level)
		assert.Equal(t, ioutil.Discard, logger.Out)
	}
}

func TestAddFileLogger(t *testing.T) {
	logger := initLogger(&config.LogStaticCfg{LogLevel: 2})
	dir := t.TempDir()
	require.NoError(t, addFileLogger(logger, dir))

	for _, level := range []log.Level{log.DebugLevel, log.InfoLevel, log.ErrorLevel} {
		assert.Len(t, logger.Hooks[level], 1)
	}

	entries, err := ioutil.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
	assert.True(t, entries[0].IsDir())
}
