package conf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaults(t *testing.T) {
	cfg := NewCfg().Load(nil)

	assert.Equal(t, 16384, cfg.PageSize)
	assert.Equal(t, 8192, cfg.MaxPages)
	assert.Equal(t, "data", cfg.DataDir)
	assert.Equal(t, time.Duration(0), cfg.FlushIntervalDuration)
	assert.Equal(t, 256, cfg.VictimSearchRounds)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadFromIniFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "my.ini")
	content := `
[pagecache]
page_size            = 4096
max_pages            = 128
data_dir             = /tmp/xpc
flush_interval       = 250ms
victim_search_rounds = 32

[logs]
log_level = debug
log_infos = /tmp/xpc/info.log
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg := NewCfg().Load(&CommandLineArgs{ConfigPath: path})

	assert.Equal(t, 4096, cfg.PageSize)
	assert.Equal(t, 128, cfg.MaxPages)
	assert.Equal(t, filepath.Clean("/tmp/xpc"), cfg.DataDir)
	assert.Equal(t, 250*time.Millisecond, cfg.FlushIntervalDuration)
	assert.Equal(t, 32, cfg.VictimSearchRounds)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, "/tmp/xpc/info.log", cfg.LogInfos)
}

func TestInvalidFlushIntervalDisablesBackgroundFlush(t *testing.T) {
	cfg := NewCfg()
	cfg.FlushInterval = "often"
	cfg.Load(nil)
	assert.Equal(t, time.Duration(0), cfg.FlushIntervalDuration)
}
