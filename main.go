package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zhukovaskychina/xpagecache/conf"
	"github.com/zhukovaskychina/xpagecache/fs"
	"github.com/zhukovaskychina/xpagecache/logger"
	"github.com/zhukovaskychina/xpagecache/pagecache"
)

const help = `
xpagecache self check

Maps a scratch file into the page cache, writes a run of records through
exclusive cursors, flushes, and verifies the bytes both through a shared
cursor pass and through a fresh read only channel.

Flags:
  --configPath   path to a my.ini style config file
  --records      number of records to write (default 4096)
`

const (
	recordSize = 16
)

func main() {
	var configPath string
	var records int
	flag.StringVar(&configPath, "configPath", "", "config file path")
	flag.IntVar(&records, "records", 4096, "number of records to write")
	flag.Usage = func() {
		fmt.Print(help)
	}
	flag.Parse()

	config := conf.NewCfg().Load(&conf.CommandLineArgs{ConfigPath: configPath})

	if err := logger.InitLogger(logger.LogConfig{
		ErrorLogPath: config.LogError,
		InfoLogPath:  config.LogInfos,
		LogLevel:     config.LogLevel,
	}); err != nil {
		fmt.Printf("failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	if err := run(config, records); err != nil {
		logger.Errorf("self check failed: %v", err)
		os.Exit(1)
	}
	logger.Infof("self check passed: %d records", records)
}

func run(config *conf.Cfg, records int) error {
	cache, err := pagecache.New(&pagecache.Config{
		PageSize:           config.PageSize,
		MaxPages:           config.MaxPages,
		FlushInterval:      config.FlushIntervalDuration,
		VictimSearchRounds: config.VictimSearchRounds,
		FileSystem:         fs.NewOSFileSystem(),
	})
	if err != nil {
		return err
	}
	defer cache.Close()

	path := filepath.Join(config.DataDir, "selfcheck.xpc")
	if err := os.MkdirAll(config.DataDir, 0755); err != nil {
		return err
	}
	if err := os.RemoveAll(path); err != nil {
		return err
	}

	filePageSize := config.PageSize - config.PageSize%recordSize
	recordsPerPage := filePageSize / recordSize

	pf, err := cache.Map(path, filePageSize)
	if err != nil {
		return err
	}

	if err := writeRecords(pf, records, recordsPerPage); err != nil {
		return err
	}
	if err := pf.Flush(); err != nil {
		return err
	}
	if err := verifyThroughCursor(pf, records, recordsPerPage); err != nil {
		return err
	}
	if err := verifyThroughChannel(path, records); err != nil {
		return err
	}

	stats := cache.Stats()
	logger.Infof("stats: hits=%d misses=%d faults=%d evictions=%d flushes=%d pinned=%d hitRate=%.2f",
		stats.Hits, stats.Misses, stats.Faults, stats.Evictions, stats.Flushes, stats.PinnedFrames, stats.HitRate())

	return cache.Unmap(path)
}

func writeRecords(pf *pagecache.PagedFile, records, recordsPerPage int) error {
	cursor, err := pf.IO(0, pagecache.FlagExclusiveLock)
	if err != nil {
		return err
	}
	defer cursor.Close()

	record := make([]byte, recordSize)
	for id := 0; id < records; {
		ok, err := cursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cursor ended early at record %d", id)
		}
		for i := 0; i < recordsPerPage && id < records; i++ {
			recordForID(int64(id), record)
			cursor.PutBytes(record)
			id++
		}
	}
	return nil
}

func verifyThroughCursor(pf *pagecache.PagedFile, records, recordsPerPage int) error {
	cursor, err := pf.IO(0, pagecache.FlagSharedLock)
	if err != nil {
		return err
	}
	defer cursor.Close()

	expected := make([]byte, recordSize)
	actual := make([]byte, recordSize)
	for id := 0; id < records; {
		ok, err := cursor.Next()
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("cursor ended early at record %d", id)
		}
		start := id
		for {
			id = start
			mismatch := int64(-1)
			for i := 0; i < recordsPerPage && id < records; i++ {
				cursor.GetBytes(actual)
				recordForID(int64(id), expected)
				if mismatch < 0 && !bytes.Equal(expected, actual) {
					mismatch = int64(id)
				}
				id++
			}
			if cursor.Retry() {
				continue
			}
			if mismatch >= 0 {
				return fmt.Errorf("record %d mismatch through cursor", mismatch)
			}
			break
		}
	}
	return nil
}

func verifyThroughChannel(path string, records int) error {
	channel, err := fs.NewOSFileSystem().Open(path, fs.ModeRead)
	if err != nil {
		return err
	}
	defer channel.Close()

	expected := make([]byte, recordSize)
	actual := make([]byte, recordSize)
	for id := 0; id < records; id++ {
		if _, err := channel.ReadAt(actual, int64(id*recordSize)); err != nil {
			return fmt.Errorf("record %d: %v", id, err)
		}
		recordForID(int64(id), expected)
		if !bytes.Equal(expected, actual) {
			return fmt.Errorf("record %d mismatch through channel", id)
		}
	}
	return nil
}

// recordForID derives a deterministic record from its id.
func recordForID(id int64, buf []byte) {
	x := uint32(id + 1)
	binary.BigEndian.PutUint32(buf, x)
	for i := 4; i < len(buf); i++ {
		x++
		buf[i] = byte(x)
	}
}
