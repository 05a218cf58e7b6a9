package storage

import (
	"github.com/pkg/errors"
	"gopkg.in/ini.v1"
)

// Collation identifies the header-page collation pragma recorded at
// database creation time.
type Collation string

const (
	CollationUTF8BinCI Collation = "utf8mb4_bin"
	CollationUTF8GenCI Collation = "utf8mb4_general_ci"
)

// Options is the configuration surface the storage core recognises:
// filename, read-only, collation, auto-rebuild, plus the segment sizing
// knobs the cache needs.
type Options struct {
	// Filename is the path to the data file. The log file's path is
	// derived as Filename+LogFileSuffix alongside it.
	Filename string

	// ReadOnly opens both handles read-only and rejects NewPage,
	// WriteAsync, Write, SetLength and MarkAsInvalidState.
	ReadOnly bool

	// Collation is stored in the header pragma on initial creation and
	// ignored thereafter.
	Collation Collation

	// AutoRebuild is read by the engine, not the core, to decide whether
	// to invoke the external recovery collaborator when the invalid-state
	// flag is set. The core carries it through unused.
	AutoRebuild bool

	// SegmentSizes overrides memorySegmentSizes if non-empty, letting an
	// embedder tune how aggressively the cache grows.
	SegmentSizes []int

	// State, if set, is notified via Handle(err) the moment the async log
	// writer's consumer goroutine terminates on its first I/O failure. The
	// queue still poisons and rethrows from EnqueuePage/Wait on its own;
	// this is purely for an embedder's global error reporting.
	State StateReporter
}

// DefaultOptions returns an Options value with the core's defaults: a
// read-write database using the default collation and the built-in segment
// sizing.
func DefaultOptions(filename string) Options {
	return Options{
		Filename:  filename,
		Collation: CollationUTF8BinCI,
	}
}

// LoadOptions populates an Options value from the "[storage]" section of an
// INI file. Fields absent from the file keep whatever was already set on
// opts, so callers can seed opts with DefaultOptions first.
func LoadOptions(path string, opts *Options) error {
	cfg, err := ini.Load(path)
	if err != nil {
		return errors.Wrapf(err, "load options from %s", path)
	}

	section := cfg.Section("storage")

	if k := section.Key("filename"); k.String() != "" {
		opts.Filename = k.String()
	}
	if section.HasKey("read-only") {
		opts.ReadOnly = section.Key("read-only").MustBool(opts.ReadOnly)
	}
	if c := section.Key("collation"); c.String() != "" {
		opts.Collation = Collation(c.String())
	}
	if section.HasKey("auto-rebuild") {
		opts.AutoRebuild = section.Key("auto-rebuild").MustBool(opts.AutoRebuild)
	}
	if section.HasKey("segment-size") {
		size := section.Key("segment-size").MustInt(0)
		if size > 0 {
			opts.SegmentSizes = []int{size}
		}
	}

	return nil
}

func (o Options) logFilename() string {
	return o.Filename + LogFileSuffix
}

func (o Options) segmentSizes() []int {
	if len(o.SegmentSizes) > 0 {
		return o.SegmentSizes
	}
	return memorySegmentSizes
}
