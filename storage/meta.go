package storage

import (
	"os"

	"github.com/pelletier/go-toml"
	"github.com/pkg/errors"
)

// CoreVersion is stamped into the sidecar metadata file on creation.
const CoreVersion = "1"

// sidecarMeta is the human-readable descriptor written alongside a freshly
// created data file. It carries no durability contract: deleting it has no
// effect on correctness, and no read or recovery path consults it.
type sidecarMeta struct {
	PageSize  int       `toml:"page_size"`
	Collation Collation `toml:"collation"`
	CreatedAt string    `toml:"created_at"`
	CoreVer   string    `toml:"core_version"`
}

// metaPath derives the sidecar path from the data file's path.
func metaPath(dataFilename string) string {
	return dataFilename + ".meta.toml"
}

// writeSidecarMeta writes the descriptor next to dataFilename. createdAt is
// passed in by the caller rather than computed here so tests can assert on
// a fixed timestamp.
func writeSidecarMeta(dataFilename string, collation Collation, createdAt string) error {
	meta := sidecarMeta{
		PageSize:  PageSize,
		Collation: collation,
		CreatedAt: createdAt,
		CoreVer:   CoreVersion,
	}
	buf, err := toml.Marshal(meta)
	if err != nil {
		return errors.Wrap(err, "marshal sidecar metadata")
	}
	if err := os.WriteFile(metaPath(dataFilename), buf, 0644); err != nil {
		return errors.Wrapf(err, "write sidecar metadata for %s", dataFilename)
	}
	return nil
}
