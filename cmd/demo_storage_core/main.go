package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/k0kubun/pp"

	"github.com/briskdb/briskdb/logger"
	"github.com/briskdb/briskdb/storage"
	"github.com/briskdb/briskdb/util"
)

func main() {
	fmt.Printf("=== briskdb storage core demo (%d) ===\n", util.GetCurrentTimestamp())
	fmt.Println()

	demoDir := "demo_storage_core"
	os.RemoveAll(demoDir)
	if err := os.MkdirAll(demoDir, 0755); err != nil {
		logger.Fatalf("mkdir demo dir: %v", err)
	}
	defer os.RemoveAll(demoDir)

	opts := storage.DefaultOptions(filepath.Join(demoDir, "main"))
	ds, err := storage.Open(opts)
	if err != nil {
		logger.Fatalf("open: %v", err)
	}
	defer ds.Dispose()

	fmt.Println("allocating and writing 8 pages through the log...")
	var pages []*storage.PageBuffer
	for i := 0; i < 8; i++ {
		pb, err := ds.NewPage()
		if err != nil {
			logger.Fatalf("new page: %v", err)
		}
		for j := range pb.Bytes() {
			pb.Bytes()[j] = byte(i)
		}
		pages = append(pages, pb)
	}
	if _, err := ds.WriteAsync(pages); err != nil {
		logger.Fatalf("write async: %v", err)
	}

	reader := ds.GetReader()
	defer reader.Dispose()

	for _, pb := range pages {
		got, err := reader.ReadPage(pb.Position(), false, storage.Log)
		if err != nil {
			logger.Fatalf("read page: %v", err)
		}
		ds.Release(got)
	}

	fmt.Println("cache stats after round trip:")
	pp.Println(ds.CacheStats())

	fmt.Printf("virtual data length: %d, virtual log length: %d\n",
		ds.GetVirtualLength(storage.Data), ds.GetVirtualLength(storage.Log))
}
