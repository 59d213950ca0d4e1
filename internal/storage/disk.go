package storage

import (
	"io/fs"
	"os"
	"path/filepath"

	"github.com/hyperjump/pachat/internal/config"
)

// Disk areas reported by status.
const (
	AreaDatabase         = "database"
	AreaKeywordIndex     = "keyword_index"
	AreaUploads          = "uploads"
	AreaConversionOutput = "conversion_output"
)

// DiskArea is one file or directory tree pachat writes to.
type DiskArea struct {
	Name  string `json:"name"`
	Path  string `json:"path"`
	Bytes int64  `json:"bytes"`
}

// DiskReport lists per-area usage. TotalBytes counts each file once, so areas that share
// a directory (the output directory defaults to the upload directory) are not doubled.
type DiskReport struct {
	Areas      []DiskArea `json:"areas"`
	TotalBytes int64      `json:"total_bytes"`
}

// DiskAreas returns the areas for a configuration: the SQLite database with its WAL and
// shared-memory files, the bleve index, uploads and script output.
func DiskAreas(cfg *config.Config) []DiskArea {
	return []DiskArea{
		{Name: AreaDatabase, Path: cfg.Storage.DatabasePath},
		{Name: AreaKeywordIndex, Path: cfg.Storage.BleveIndexPath},
		{Name: AreaUploads, Path: cfg.Convert.UploadDir},
		{Name: AreaConversionOutput, Path: cfg.Convert.OutputDir},
	}
}

// MeasureDisk fills in Bytes for each area. Missing paths and empty paths count as zero;
// other stat or walk errors are returned.
func MeasureDisk(areas []DiskArea) (*DiskReport, error) {
	report := &DiskReport{Areas: make([]DiskArea, 0, len(areas))}
	seen := make(map[string]struct{})
	for _, area := range areas {
		var paths []string
		if area.Path != "" {
			paths = []string{area.Path}
			if area.Name == AreaDatabase {
				paths = append(paths, area.Path+"-wal", area.Path+"-shm")
			}
		}
		for _, p := range paths {
			err := walkFiles(p, func(path string, size int64) {
				area.Bytes += size
				if _, dup := seen[path]; !dup {
					seen[path] = struct{}{}
					report.TotalBytes += size
				}
			})
			if err != nil {
				return nil, err
			}
		}
		report.Areas = append(report.Areas, area)
	}
	return report, nil
}

// walkFiles calls visit with the cleaned path and size of every regular file at or under root.
func walkFiles(root string, visit func(path string, size int64)) error {
	root = filepath.Clean(root)
	info, err := os.Stat(root)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		visit(root, info.Size())
		return nil
	}
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return err
		}
		visit(path, fi.Size())
		return nil
	})
}
