package project

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/charlievieth/fastwalk"
	"github.com/gabriel-vasile/mimetype"
)

const maxIconBytes = 1 << 20 // 1 MiB; a display icon, not an asset pipeline

const maxIconDepth = 3

// iconRanks order candidate file names, lower is better. A favicon at the
// project root beats a logo buried in assets.
var iconRanks = map[string]int{
	"favicon.ico":          0,
	"favicon.png":          1,
	"favicon.svg":          2,
	"icon.png":             3,
	"icon.ico":             4,
	"icon.svg":             5,
	"apple-touch-icon.png": 6,
	"logo.png":             7,
	"logo.svg":             8,
}

// iconSkipDirs are never descended into while scanning for icons.
var iconSkipDirs = map[string]bool{
	"node_modules": true,
	".git":         true,
	"vendor":       true,
	"dist":         true,
	"build":        true,
	"target":       true,
}

// DetectIcon scans the project for a display icon and returns its bytes and
// sniffed content type. Best-effort: any failure reports no icon.
func DetectIcon(path string) ([]byte, string, bool) {
	type candidate struct {
		path string
		rank int
	}

	var mu sync.Mutex
	best := candidate{rank: len(iconRanks)}

	conf := fastwalk.Config{Follow: false}
	fastwalk.Walk(&conf, path, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		rel, relErr := filepath.Rel(path, p)
		if relErr != nil {
			return nil
		}

		if d.IsDir() {
			name := d.Name()
			if p != path && (iconSkipDirs[name] || strings.HasPrefix(name, ".")) {
				return filepath.SkipDir
			}
			if strings.Count(rel, string(filepath.Separator)) >= maxIconDepth {
				return filepath.SkipDir
			}
			return nil
		}

		rank, ok := iconRanks[strings.ToLower(d.Name())]
		if !ok {
			return nil
		}

		mu.Lock()
		if rank < best.rank {
			best = candidate{path: p, rank: rank}
		}
		mu.Unlock()
		return nil
	})

	if best.path == "" {
		return nil, "", false
	}

	info, err := os.Stat(best.path)
	if err != nil || info.Size() > maxIconBytes {
		return nil, "", false
	}
	data, err := os.ReadFile(best.path)
	if err != nil {
		return nil, "", false
	}

	mime := mimetype.Detect(data)
	if !strings.HasPrefix(mime.String(), "image/") {
		return nil, "", false
	}
	return data, mime.String(), true
}
