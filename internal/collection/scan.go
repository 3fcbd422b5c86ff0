package collection

import (
	"fmt"
	"image"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jonboulle/clockwork"

	// Decoders for Dimensions. The stdlib covers png/jpeg/gif.
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DefaultScanTimeout bounds a single folder read
const DefaultScanTimeout = 2 * time.Second

var imageExtensions = map[string]bool{
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".bmp":  true,
	".gif":  true,
	".webp": true,
	".tif":  true,
	".tiff": true,
}

// IsImage reports whether path has a recognized image extension
func IsImage(path string) bool {
	return imageExtensions[strings.ToLower(filepath.Ext(path))]
}

// Extensions returns the recognized extensions, sorted
func Extensions() []string {
	exts := make([]string, 0, len(imageExtensions))
	for ext := range imageExtensions {
		exts = append(exts, ext)
	}
	sort.Strings(exts)
	return exts
}

// Dimensions reads only the image header and returns width and height
func Dimensions(path string) (image.Point, error) {
	f, err := os.Open(path)
	if err != nil {
		return image.Point{}, err
	}
	defer f.Close()

	cfg, _, err := image.DecodeConfig(f)
	if err != nil {
		return image.Point{}, fmt.Errorf("failed to decode %s: %w", path, err)
	}
	return image.Pt(cfg.Width, cfg.Height), nil
}

// readDir is swapped in tests to simulate slow or failing filesystems
var readDir = os.ReadDir

// scanFolder lists the images directly inside folder in lexical order. The
// read is abandoned after timeout; the goroutine doing it is left to finish on
// its own.
func scanFolder(folder string, timeout time.Duration, clock clockwork.Clock) ([]string, error) {
	type result struct {
		entries []os.DirEntry
		err     error
	}

	read := readDir
	done := make(chan result, 1)
	go func() {
		entries, err := read(folder)
		done <- result{entries: entries, err: err}
	}()

	var res result
	select {
	case res = <-done:
	case <-clock.After(timeout):
		return nil, ErrScanTimeout
	}
	if res.err != nil {
		return nil, res.err
	}

	images := make([]string, 0, len(res.entries))
	for _, entry := range res.entries {
		if !IsImage(entry.Name()) {
			continue
		}
		full := filepath.Join(folder, entry.Name())
		if !isFile(entry, full) {
			continue
		}
		images = append(images, full)
	}
	sort.Strings(images)
	return images, nil
}

func isFile(entry os.DirEntry, full string) bool {
	if entry.Type().IsRegular() {
		return true
	}
	if entry.Type()&os.ModeSymlink == 0 {
		return false
	}
	info, err := os.Stat(full)
	return err == nil && info.Mode().IsRegular()
}
