// Package marker seeds and reads the per-target last-sync marker files
// (<baseDir>/<target>/conf/dataimport.properties). Markers are created once;
// afterwards they belong to the receiving service.
package marker

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/magiconair/properties"
	"github.com/sirupsen/logrus"

	"github.com/cybertec-postgresql/delta_notifier/internal/timestamp"
)

const (
	// FileName is the marker file name inside a target's conf directory.
	FileName = "dataimport.properties"
	// Key is the unqualified last sync key.
	Key = "last_index_time"
)

// QualifiedKey returns the per-target key, e.g. core1.last_index_time
func QualifiedKey(target string) string {
	return target + "." + Key
}

// Path returns the marker file of target under baseDir.
func Path(baseDir, target string) string {
	return filepath.Join(baseDir, target, "conf", FileName)
}

// Result is the bootstrap outcome for one target.
type Result struct {
	Target  string
	Path    string
	Created bool
	Err     error
}

// Bootstrap makes sure every target has a marker file. Missing files are
// created with now as both the qualified and unqualified last sync time;
// existing files are never rewritten. A failure for one target does not stop
// the others.
func Bootstrap(baseDir string, targets []string, now time.Time) []Result {
	results := make([]Result, 0, len(targets))
	value := timestamp.EscapeMarker(timestamp.FormatMarker(now))
	for _, target := range targets {
		if target == "" {
			continue
		}
		path := Path(baseDir, target)
		created, err := create(path, content(target, value))
		results = append(results, Result{Target: target, Path: path, Created: created, Err: err})
	}
	return results
}

func content(target, value string) []byte {
	return []byte(QualifiedKey(target) + "=" + value + "\n" + Key + "=" + value)
}

// create writes data to path unless the file already exists.
func create(path string, data []byte) (bool, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("couldn't create %s: %w", path, err)
	}
	if _, err = f.Write(data); err != nil {
		_ = f.Close()
		return true, fmt.Errorf("couldn't write to %s: %w", path, err)
	}
	if err = f.Close(); err != nil {
		return true, fmt.Errorf("couldn't close %s: %w", path, err)
	}
	return true, nil
}

// LogResults reports bootstrap outcomes and returns the number of failures.
func LogResults(results []Result) int {
	failed := 0
	for _, r := range results {
		logger := logrus.WithFields(logrus.Fields{
			"component": "marker",
			"target":    r.Target,
			"path":      r.Path,
		})
		switch {
		case r.Err != nil:
			failed++
			logger.WithError(r.Err).Error("Failed to initialize marker file")
		case r.Created:
			logger.Warn("Marker file did not exist, created one")
		default:
			logger.Info("Marker file exists, [OK]")
		}
	}
	return failed
}

// Marker holds the last sync times stored for a target.
type Marker struct {
	Qualified   string
	Unqualified string
}

// Load reads the marker file of target.
func Load(baseDir, target string) (Marker, error) {
	loader := properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := loader.LoadFile(Path(baseDir, target))
	if err != nil {
		return Marker{}, fmt.Errorf("failed to load marker of %s: %w", target, err)
	}
	return Marker{
		Qualified:   p.GetString(QualifiedKey(target), ""),
		Unqualified: p.GetString(Key, ""),
	}, nil
}
