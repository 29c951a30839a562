package harness

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"
)

// maxSuffix bounds the collision search for same-second artifacts.
const maxSuffix = 1000

// ArtifactName returns the base file name for a run started at t, with an
// optional collision suffix.
func ArtifactName(t time.Time, suffix int) string {
	if suffix == 0 {
		return fmt.Sprintf("comparison_%d.json", t.Unix())
	}
	return fmt.Sprintf("comparison_%d_%d.json", t.Unix(), suffix)
}

// linkFile is os.Link, replaced in tests.
var linkFile = os.Link

// WriteArtifact writes run under dir and returns the path. The file appears
// complete or not at all, and never replaces an existing artifact.
func WriteArtifact(dir string, run *Run, startedAt time.Time) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("create output dir: %w", err)
	}

	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode run: %w", err)
	}
	data = append(data, '\n')

	tmp, err := os.CreateTemp(dir, ".comparison-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return "", fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("close temp file: %w", err)
	}

	// A link fails if the target exists, so a collision moves on to the
	// next suffix instead of overwriting. Without hard links, fall back to
	// exclusive create.
	useLink := true
	for suffix := 0; suffix < maxSuffix; suffix++ {
		path := filepath.Join(dir, ArtifactName(startedAt, suffix))
		if useLink {
			err := linkFile(tmpPath, path)
			if err == nil {
				return path, nil
			}
			if errors.Is(err, fs.ErrExist) {
				continue
			}
			useLink = false
		}
		err := writeExclusive(path, data)
		if err == nil {
			return path, nil
		}
		if !errors.Is(err, fs.ErrExist) {
			return "", fmt.Errorf("publish artifact: %w", err)
		}
	}
	return "", fmt.Errorf("publish artifact: no free name for %s", ArtifactName(startedAt, 0))
}

// writeExclusive creates path, failing with fs.ErrExist if it is taken. A
// partial file is removed on error.
func writeExclusive(path string, data []byte) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return err
	}
	_, err = f.Write(data)
	if err == nil {
		err = f.Sync()
	}
	if cerr := f.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		os.Remove(path)
	}
	return err
}
