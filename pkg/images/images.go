// Package images stores alert snapshot images on disk, keeping only the most
// recent handful per camera.
package images

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
)

// keepPerDevice - retained images per camera, older ones are pruned
const keepPerDevice = 5

// Downloader - fetches an image with the account's bearer credentials
type Downloader interface {
	DownloadImage(ctx context.Context, imageURL string) ([]byte, error)
}

// Store - downloads alert images into a directory
type Store struct {
	Dir        string
	downloader Downloader
}

// NewStore - image store constructor, creates the directory if needed
func NewStore(dir string, downloader Downloader) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create images dir %s: %w", dir, err)
	}

	return &Store{Dir: dir, downloader: downloader}, nil
}

// Fetch - downloads the alert image unless it is already on disk.
// Returns the local file path.
func (s *Store) Fetch(ctx context.Context, deviceID string, alertID string, imageURL string) (string, error) {
	path := filepath.Join(s.Dir, fmt.Sprintf("%s_%s.jpg", deviceID, alertID))

	if _, err := os.Stat(path); err == nil {
		return path, nil
	}

	data, err := s.downloader.DownloadImage(ctx, imageURL)
	if err != nil {
		return "", err
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return "", fmt.Errorf("unable to write image %s: %w", path, err)
	}

	log.Debug().Str("device_id", deviceID).Str("alert_id", alertID).Str("path", path).Msg("Stored alert image")
	s.prune(deviceID)

	return path, nil
}

// prune removes all but the newest images of a device
func (s *Store) prune(deviceID string) {
	entries, err := os.ReadDir(s.Dir)
	if err != nil {
		log.Warn().Str("dir", s.Dir).Err(err).Msg("Unable to list images dir")
		return
	}

	type imageFile struct {
		name    string
		modTime int64
	}

	var files []imageFile
	prefix := deviceID + "_"
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasPrefix(entry.Name(), prefix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			continue
		}

		files = append(files, imageFile{name: entry.Name(), modTime: info.ModTime().UnixNano()})
	}

	if len(files) <= keepPerDevice {
		return
	}

	sort.Slice(files, func(i, j int) bool {
		return files[i].modTime > files[j].modTime
	})

	for _, stale := range files[keepPerDevice:] {
		path := filepath.Join(s.Dir, stale.name)
		if err := os.Remove(path); err != nil {
			log.Warn().Str("path", path).Err(err).Msg("Unable to prune stale image")
		}
	}
}
