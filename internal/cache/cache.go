package cache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/daemonp/domologica2mqtt/internal/types"
)

const cacheFileName = "domologica2mqtt_cache.json"

// Store persists element metadata between runs so known elements are never
// fetched again.
type Store struct {
	dir string
}

// NewStore uses dir, or ~/.cache/domologica2mqtt when dir is empty.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		var err error
		dir, err = getCacheDir()
		if err != nil {
			return nil, err
		}
	}
	return &Store{dir: dir}, nil
}

func (s *Store) Path() string {
	return filepath.Join(s.dir, cacheFileName)
}

func (s *Store) Save(metadata map[types.ElementID]types.ElementMetadata) error {
	cacheData := types.CacheData{
		Metadata:   metadata,
		LastUpdate: time.Now(),
	}

	data, err := json.Marshal(cacheData)
	if err != nil {
		return fmt.Errorf("failed to marshal cache data: %w", err)
	}

	err = os.MkdirAll(s.dir, 0755)
	if err != nil {
		return fmt.Errorf("failed to create cache directory: %w", err)
	}

	// Replace atomically, readers never see a partial file.
	tmp := s.Path() + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write cache file: %w", err)
	}
	if err := os.Rename(tmp, s.Path()); err != nil {
		return fmt.Errorf("failed to replace cache file: %w", err)
	}

	return nil
}

// Load returns nil without error when no cache exists yet.
func (s *Store) Load() (*types.CacheData, error) {
	data, err := os.ReadFile(s.Path())
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache file: %w", err)
	}

	var cacheData types.CacheData
	err = json.Unmarshal(data, &cacheData)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal cache data: %w", err)
	}
	for id, meta := range cacheData.Metadata {
		if meta.ID == "" {
			meta.ID = id
			cacheData.Metadata[id] = meta
		}
	}

	return &cacheData, nil
}

func getCacheDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}

	return filepath.Join(homeDir, ".cache", "domologica2mqtt"), nil
}
