package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
)

const idFileName = "device-id"

// Identity resolves and persists the stable per-device identifier that
// scopes scan sessions. The id is generated once and cached for the
// life of the installation.
type Identity struct {
	mu      sync.Mutex
	dataDir string
	id      string
}

func NewIdentity(dataDir string) *Identity {
	return &Identity{dataDir: dataDir}
}

// ID returns the device id, reading or creating the backing file on
// first use.
func (i *Identity) ID() (string, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.id != "" {
		return i.id, nil
	}

	path := filepath.Join(i.dataDir, idFileName)
	raw, err := os.ReadFile(path)
	if err == nil {
		id := strings.TrimSpace(string(raw))
		if id == "" {
			return "", fmt.Errorf("device id file %s is empty", path)
		}
		i.id = id
		return i.id, nil
	}
	if !os.IsNotExist(err) {
		return "", fmt.Errorf("read device id: %w", err)
	}

	if err := os.MkdirAll(i.dataDir, 0o755); err != nil {
		return "", fmt.Errorf("create data dir: %w", err)
	}
	id := uuid.NewString()
	if err := os.WriteFile(path, []byte(id+"\n"), 0o600); err != nil {
		return "", fmt.Errorf("write device id: %w", err)
	}
	i.id = id
	return i.id, nil
}
