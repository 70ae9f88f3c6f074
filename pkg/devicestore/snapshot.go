package devicestore

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/trailmesh/navcore/pkg/utils"
)

// snapshotFile is the on-disk shape of a persisted store: {generatedAt,
// devices: [...]}, per the external-interface contract. generatedAt and
// each device's lastUpdateMs are Unix milliseconds; the embedded Device
// fields keep their own JSON encoding, so lastUpdate and alert timestamps
// are also written as RFC 3339 strings.
type snapshotFile struct {
	GeneratedAt int64            `json:"generatedAt"`
	Devices     []snapshotDevice `json:"devices"`
}

type snapshotDevice struct {
	Device
	LastUpdateMs int64 `json:"lastUpdateMs"`
}

// Save serializes the current device set to path via write-to-temp then
// atomic rename, using pkg/utils' secure temp file helper for the
// intermediate file.
func (s *Store) Save(path string) error {
	all := s.GetAll()

	out := snapshotFile{
		GeneratedAt: s.clock.Now().UnixMilli(),
		Devices:     make([]snapshotDevice, 0, len(all)),
	}
	for _, d := range all {
		out.Devices = append(out.Devices, snapshotDevice{
			Device:       d,
			LastUpdateMs: d.LastUpdate.UnixMilli(),
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create snapshot dir: %w", err)
	}

	tmp, err := utils.SecureTempFile(dir, ".snapshot")
	if err != nil {
		return fmt.Errorf("create temp snapshot: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write temp snapshot: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close temp snapshot: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename temp snapshot: %w", err)
	}
	return nil
}

// Load reads a snapshot from path and repopulates the store, refreshing
// every LastUpdate to now so a restart does not immediately mass-prune
// every device that was alive when the snapshot was written. Missing file
// is not an error — it is the normal first-run state.
func (s *Store) Load(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read snapshot: %w", err)
	}

	var in snapshotFile
	if err := json.Unmarshal(data, &in); err != nil {
		return fmt.Errorf("unmarshal snapshot: %w", err)
	}

	now := s.clock.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sd := range in.Devices {
		d := sd.Device
		d.LastUpdate = now
		s.devices[d.DeviceID] = &d
	}
	return nil
}

// SaveBestEffort calls Save and logs a failure instead of propagating it —
// persistence I/O failures are never fatal (spec failure semantics §4.9).
func (s *Store) SaveBestEffort(path string) {
	if err := s.Save(path); err != nil {
		s.logger.Warn("snapshot save failed", "error", err.Error())
	}
}
