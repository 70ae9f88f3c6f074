package pidfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
)

// PIDFile represents a PID file for daemon process management
type PIDFile struct {
	path string
	pid  int
}

// New creates a new PIDFile instance
func New(path string) *PIDFile {
	return &PIDFile{
		path: path,
		pid:  os.Getpid(),
	}
}

// Create writes the PID file, refusing when the PID it already holds
// belongs to a running process. The file is not locked.
func (p *PIDFile) Create() error {
	// Check if PID file already exists
	if p.exists() {
		existingPID, err := p.readExistingPID()
		if err != nil {
			return fmt.Errorf("failed to read existing PID file: %w", err)
		}

		// Check if the process is still running
		if p.isProcessRunning(existingPID) {
			return fmt.Errorf("daemon already running with PID %d", existingPID)
		}

		// Process is not running, remove stale PID file
		if err := os.Remove(p.path); err != nil {
			return fmt.Errorf("failed to remove stale PID file: %w", err)
		}
	}

	// Create directory if it doesn't exist
	dir := filepath.Dir(p.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create PID file directory: %w", err)
	}

	// Create and write PID file
	if err := os.WriteFile(p.path, []byte(fmt.Sprintf("%d\n", p.pid)), 0o644); err != nil {
		return fmt.Errorf("failed to create PID file: %w", err)
	}

	return nil
}

// Remove removes the PID file
func (p *PIDFile) Remove() error {
	if !p.exists() {
		return nil // Already removed
	}

	// Verify this is our PID file before removing
	existingPID, err := p.readExistingPID()
	if err != nil {
		// If we can't read it, try to remove it anyway
		return os.Remove(p.path)
	}

	if existingPID != p.pid {
		return fmt.Errorf("PID file contains different PID (%d vs %d), not removing", existingPID, p.pid)
	}

	return os.Remove(p.path)
}

// GetPID returns the PID stored in the file
func (p *PIDFile) GetPID() (int, error) {
	return p.readExistingPID()
}

// Path returns the path to the PID file
func (p *PIDFile) Path() string {
	return p.path
}

// exists checks if the PID file exists
func (p *PIDFile) exists() bool {
	_, err := os.Stat(p.path)
	return err == nil
}

// readExistingPID reads the PID from an existing PID file
func (p *PIDFile) readExistingPID() (int, error) {
	data, err := os.ReadFile(p.path)
	if err != nil {
		return 0, err
	}

	pidStr := strings.TrimSpace(string(data))
	pid, err := strconv.Atoi(pidStr)
	if err != nil {
		return 0, fmt.Errorf("invalid PID in file: %s", pidStr)
	}

	return pid, nil
}

// isProcessRunning checks if a process with the given PID is running by
// sending it signal 0: the kernel still validates the PID without
// actually delivering anything, so a nil error means the process exists
// and we have permission to signal it.
func (p *PIDFile) isProcessRunning(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

// ForceRemove forcefully removes the PID file regardless of ownership
// This should only be used in cleanup scenarios
func (p *PIDFile) ForceRemove() error {
	return os.Remove(p.path)
}

// CheckRunning checks if another instance is running and returns its PID
func (p *PIDFile) CheckRunning() (bool, int, error) {
	if !p.exists() {
		return false, 0, nil
	}

	existingPID, err := p.readExistingPID()
	if err != nil {
		return false, 0, fmt.Errorf("failed to read PID file: %w", err)
	}

	if p.isProcessRunning(existingPID) {
		return true, existingPID, nil
	}

	return false, existingPID, nil
}
