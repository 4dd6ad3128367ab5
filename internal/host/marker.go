package host

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/go-ps"

	"github.com/oshokin/offline-packager/internal/logger"
)

// MarkerFilename marks that a packaging run is writing into a directory.
const MarkerFilename = ".offline-packager.pid"

// ErrAlreadyRunning is returned when another live process holds the run marker.
var ErrAlreadyRunning = errors.New("another packaging run is in progress")

// Marker is a held run marker.
type Marker struct {
	// path is the marker file location.
	path string
}

// AcquireMarker writes a run marker with the current PID into dir.
// A marker left by a process that no longer exists is replaced.
func AcquireMarker(ctx context.Context, dir string) (*Marker, error) {
	path := filepath.Join(dir, MarkerFilename)

	contents, err := os.ReadFile(filepath.Clean(path))

	switch {
	case err == nil:
		pid, parseErr := strconv.Atoi(strings.TrimSpace(string(contents)))
		if parseErr == nil && pid != os.Getpid() && isProcessAlive(pid) {
			return nil, fmt.Errorf("pid %d: %w", pid, ErrAlreadyRunning)
		}

		logger.InfoKV(ctx, "Replacing stale run marker", "path", path)
	case errors.Is(err, os.ErrNotExist):
	default:
		return nil, fmt.Errorf("read run marker: %w", err)
	}

	if err = os.MkdirAll(dir, DefaultDirMode); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	if err = os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), DefaultFileMode); err != nil {
		return nil, fmt.Errorf("write run marker: %w", err)
	}

	return &Marker{path: path}, nil
}

// Release removes the marker. Releasing twice is not an error.
func (m *Marker) Release() error {
	if m == nil {
		return nil
	}

	if err := os.Remove(m.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove run marker: %w", err)
	}

	return nil
}

// isProcessAlive reports whether a process with the given PID exists.
func isProcessAlive(pid int) bool {
	process, err := ps.FindProcess(pid)

	return err == nil && process != nil
}
