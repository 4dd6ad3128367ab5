package archive

import (
	"archive/zip"
	"bytes"
	"errors"
	"fmt"
	"io"
)

// ErrEntryNotFound is returned when a requested archive entry does not exist.
var ErrEntryNotFound = errors.New("archive entry not found")

// List returns entry names of an archive in the order they were written.
func List(data []byte) ([]string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	names := make([]string, 0, len(reader.File))
	for _, file := range reader.File {
		names = append(names, file.Name)
	}

	return names, nil
}

// IsPackage reports whether data is a zip archive written by an Assembler.
func IsPackage(data []byte) bool {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return false
	}

	return reader.Comment == Comment
}

// ReadFile returns the decompressed contents of a named archive entry.
func ReadFile(data []byte, name string) ([]byte, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}

	for _, file := range reader.File {
		if file.Name != name {
			continue
		}

		rc, err := file.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}

		contents, err := io.ReadAll(rc)

		_ = rc.Close()

		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}

		return contents, nil
	}

	return nil, fmt.Errorf("%s: %w", name, ErrEntryNotFound)
}
