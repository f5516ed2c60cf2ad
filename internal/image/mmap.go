package image

import (
	"fmt"
	"os"
	"syscall"
)

// Mapping is a read-only memory mapping of a whole file.
type Mapping struct {
	Path string
	data []byte
}

// Map opens path and maps it read-only. Empty files are returned as an empty,
// unmapped Mapping.
func Map(path string) (*Mapping, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: open: %w", ErrIO, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("%w: stat: %w", ErrIO, err)
	}
	if fi.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", ErrIO, path)
	}
	if fi.Size() == 0 {
		return &Mapping{Path: path}, nil
	}

	data, err := syscall.Mmap(int(f.Fd()), 0, int(fi.Size()), syscall.PROT_READ, syscall.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("%w: mmap: %w", ErrIO, err)
	}
	return &Mapping{Path: path, data: data}, nil
}

// Bytes returns the mapped file contents. The slice is invalid after Close.
func (m *Mapping) Bytes() []byte {
	return m.data
}

// Close unmaps the file. It is safe to call more than once.
func (m *Mapping) Close() error {
	if m == nil || m.data == nil {
		return nil
	}
	err := syscall.Munmap(m.data)
	m.data = nil
	return err
}
