package ipc

import (
	"errors"
	"fmt"
	"os"

	"golang.org/x/sys/unix"

	"kiln_control/internal/models"
)

// DefaultStatusPath lives on tmpfs so the mapping never touches disk.
const DefaultStatusPath = "/dev/shm/kiln_status"

// StatusBlock is a memory-mapped status file. The daemon creates it writable;
// readers open it read-only. There is no lock: single writer, many readers.
type StatusBlock struct {
	data     []byte
	writable bool
}

// CreateStatusBlock replaces any existing block at path with a fresh one
// readable by everyone and maps it for writing.
func CreateStatusBlock(path string) (*StatusBlock, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("remove stale status block %q: %w", path, err)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err != nil {
		return nil, fmt.Errorf("create status block %q: %w", path, err)
	}
	defer f.Close()

	if err := f.Truncate(StatusSize); err != nil {
		return nil, fmt.Errorf("size status block %q: %w", path, err)
	}
	data, err := unix.Mmap(int(f.Fd()), 0, StatusSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map status block %q: %w", path, err)
	}
	return &StatusBlock{data: data, writable: true}, nil
}

// OpenStatusBlock maps an existing block read-only.
func OpenStatusBlock(path string) (*StatusBlock, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open status block %q (is kilnd running?): %w", path, err)
	}
	defer f.Close()

	data, err := unix.Mmap(int(f.Fd()), 0, StatusSize, unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("map status block %q: %w", path, err)
	}
	return &StatusBlock{data: data}, nil
}

// Publish overwrites the block with s.
func (b *StatusBlock) Publish(s models.LiveStatus) {
	if !b.writable {
		return
	}
	EncodeStatus(b.data, s)
}

// Read returns the current snapshot.
func (b *StatusBlock) Read() (models.LiveStatus, error) {
	return DecodeStatus(b.data)
}

// Close unmaps the block. The writer invalidates it first so readers report
// the daemon as gone instead of showing frozen values.
func (b *StatusBlock) Close() error {
	if b.data == nil {
		return nil
	}
	if b.writable {
		invalidate(b.data)
	}
	err := unix.Munmap(b.data)
	b.data = nil
	return err
}
