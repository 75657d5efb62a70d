// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package secret

import (
	"crypto/subtle"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Buffer is a fixed-size region of anonymous memory, locked against
// swap and excluded from core dumps, holding one secret: a master key,
// an age identity, or a label secret on its way to the key store.
// A Buffer must not be copied.
type Buffer struct {
	mu     sync.Mutex
	data   []byte // nil once closed
	closed bool
}

// New returns a zero-filled Buffer of size bytes. Close it when the
// secret is no longer needed.
func New(size int) (*Buffer, error) {
	if size <= 0 {
		return nil, fmt.Errorf("secret: buffer size must be positive, got %d", size)
	}
	region, err := lockedRegion(size)
	if err != nil {
		return nil, err
	}
	return &Buffer{data: region}, nil
}

// NewFromBytes moves source into a new Buffer: source is zeroed
// whether or not the Buffer could be created.
func NewFromBytes(source []byte) (*Buffer, error) {
	defer Zero(source)
	if len(source) == 0 {
		return nil, errors.New("secret: cannot create buffer from empty source")
	}
	buffer, err := New(len(source))
	if err != nil {
		return nil, err
	}
	copy(buffer.data, source)
	return buffer, nil
}

// Bytes returns the protected region itself. The slice is invalid
// after Close. Panics on a closed Buffer.
func (b *Buffer) Bytes() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustBeOpen()
	return b.data
}

// String copies the secret onto the heap. Only for boundaries that
// insist on a string, such as age identity parsing.
func (b *Buffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.mustBeOpen()
	return string(b.data)
}

// Len is the secret's size in bytes, or 0 once closed.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Equal compares two secrets in time independent of their contents.
func (b *Buffer) Equal(other *Buffer) bool {
	if b == other {
		return true
	}
	return subtle.ConstantTimeCompare(b.Bytes(), other.Bytes()) == 1
}

// Close scrubs and releases the region. Closing twice is a no-op.
func (b *Buffer) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	region := b.data
	b.data = nil
	return releaseRegion(region)
}

func (b *Buffer) mustBeOpen() {
	if b.closed {
		panic("secret: use of closed buffer")
	}
}

// Zero scrubs data in place.
func Zero(data []byte) {
	clear(data)
}

func lockedRegion(size int) ([]byte, error) {
	region, err := unix.Mmap(-1, 0, size, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANONYMOUS)
	if err != nil {
		return nil, fmt.Errorf("secret: mapping %d bytes: %w", size, err)
	}
	if err := unix.Mlock(region); err != nil {
		unix.Munmap(region)
		if errors.Is(err, unix.ENOMEM) || errors.Is(err, unix.EPERM) {
			return nil, fmt.Errorf("secret: locking %d bytes (raise RLIMIT_MEMLOCK): %w", size, err)
		}
		return nil, fmt.Errorf("secret: locking %d bytes: %w", size, err)
	}
	if err := unix.Madvise(region, unix.MADV_DONTDUMP); err != nil {
		unix.Munlock(region)
		unix.Munmap(region)
		return nil, fmt.Errorf("secret: excluding region from core dumps: %w", err)
	}
	return region, nil
}

// releaseRegion scrubs region before giving it back. Unlock and unmap
// failures are reported, but the pages are already zero.
func releaseRegion(region []byte) error {
	Zero(region)
	return errors.Join(
		wrapRelease("unlocking", unix.Munlock(region)),
		wrapRelease("unmapping", unix.Munmap(region)),
	)
}

func wrapRelease(step string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("secret: %s region: %w", step, err)
}
