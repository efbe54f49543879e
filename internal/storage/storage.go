// Package storage keeps the peak lists of a run, addressed by scan number.
package storage

import (
	"errors"
	"fmt"
	"sync"

	"github.com/524D/mzfeat/internal/spectrum"
)

var (
	// ErrUnknownScan means no spectrum was stored for the requested scan
	ErrUnknownScan = errors.New("storage: unknown scan")
	// ErrClosed means the store was used after Close
	ErrClosed = errors.New("storage: store is closed")
)

// Store gives access to the spectra of one run. Spectra returned by Scan
// are shared and must not be modified.
type Store interface {
	Scan(scanID int) (spectrum.Spectrum, error)
	Add(scanID int, s spectrum.Spectrum) error
	Close() error
}

// MemoryStore keeps all spectra on the heap
type MemoryStore struct {
	mu     sync.RWMutex
	scans  map[int]spectrum.Spectrum
	closed bool
}

// NewMemoryStore returns an empty in-memory store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{scans: make(map[int]spectrum.Spectrum)}
}

// Add stores a copy of s under scanID, sorting it by m/z if needed
func (m *MemoryStore) Add(scanID int, s spectrum.Spectrum) error {
	c := s.Clone()
	if !c.IsSorted() {
		c.Sort()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	m.scans[scanID] = c
	return nil
}

// Scan returns the spectrum of scanID
func (m *MemoryStore) Scan(scanID int) (spectrum.Spectrum, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.closed {
		return nil, ErrClosed
	}
	s, ok := m.scans[scanID]
	if !ok {
		return nil, fmt.Errorf("scan %d: %w", scanID, ErrUnknownScan)
	}
	return s, nil
}

// Len returns the number of stored spectra
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.scans)
}

// Close releases the spectra
func (m *MemoryStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.scans = nil
	m.closed = true
	return nil
}
