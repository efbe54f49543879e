package storage

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"sync"

	"github.com/524D/mzfeat/internal/spectrum"

	"github.com/hashicorp/golang-lru/v2/simplelru"
	"golang.org/x/exp/mmap"
)

// A spilled spectrum is stored as
//
//	uint32 peak count
//	float64 m/z values
//	float64 intensities
//
// all little endian.
type record struct {
	offset int64
	count  int
}

func (r record) size() int64 {
	return 4 + int64(r.count)*16
}

// MmapStore spills spectra to a temporary file and reads them back
// through a memory map. A small LRU of recently used spectra avoids
// decoding the same scan over and over during trace extension.
// All access is serialized by one mutex.
type MmapStore struct {
	mu     sync.Mutex
	file   *os.File
	size   int64
	reader *mmap.ReaderAt
	mapped int64
	index  map[int]record
	recent *simplelru.LRU[int, spectrum.Spectrum]
	closed bool
}

// NewMmapStore creates a spill file in dir (the system temp dir if empty)
// and keeps up to cacheSize decoded spectra in memory
func NewMmapStore(dir string, cacheSize int) (*MmapStore, error) {
	recent, err := simplelru.NewLRU[int, spectrum.Spectrum](max(cacheSize, 1), nil)
	if err != nil {
		return nil, err
	}
	f, err := os.CreateTemp(dir, "mzfeat-*.spill")
	if err != nil {
		return nil, fmt.Errorf("create spill file: %w", err)
	}
	return &MmapStore{
		file:   f,
		index:  make(map[int]record),
		recent: recent,
	}, nil
}

// Add appends s to the spill file
func (m *MmapStore) Add(scanID int, s spectrum.Spectrum) error {
	c := s.Clone()
	if !c.IsSorted() {
		c.Sort()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return ErrClosed
	}
	rec := record{offset: m.size, count: len(c)}
	if _, err := m.file.WriteAt(encode(c), rec.offset); err != nil {
		return fmt.Errorf("spill scan %d: %w", scanID, err)
	}
	m.size += rec.size()
	m.index[scanID] = rec
	m.recent.Add(scanID, c)
	return nil
}

// Scan returns the spectrum of scanID
func (m *MmapStore) Scan(scanID int) (spectrum.Spectrum, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, ErrClosed
	}
	if s, ok := m.recent.Get(scanID); ok {
		return s, nil
	}
	rec, ok := m.index[scanID]
	if !ok {
		return nil, fmt.Errorf("scan %d: %w", scanID, ErrUnknownScan)
	}
	if rec.offset+rec.size() > m.mapped {
		if err := m.remap(); err != nil {
			return nil, err
		}
	}
	buf := make([]byte, rec.size())
	if _, err := m.reader.ReadAt(buf, rec.offset); err != nil {
		return nil, fmt.Errorf("read scan %d: %w", scanID, err)
	}
	s, err := decode(buf)
	if err != nil {
		return nil, fmt.Errorf("decode scan %d: %w", scanID, err)
	}
	m.recent.Add(scanID, s)
	return s, nil
}

// remap maps the spill file again after it has grown
func (m *MmapStore) remap() error {
	if m.reader != nil {
		m.reader.Close()
		m.reader = nil
	}
	r, err := mmap.Open(m.file.Name())
	if err != nil {
		return fmt.Errorf("map spill file: %w", err)
	}
	m.reader = r
	m.mapped = int64(r.Len())
	return nil
}

// Len returns the number of stored spectra
func (m *MmapStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.index)
}

// Close unmaps and removes the spill file
func (m *MmapStore) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	if m.reader != nil {
		m.reader.Close()
	}
	name := m.file.Name()
	if err := m.file.Close(); err != nil {
		return err
	}
	return os.Remove(name)
}

func encode(s spectrum.Spectrum) []byte {
	n := len(s)
	buf := make([]byte, 4+16*n)
	binary.LittleEndian.PutUint32(buf, uint32(n))
	for i, p := range s {
		binary.LittleEndian.PutUint64(buf[4+i*8:], math.Float64bits(p.Mz))
		binary.LittleEndian.PutUint64(buf[4+(n+i)*8:], math.Float64bits(p.Intens))
	}
	return buf
}

func decode(buf []byte) (spectrum.Spectrum, error) {
	if len(buf) < 4 {
		return nil, fmt.Errorf("short record (%d bytes)", len(buf))
	}
	n := int(binary.LittleEndian.Uint32(buf))
	if len(buf) < 4+16*n {
		return nil, fmt.Errorf("record of %d peaks truncated to %d bytes", n, len(buf))
	}
	s := make(spectrum.Spectrum, n)
	for i := range s {
		s[i].Mz = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+i*8:]))
		s[i].Intens = math.Float64frombits(binary.LittleEndian.Uint64(buf[4+(n+i)*8:]))
	}
	return s, nil
}
