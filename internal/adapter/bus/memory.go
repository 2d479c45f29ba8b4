package bus

import (
	"errors"
	"sync"

	"github.com/berfenger/exportlimit/internal/core/domain"
	"github.com/berfenger/exportlimit/internal/core/port"
)

type MemoryWrite struct {
	ServiceID string
	Path      string
	Value     float64
}

// MemoryBus is an in-process bus. Only items added with Set can be read or written.
type MemoryBus struct {
	mu         sync.Mutex
	values     map[string]float64
	failReads  map[string]bool
	failWrites map[string]bool
	reads      map[string]int
	writes     []MemoryWrite
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{
		values:     map[string]float64{},
		failReads:  map[string]bool{},
		failWrites: map[string]bool{},
		reads:      map[string]int{},
	}
}

func itemKey(serviceID, path string) string {
	return serviceID + path
}

func (b *MemoryBus) Set(serviceID, path string, value float64) *MemoryBus {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.values[itemKey(serviceID, path)] = value
	return b
}

func (b *MemoryBus) Remove(serviceID, path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.values, itemKey(serviceID, path))
}

// FailReads makes an existing item stop answering reads.
func (b *MemoryBus) FailReads(serviceID, path string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failReads[itemKey(serviceID, path)] = fail
}

// FailWrites makes writes to an item be rejected.
func (b *MemoryBus) FailWrites(serviceID, path string, fail bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failWrites[itemKey(serviceID, path)] = fail
}

func (b *MemoryBus) Read(serviceID, path string) (float64, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := itemKey(serviceID, path)
	b.reads[key]++
	value, ok := b.values[key]
	if !ok {
		return 0, domain.NewNotFound(serviceID, path, nil)
	}
	if b.failReads[key] {
		return 0, domain.NewNotFound(serviceID, path, errors.New("no reply"))
	}
	return value, nil
}

func (b *MemoryBus) Write(serviceID, path string, value float64) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	key := itemKey(serviceID, path)
	if _, ok := b.values[key]; !ok {
		return domain.NewWriteError(serviceID, path, errors.New("unknown item"))
	}
	if b.failWrites[key] {
		return domain.NewWriteError(serviceID, path, errors.New("rejected"))
	}
	b.values[key] = value
	b.writes = append(b.writes, MemoryWrite{ServiceID: serviceID, Path: path, Value: value})
	return nil
}

func (b *MemoryBus) Value(serviceID, path string) (float64, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	value, ok := b.values[itemKey(serviceID, path)]
	return value, ok
}

func (b *MemoryBus) ReadCount(serviceID, path string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.reads[itemKey(serviceID, path)]
}

func (b *MemoryBus) Writes() []MemoryWrite {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]MemoryWrite(nil), b.writes...)
}

// ensure interface compliance
var _ port.Bus = (*MemoryBus)(nil)
