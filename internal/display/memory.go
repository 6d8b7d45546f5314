package display

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// MemoryDocument keeps the elements in process memory.
type MemoryDocument struct {
	mu       sync.RWMutex
	elements map[string]*Element
	now      func() time.Time
}

func NewMemoryDocument(defs []ElementDef) *MemoryDocument {
	d := &MemoryDocument{
		elements: make(map[string]*Element, len(defs)),
		now:      time.Now,
	}
	for _, s := range defs {
		d.elements[s.ID] = &Element{ID: s.ID, Kind: s.Kind}
	}
	return d
}

func (d *MemoryDocument) SetText(_ context.Context, id, text string) error {
	return d.update(id, func(e *Element) { e.Text = text })
}

func (d *MemoryDocument) SetValue(_ context.Context, id, value string) error {
	return d.update(id, func(e *Element) { e.Value = value })
}

func (d *MemoryDocument) update(id string, fn func(*Element)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	e, ok := d.elements[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	fn(e)
	e.UpdatedAt = d.now()
	return nil
}

func (d *MemoryDocument) Element(_ context.Context, id string) (Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	e, ok := d.elements[id]
	if !ok {
		return Element{}, fmt.Errorf("%w: %s", ErrElementNotFound, id)
	}
	return *e, nil
}

func (d *MemoryDocument) Snapshot(_ context.Context) ([]Element, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]Element, 0, len(d.elements))
	for _, e := range d.elements {
		out = append(out, *e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

var _ Document = (*MemoryDocument)(nil)
