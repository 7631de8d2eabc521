// Package memory provides an in-memory artifact store for development and
// tests.
package memory

import (
	"context"
	"sync"
)

// Provider records saved objects in a map.
type Provider struct {
	mu      sync.RWMutex
	objects map[string][]byte
}

// New constructs an empty Provider.
func New() *Provider {
	return &Provider{objects: make(map[string][]byte)}
}

// Ref returns a fixed in-memory reference.
func (p *Provider) Ref() string { return "mem://artifacts" }

// Save stores a copy of the data under the object name.
func (p *Provider) Save(_ context.Context, objectName string, data []byte) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.objects[objectName] = append([]byte(nil), data...)
	return nil
}

// Object returns the stored bytes and whether the object exists.
func (p *Provider) Object(objectName string) ([]byte, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	data, ok := p.objects[objectName]
	return data, ok
}

// Len reports the number of stored objects.
func (p *Provider) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.objects)
}
