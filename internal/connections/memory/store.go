// Package memory provides an in-memory connection registry.
package memory

import (
	"context"
	"sync"

	"github.com/mipworks/algo-control-plane/internal/connections"
)

// Store keeps connections in a mutex-guarded map with a reverse index by
// connection ref.
type Store struct {
	mu       sync.RWMutex
	byClient map[string]connections.Connection
	byConn   map[string]string
}

// NewStore constructs an empty Store.
func NewStore() *Store {
	return &Store{
		byClient: make(map[string]connections.Connection),
		byConn:   make(map[string]string),
	}
}

// Put upserts the row for the client; a previous connection ref for the
// same client is dropped from the reverse index.
func (s *Store) Put(_ context.Context, c connections.Connection) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.byClient[c.ClientID]; ok {
		delete(s.byConn, prev.ConnectionRef)
	}
	s.byClient[c.ClientID] = c
	s.byConn[c.ConnectionRef] = c.ClientID
	return nil
}

// GetByClient returns the live connection for a client.
func (s *Store) GetByClient(_ context.Context, clientID string) (connections.Connection, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.byClient[clientID]
	if !ok {
		return connections.Connection{}, connections.ErrNotFound
	}
	return c, nil
}

// DeleteByConnection removes the row only if the ref still owns it.
func (s *Store) DeleteByConnection(_ context.Context, connectionRef string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	clientID, ok := s.byConn[connectionRef]
	if !ok {
		return nil
	}
	delete(s.byConn, connectionRef)
	delete(s.byClient, clientID)
	return nil
}

// DeleteByClient removes whatever connection the client currently has.
func (s *Store) DeleteByClient(_ context.Context, clientID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.byClient[clientID]
	if !ok {
		return nil
	}
	delete(s.byClient, clientID)
	delete(s.byConn, c.ConnectionRef)
	return nil
}

// Len reports the number of registered clients.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byClient)
}
