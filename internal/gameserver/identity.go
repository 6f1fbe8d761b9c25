package gameserver

import "sync"

// identityMap binds connection ids to the player identity they logged in
// with. It is the only router state outside the session store, and it is
// advisory: roster entries remain the source of truth for membership.
type identityMap struct {
	mu     sync.RWMutex
	byConn map[uint64]string
}

func newIdentityMap() *identityMap {
	return &identityMap{byConn: make(map[uint64]string)}
}

func (m *identityMap) set(connID uint64, username string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.byConn[connID] = username
}

func (m *identityMap) get(connID uint64) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	username, ok := m.byConn[connID]
	return username, ok
}

func (m *identityMap) clear(connID uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byConn, connID)
}
