package session

import "sync"

// Conn is a live channel attached to a session.
type Conn interface {
	Close() error
}

// connectionManager tracks at most one live channel per session.
type connectionManager struct {
	mu    sync.RWMutex
	conns map[string]Conn
}

func newConnectionManager() *connectionManager {
	return &connectionManager{conns: make(map[string]Conn)}
}

// add records conn for sessionID and returns the replaced connection, if any.
func (cm *connectionManager) add(sessionID string, conn Conn) Conn {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	old, exists := cm.conns[sessionID]
	cm.conns[sessionID] = conn
	if exists && old != conn {
		return old
	}
	return nil
}

// has reports whether a channel is attached to sessionID.
func (cm *connectionManager) has(sessionID string) bool {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	_, ok := cm.conns[sessionID]
	return ok
}

// remove drops conn only while it is still the attached one.
func (cm *connectionManager) remove(sessionID string, conn Conn) bool {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	current, ok := cm.conns[sessionID]
	if !ok || current != conn {
		return false
	}
	delete(cm.conns, sessionID)
	return true
}

// take removes and returns whatever is attached to sessionID.
func (cm *connectionManager) take(sessionID string) Conn {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	current, ok := cm.conns[sessionID]
	if !ok {
		return nil
	}
	delete(cm.conns, sessionID)
	return current
}

// closeAll closes and forgets every attached channel.
func (cm *connectionManager) closeAll() {
	cm.mu.Lock()
	conns := cm.conns
	cm.conns = make(map[string]Conn)
	cm.mu.Unlock()

	for _, conn := range conns {
		_ = conn.Close()
	}
}
