package upload

// HeldTxLocks reports how many transactions currently have a lock entry.
func (m *Manager) HeldTxLocks() int {
	m.locksMu.Lock()
	defer m.locksMu.Unlock()
	return len(m.txLocks)
}
