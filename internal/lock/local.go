// README: Process-local lease locker for single-instance runs without Redis.
package lock

import (
	"context"
	"sync"
	"time"
)

type lease struct {
	holder  *LocalLocker
	expires time.Time
}

// LocalTable is the shared lease table of one process. Lockers created from
// the same table exclude each other.
type LocalTable struct {
	mu     sync.Mutex
	leases map[string]lease
	now    func() time.Time
}

func NewLocalTable() *LocalTable {
	return &LocalTable{leases: make(map[string]lease), now: time.Now}
}

// LocalLocker holds leases in a LocalTable. It gives no exclusion across
// processes.
type LocalLocker struct {
	table *LocalTable
}

func (t *LocalTable) Locker() *LocalLocker {
	return &LocalLocker{table: t}
}

// NewLocalLocker returns a locker on its own table.
func NewLocalLocker() *LocalLocker {
	return NewLocalTable().Locker()
}

func (l *LocalLocker) Acquire(_ context.Context, name string, ttl time.Duration) (bool, error) {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.now()
	if cur, ok := t.leases[name]; ok && now.Before(cur.expires) {
		return false, nil
	}
	t.leases[name] = lease{holder: l, expires: now.Add(ttl)}
	return true, nil
}

func (l *LocalLocker) Release(_ context.Context, name string) error {
	t := l.table
	t.mu.Lock()
	defer t.mu.Unlock()

	if cur, ok := t.leases[name]; ok && cur.holder == l {
		delete(t.leases, name)
	}
	return nil
}
