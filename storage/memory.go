package storage

import (
	"sync"
	"time"
)

type usageKey struct {
	userId  int64
	service string
}

type MemoryStorage struct {
	users      map[int64]*User
	usage      map[usageKey]int
	selections map[int64]string
	mutex      sync.RWMutex
}

func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		users:      make(map[int64]*User),
		usage:      make(map[usageKey]int),
		selections: make(map[int64]string),
	}
}

func (m *MemoryStorage) EnsureUser(user *User) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, ok := m.users[user.UserId]; ok {
		return nil
	}

	cc := *user
	cc.CreatedAt = time.Now()
	m.users[user.UserId] = &cc
	return nil
}

func (m *MemoryStorage) IncrementUsage(userId int64, serviceName string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.usage[usageKey{userId, serviceName}]++
	return nil
}

func (m *MemoryStorage) UsageCounts(userId int64) (map[string]int, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()

	counts := make(map[string]int)
	for key, count := range m.usage {
		if key.userId == userId {
			counts[key.service] = count
		}
	}
	return counts, nil
}

func (m *MemoryStorage) Selection(userId int64) (string, error) {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	return m.selections[userId], nil
}

func (m *MemoryStorage) SetSelection(userId int64, tag string) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()
	m.selections[userId] = tag
	return nil
}

func (m *MemoryStorage) Close() error {
	return nil
}

// GetUser is used by tests to inspect recorded users.
func (m *MemoryStorage) GetUser(userId int64) *User {
	m.mutex.RLock()
	defer m.mutex.RUnlock()
	if user, ok := m.users[userId]; ok {
		cc := *user
		return &cc
	}
	return nil
}
