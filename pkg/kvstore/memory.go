// Copyright (c) 2021 Red Hat, Inc.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package kvstore

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

func (e memoryEntry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// sweepInterval is the minimal time between two sweeps of the expired entries done by the writes.
const sweepInterval = time.Minute

// MemoryStore is an in-process implementation of the Store. The expired entries are evicted on lookup, the entries
// never looked up again are swept by the writes at most once per sweepInterval.
type MemoryStore struct {
	entries   map[string]memoryEntry
	lock      sync.Mutex
	nextSweep time.Time
	// now can be overridden in tests
	now func() time.Time
}

var _ Store = (*MemoryStore)(nil)

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{entries: map[string]memoryEntry{}, now: time.Now}
}

func (m *MemoryStore) Set(_ context.Context, key string, value string, ttl time.Duration) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	now := m.now()
	if !now.Before(m.nextSweep) {
		m.evictExpired(now)
	}

	entry := memoryEntry{value: value}
	if ttl > 0 {
		entry.expiresAt = now.Add(ttl)
	}
	m.entries[key] = entry
	return nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	return m.lookup(key)
}

func (m *MemoryStore) Take(_ context.Context, key string) (string, error) {
	m.lock.Lock()
	defer m.lock.Unlock()

	value, err := m.lookup(key)
	if err != nil {
		return "", err
	}
	delete(m.entries, key)
	return value, nil
}

func (m *MemoryStore) Delete(_ context.Context, key string) error {
	m.lock.Lock()
	defer m.lock.Unlock()

	delete(m.entries, key)
	return nil
}

// Len returns the number of the stored entries that have not expired yet.
func (m *MemoryStore) Len() int {
	m.lock.Lock()
	defer m.lock.Unlock()

	m.evictExpired(m.now())
	return len(m.entries)
}

// lookup must be called with the lock held.
func (m *MemoryStore) lookup(key string) (string, error) {
	entry, ok := m.entries[key]
	if !ok {
		return "", ErrNotFound
	}
	if entry.expired(m.now()) {
		delete(m.entries, key)
		return "", ErrNotFound
	}
	return entry.value, nil
}

func (m *MemoryStore) evictExpired(now time.Time) {
	for k, e := range m.entries {
		if e.expired(now) {
			delete(m.entries, k)
		}
	}
	m.nextSweep = now.Add(sweepInterval)
}
