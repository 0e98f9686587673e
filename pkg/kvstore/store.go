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
	"errors"
	"time"
)

// ErrNotFound is returned when there is no (unexpired) value stored under the requested key.
var ErrNotFound = errors.New("key not found")

// Store is a simple key-value store with per-key expiration. It is used for the short-lived secrets that need to
// survive between the two legs of an OAuth flow and for the issued credentials of the users.
type Store interface {
	// Set stores the value under the key. A ttl <= 0 means the value never expires.
	Set(ctx context.Context, key string, value string, ttl time.Duration) error
	// Get returns the value stored under the key or ErrNotFound.
	Get(ctx context.Context, key string) (string, error)
	// Take atomically returns and removes the value stored under the key. At most one of the concurrent callers taking
	// the same key succeeds, the rest gets ErrNotFound.
	Take(ctx context.Context, key string) (string, error)
	// Delete removes the value. Deleting a non-existent key is not an error.
	Delete(ctx context.Context, key string) error
}
