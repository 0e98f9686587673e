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

package cmd

import (
	"context"
	"errors"
	"fmt"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/kvstore"
	"github.com/redis/go-redis/v9"
)

var (
	errUnsupportedKVStore = errors.New("unsupported key-value store type")
)

// InitKVStore creates the key-value store selected on the command line and checks it is usable.
func InitKVStore(ctx context.Context, args *KVStoreCliArgs) (kvstore.Store, error) {
	switch args.KVStore {
	case MemoryKVStore:
		return kvstore.NewMemoryStore(), nil
	case RedisKVStore:
		return createRedisStore(ctx, args)
	default:
		return nil, fmt.Errorf("%w '%s'", errUnsupportedKVStore, args.KVStore)
	}
}

// KVStores are the stores of the OAuth 1.0a engines.
type KVStores struct {
	TemporaryTokens   kvstore.Store
	AccessCredentials kvstore.Store
}

// InitKVStores creates the stores of the request token secrets and the access credentials. The in-memory stores are
// separate instances so that sweeping the short-lived request token secrets doesn't walk the access credentials, the
// keys of the two never collide in a shared Redis.
func InitKVStores(ctx context.Context, args *KVStoreCliArgs) (KVStores, error) {
	temporaryTokens, err := InitKVStore(ctx, args)
	if err != nil {
		return KVStores{}, err
	}

	stores := KVStores{TemporaryTokens: temporaryTokens, AccessCredentials: temporaryTokens}
	if args.KVStore == MemoryKVStore {
		stores.AccessCredentials = kvstore.NewMemoryStore()
	}
	return stores, nil
}

func createRedisStore(ctx context.Context, args *KVStoreCliArgs) (kvstore.Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     args.RedisAddr,
		Password: args.RedisPassword,
		DB:       args.RedisDB,
	})

	store := kvstore.NewRedisStore(client, args.RedisKeyPrefix)
	if err := store.Initialize(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return store, nil
}
