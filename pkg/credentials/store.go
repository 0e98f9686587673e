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

package credentials

import (
	"context"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
)

// PersonalAccessToken is a credential of a user for a single SCM provider, either obtained through one of the OAuth
// flows or uploaded by the user.
type PersonalAccessToken struct {
	// SecretName is the name of the backing secret. It is assigned by the store on creation.
	SecretName string `json:"-"`
	// TokenName is the display name of the token, also used as its name in the providers that support named tokens.
	TokenName string `json:"tokenName"`
	// TokenData is the opaque token value.
	TokenData string `json:"-"`

	ScmProviderName config.ServiceProviderName `json:"gitProvider"`
	ScmProviderUrl  string                     `json:"gitProviderEndpoint"`
	ScmUserId       string                     `json:"ownerUserId"`
	ScmUserName     string                     `json:"scmUserName,omitempty"`
	IsOAuthIssued   bool                       `json:"isOAuthIssued"`
}

// Store persists the personal access tokens of the users. The tokens are scoped by the namespace of the user.
type Store interface {
	// Get returns the first token of the provider in the namespace. If the endpointHint is not empty, only the tokens
	// whose provider URL has the same host are considered. Nil is returned if there is no such token.
	Get(ctx context.Context, namespace string, provider config.ServiceProviderName, endpointHint string) (*PersonalAccessToken, error)
	// ListAll returns all the tokens in the namespace.
	ListAll(ctx context.Context, namespace string) ([]PersonalAccessToken, error)
	// Create stores the token. Existing tokens of the same provider and name are deleted first. The returned token has
	// the SecretName filled in.
	Create(ctx context.Context, namespace string, pat PersonalAccessToken) (*PersonalAccessToken, error)
	// Delete removes the token. Deleting a token that doesn't exist is not an error.
	Delete(ctx context.Context, namespace string, pat PersonalAccessToken) error
	// DeleteAll removes all the tokens of the provider in the namespace and returns the number of deleted tokens.
	DeleteAll(ctx context.Context, namespace string, provider config.ServiceProviderName) (int, error)
}
