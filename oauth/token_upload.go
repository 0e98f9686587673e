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

package oauth

import (
	"context"
	"fmt"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/credentials"
)

// TokenUploader is used to permanently persist the personal access tokens supplied by the users.
type TokenUploader interface {
	Upload(ctx context.Context, namespace string, pat credentials.PersonalAccessToken) (*credentials.PersonalAccessToken, error)
}

// UploadFunc used to provide anonymous implementation of TokenUploader.
// Example:
//
//	uploader := UploadFunc(func(ctx context.Context, namespace string, pat credentials.PersonalAccessToken) (*credentials.PersonalAccessToken, error) {
//		return nil, fmt.Errorf("failed to store the token data into storage")
//	})
type UploadFunc func(ctx context.Context, namespace string, pat credentials.PersonalAccessToken) (*credentials.PersonalAccessToken, error)

func (u UploadFunc) Upload(ctx context.Context, namespace string, pat credentials.PersonalAccessToken) (*credentials.PersonalAccessToken, error) {
	return u(ctx, namespace, pat)
}

// This variable is a guard to ensure that UploadFunc actually satisfies the TokenUploader interface
var _ TokenUploader = (UploadFunc)(nil)

// StoreTokenUploader stores the uploaded tokens in the credential store.
type StoreTokenUploader struct {
	Store credentials.Store
}

var _ TokenUploader = (*StoreTokenUploader)(nil)

func (u *StoreTokenUploader) Upload(ctx context.Context, namespace string, pat credentials.PersonalAccessToken) (*credentials.PersonalAccessToken, error) {
	AuditLogWithTokenInfo(ctx, "manual token upload initiated", namespace, string(pat.ScmProviderName), "action", "UPDATE")

	pat.IsOAuthIssued = false
	stored, err := u.Store.Create(ctx, namespace, pat)
	if err != nil {
		return nil, fmt.Errorf("failed to store the token data into storage: %w", err)
	}

	AuditLogWithTokenInfo(ctx, "manual token upload done", namespace, string(pat.ScmProviderName), "secret", stored.SecretName)
	return stored, nil
}
