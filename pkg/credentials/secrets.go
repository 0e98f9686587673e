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
	"fmt"
	"strconv"
	"strings"

	"github.com/redhat-appstudio/scm-oauth-service/pkg/config"
	"github.com/redhat-appstudio/scm-oauth-service/pkg/logs"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/rand"
	"sigs.k8s.io/controller-runtime/pkg/client"
	"sigs.k8s.io/controller-runtime/pkg/log"
)

const (
	PartOfLabel       = "app.kubernetes.io/part-of"
	PartOfLabelValue  = "che.eclipse.org"
	ComponentLabel    = "app.kubernetes.io/component"
	ComponentPATValue = "scm-personal-access-token"

	ProviderNameAnnotation = "che.eclipse.org/scm-provider-name"
	ProviderUrlAnnotation  = "che.eclipse.org/scm-url"
	UserIdAnnotation       = "che.eclipse.org/scm-userid"
	UserNameAnnotation     = "che.eclipse.org/scm-username"
	TokenNameAnnotation    = "che.eclipse.org/scm-personal-access-token-name"
	OAuthIssuedAnnotation  = "che.eclipse.org/scm-oauth-issued"

	TokenDataKey = "token"

	secretNamePrefix = "personal-access-token-"
)

// SecretStore keeps the personal access tokens in labeled Kubernetes secrets.
type SecretStore struct {
	Client client.Client
}

var _ Store = (*SecretStore)(nil)

func (s *SecretStore) Get(ctx context.Context, namespace string, provider config.ServiceProviderName, endpointHint string) (*PersonalAccessToken, error) {
	tokens, err := s.ListAll(ctx, namespace)
	if err != nil {
		return nil, err
	}

	hintHost := ""
	if endpointHint != "" {
		hintHost = config.NormalizeHost(endpointHint)
	}

	for i := range tokens {
		t := tokens[i]
		if !strings.EqualFold(string(t.ScmProviderName), string(provider)) {
			continue
		}
		if hintHost != "" && config.NormalizeHost(t.ScmProviderUrl) != hintHost {
			continue
		}
		return &t, nil
	}

	return nil, nil
}

func (s *SecretStore) ListAll(ctx context.Context, namespace string) ([]PersonalAccessToken, error) {
	secrets, err := s.list(ctx, namespace)
	if err != nil {
		return nil, err
	}

	tokens := make([]PersonalAccessToken, 0, len(secrets))
	for i := range secrets {
		tokens = append(tokens, fromSecret(&secrets[i]))
	}
	return tokens, nil
}

func (s *SecretStore) Create(ctx context.Context, namespace string, pat PersonalAccessToken) (*PersonalAccessToken, error) {
	lg := log.FromContext(ctx).WithValues("namespace", namespace, "provider", pat.ScmProviderName)

	if pat.TokenName == "" {
		pat.TokenName = NewTokenName()
	}

	secrets, err := s.list(ctx, namespace)
	if err != nil {
		return nil, err
	}
	for i := range secrets {
		existing := fromSecret(&secrets[i])
		if !sameToken(existing, pat) {
			continue
		}
		if err := s.Delete(ctx, namespace, existing); err != nil {
			return nil, err
		}
		lg.V(logs.DebugLevel).Info("deleted the previous personal access token", "secret", existing.SecretName)
	}

	secret := toSecret(namespace, pat)
	if err := s.Client.Create(ctx, secret); err != nil {
		return nil, fmt.Errorf("failed to create the personal access token secret: %w", err)
	}

	pat.SecretName = secret.Name
	logs.AuditLog(ctx).Info("personal access token stored", "namespace", namespace, "secret", secret.Name,
		"provider", pat.ScmProviderName, "providerUrl", pat.ScmProviderUrl, "oauthIssued", pat.IsOAuthIssued)
	return &pat, nil
}

func (s *SecretStore) Delete(ctx context.Context, namespace string, pat PersonalAccessToken) error {
	if pat.SecretName == "" {
		return nil
	}

	secret := &corev1.Secret{ObjectMeta: metav1.ObjectMeta{Name: pat.SecretName, Namespace: namespace}}
	if err := s.Client.Delete(ctx, secret); err != nil {
		if errors.IsNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to delete the personal access token secret %s: %w", pat.SecretName, err)
	}

	logs.AuditLog(ctx).Info("personal access token deleted", "namespace", namespace, "secret", pat.SecretName, "provider", pat.ScmProviderName)
	return nil
}

func (s *SecretStore) DeleteAll(ctx context.Context, namespace string, provider config.ServiceProviderName) (int, error) {
	tokens, err := s.ListAll(ctx, namespace)
	if err != nil {
		return 0, err
	}

	deleted := 0
	for _, t := range tokens {
		if !strings.EqualFold(string(t.ScmProviderName), string(provider)) {
			continue
		}
		if err := s.Delete(ctx, namespace, t); err != nil {
			return deleted, err
		}
		deleted++
	}
	return deleted, nil
}

func (s *SecretStore) list(ctx context.Context, namespace string) ([]corev1.Secret, error) {
	secrets := &corev1.SecretList{}
	if err := s.Client.List(ctx, secrets, client.InNamespace(namespace), client.MatchingLabels{
		PartOfLabel:    PartOfLabelValue,
		ComponentLabel: ComponentPATValue,
	}); err != nil {
		return nil, fmt.Errorf("failed to list the personal access token secrets in %s: %w", namespace, err)
	}
	return secrets.Items, nil
}

// NewTokenName generates a short random display name for a token.
func NewTokenName() string {
	return "che-token-" + rand.String(8)
}

// sameToken tells whether the stored token a is replaced by b. A token issued by the OAuth flows replaces the one
// issued to the same user by the same provider endpoint, other tokens are replaced by name.
func sameToken(a, b PersonalAccessToken) bool {
	if !strings.EqualFold(string(a.ScmProviderName), string(b.ScmProviderName)) ||
		config.NormalizeHost(a.ScmProviderUrl) != config.NormalizeHost(b.ScmProviderUrl) {
		return false
	}
	if b.IsOAuthIssued {
		return a.IsOAuthIssued && a.ScmUserId == b.ScmUserId
	}
	return a.TokenName == b.TokenName
}

func toSecret(namespace string, pat PersonalAccessToken) *corev1.Secret {
	return &corev1.Secret{
		ObjectMeta: metav1.ObjectMeta{
			Name:      secretNamePrefix + rand.String(5),
			Namespace: namespace,
			Labels: map[string]string{
				PartOfLabel:    PartOfLabelValue,
				ComponentLabel: ComponentPATValue,
			},
			Annotations: map[string]string{
				ProviderNameAnnotation: string(pat.ScmProviderName),
				ProviderUrlAnnotation:  strings.TrimSuffix(pat.ScmProviderUrl, "/"),
				UserIdAnnotation:       pat.ScmUserId,
				UserNameAnnotation:     pat.ScmUserName,
				TokenNameAnnotation:    pat.TokenName,
				OAuthIssuedAnnotation:  strconv.FormatBool(pat.IsOAuthIssued),
			},
		},
		Data: map[string][]byte{
			TokenDataKey: []byte(pat.TokenData),
		},
		Type: corev1.SecretTypeOpaque,
	}
}

func fromSecret(secret *corev1.Secret) PersonalAccessToken {
	annotations := secret.Annotations
	oauthIssued, _ := strconv.ParseBool(annotations[OAuthIssuedAnnotation])
	return PersonalAccessToken{
		SecretName:      secret.Name,
		TokenName:       annotations[TokenNameAnnotation],
		TokenData:       string(secret.Data[TokenDataKey]),
		ScmProviderName: config.ServiceProviderName(annotations[ProviderNameAnnotation]),
		ScmProviderUrl:  annotations[ProviderUrlAnnotation],
		ScmUserId:       annotations[UserIdAnnotation],
		ScmUserName:     annotations[UserNameAnnotation],
		IsOAuthIssued:   oauthIssued,
	}
}
