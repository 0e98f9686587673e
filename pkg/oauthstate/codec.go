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

package oauthstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/url"

	"github.com/go-jose/go-jose/v3"
)

var (
	ErrUnsignedState    = errors.New("the state is not signed")
	ErrInvalidSignature = errors.New("the signature of the state doesn't match")
	errNoSigningSecret  = errors.New("no secret for signing the state configured")
)

// Codec signs the state so that the callbacks can trust the identity it carries. The signature is a detached JWS
// over the JSON of the other fields so the state keeps its base64 JSON and query string forms.
type Codec struct {
	signer        jose.Signer
	signingSecret []byte
}

func NewCodec(signingSecret []byte) (*Codec, error) {
	if len(signingSecret) == 0 {
		return nil, errNoSigningSecret
	}

	signer, err := jose.NewSigner(jose.SigningKey{
		Algorithm: jose.HS256,
		Key:       signingSecret,
	}, (&jose.SignerOptions{}).WithType("SCM-OAUTH-STATE"))
	if err != nil {
		return nil, fmt.Errorf("failed to create the state signer: %w", err)
	}

	return &Codec{signer: signer, signingSecret: signingSecret}, nil
}

// Sign returns the copy of the state with the Signature set.
func (c *Codec) Sign(state OAuthState) (OAuthState, error) {
	payload, err := signedPayload(state)
	if err != nil {
		return state, err
	}

	jws, err := c.signer.Sign(payload)
	if err != nil {
		return state, fmt.Errorf("failed to sign the state: %w", err)
	}
	signature, err := jws.DetachedCompactSerialize()
	if err != nil {
		return state, fmt.Errorf("failed to serialize the state signature: %w", err)
	}

	state.Signature = signature
	return state, nil
}

// Verify checks that none of the fields changed since the state was signed.
func (c *Codec) Verify(state OAuthState) error {
	if state.Signature == "" {
		return ErrUnsignedState
	}

	payload, err := signedPayload(state)
	if err != nil {
		return err
	}

	jws, err := jose.ParseDetached(state.Signature, payload)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err.Error())
	}
	if _, err := jws.Verify(c.signingSecret); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidSignature, err.Error())
	}
	return nil
}

// Encode signs the state and serializes it as base64 encoded JSON.
func (c *Codec) Encode(state OAuthState) (string, error) {
	signed, err := c.Sign(state)
	if err != nil {
		return "", err
	}
	return Encode(signed)
}

// SignedValues signs the state and returns it as query parameters.
func (c *Codec) SignedValues(state OAuthState) (url.Values, error) {
	signed, err := c.Sign(state)
	if err != nil {
		return nil, err
	}
	return signed.Values(), nil
}

// Parse decodes the state like the package level Parse and verifies its signature. The decoded state is returned
// together with the verification error so that the caller can still log what it contained.
func (c *Codec) Parse(encoded string) (OAuthState, error) {
	state, err := Parse(encoded)
	if err != nil {
		return state, err
	}
	return state, c.Verify(state)
}

func signedPayload(state OAuthState) ([]byte, error) {
	state.Signature = ""
	payload, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to serialize the state: %w", err)
	}
	return payload, nil
}
