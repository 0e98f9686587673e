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

package oauth1

import (
	"crypto"
	"crypto/hmac"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // SHA-1 is mandated by RFC 5849
	"crypto/x509"
	"encoding/base64"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// The names of the protocol parameters.
const (
	CallbackParam        = "oauth_callback"
	ConsumerKeyParam     = "oauth_consumer_key"
	NonceParam           = "oauth_nonce"
	SignatureParam       = "oauth_signature"
	SignatureMethodParam = "oauth_signature_method"
	TimestampParam       = "oauth_timestamp"
	TokenParam           = "oauth_token"
	TokenSecretParam     = "oauth_token_secret"
	VerifierParam        = "oauth_verifier"
	VersionParam         = "oauth_version"
)

// SignatureMethod is the algorithm used to sign the requests.
type SignatureMethod string

const (
	RsaSha1  SignatureMethod = "RSA-SHA1"
	HmacSha1 SignatureMethod = "HMAC-SHA1"
)

var (
	errNoPrivateKey    = errors.New("no private key configured for RSA-SHA1 signatures")
	errInvalidKeyData  = errors.New("the private key is neither PEM nor base64 encoded DER")
	errNotRsaKey       = errors.New("the private key is not an RSA key")
	errUnknownSigMeth  = errors.New("unknown signature method")
	errEmptyKeyContent = errors.New("empty private key")
)

// ParseSignatureMethod accepts both the short ("rsa", "hmac") and the protocol ("RSA-SHA1", "HMAC-SHA1") names. An
// empty value means RSA-SHA1.
func ParseSignatureMethod(value string) (SignatureMethod, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "", "rsa", "rsa-sha1":
		return RsaSha1, nil
	case "hmac", "hmac-sha1":
		return HmacSha1, nil
	}
	return "", fmt.Errorf("%w: %s", errUnknownSigMeth, value)
}

// ParsePrivateKey reads the RSA private key either from a PEM block or from base64 encoded DER. Both PKCS#8 and PKCS#1
// are supported.
func ParsePrivateKey(data string) (*rsa.PrivateKey, error) {
	data = strings.TrimSpace(data)
	if data == "" {
		return nil, errEmptyKeyContent
	}

	var der []byte
	if block, _ := pem.Decode([]byte(data)); block != nil {
		der = block.Bytes
	} else {
		// the base64 form is sometimes wrapped into multiple lines
		decoded, err := base64.StdEncoding.DecodeString(strings.Join(strings.Fields(data), ""))
		if err != nil {
			return nil, errInvalidKeyData
		}
		der = decoded
	}

	if key, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		rsaKey, ok := key.(*rsa.PrivateKey)
		if !ok {
			return nil, errNotRsaKey
		}
		return rsaKey, nil
	}

	key, err := x509.ParsePKCS1PrivateKey(der)
	if err != nil {
		return nil, fmt.Errorf("failed to parse the private key: %w", err)
	}
	return key, nil
}

// Signer computes the signatures of the requests on behalf of a single consumer.
type Signer struct {
	ConsumerKey    string
	ConsumerSecret string
	PrivateKey     *rsa.PrivateKey

	// Clock and Random can be replaced in tests.
	Clock  func() time.Time
	Random io.Reader
}

// Sign computes the signature of the base string.
func (s *Signer) Sign(method SignatureMethod, baseString string, tokenSecret string) (string, error) {
	switch method {
	case RsaSha1:
		if s.PrivateKey == nil {
			return "", errNoPrivateKey
		}
		digest := sha1.Sum([]byte(baseString)) //nolint:gosec // SHA-1 is mandated by RFC 5849
		signature, err := rsa.SignPKCS1v15(s.random(), s.PrivateKey, crypto.SHA1, digest[:])
		if err != nil {
			return "", fmt.Errorf("failed to compute the RSA-SHA1 signature: %w", err)
		}
		return base64.StdEncoding.EncodeToString(signature), nil
	case HmacSha1:
		mac := hmac.New(sha1.New, []byte(PercentEncode(s.ConsumerSecret)+"&"+PercentEncode(tokenSecret)))
		mac.Write([]byte(baseString))
		return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
	}
	return "", fmt.Errorf("%w: %s", errUnknownSigMeth, method)
}

// ProtocolParameters returns the oauth_* parameters common to all the requests, i.e. consumer key, nonce, signature
// method, timestamp and version, merged with the provided extra ones (like oauth_token or oauth_callback).
func (s *Signer) ProtocolParameters(method SignatureMethod, extra map[string]string) (map[string]string, error) {
	nonce, err := s.nonce()
	if err != nil {
		return nil, err
	}

	params := map[string]string{
		ConsumerKeyParam:     s.ConsumerKey,
		NonceParam:           nonce,
		SignatureMethodParam: string(method),
		TimestampParam:       strconv.FormatInt(s.now().Unix(), 10),
		VersionParam:         "1.0",
	}
	for k, v := range extra {
		params[k] = v
	}
	return params, nil
}

// SignedAuthorizationHeader signs the request and returns the value of the Authorization header for it. The query
// parameters of the request URL are part of the signed parameters.
func (s *Signer) SignedAuthorizationHeader(sigMethod SignatureMethod, httpMethod string, requestUrl *url.URL, tokenSecret string, extra map[string]string) (string, error) {
	params, err := s.ProtocolParameters(sigMethod, extra)
	if err != nil {
		return "", err
	}

	signed := requestUrl.Query()
	for k, v := range params {
		signed.Set(k, v)
	}

	signature, err := s.Sign(sigMethod, SignatureBaseString(httpMethod, requestUrl, signed), tokenSecret)
	if err != nil {
		return "", err
	}
	params[SignatureParam] = signature

	return AuthorizationHeader(params), nil
}

func (s *Signer) nonce() (string, error) {
	b := make([]byte, 16)
	if _, err := io.ReadFull(s.random(), b); err != nil {
		return "", fmt.Errorf("failed to generate the nonce: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func (s *Signer) now() time.Time {
	if s.Clock != nil {
		return s.Clock()
	}
	return time.Now()
}

func (s *Signer) random() io.Reader {
	if s.Random != nil {
		return s.Random
	}
	return rand.Reader
}
