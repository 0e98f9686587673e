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

package errors

import (
	"errors"
	"fmt"
	"io"
	"net/http"
)

// Kind classifies the failures of the OAuth flows so that callers can branch on data instead of error types.
type Kind int

const (
	// ProtocolError means malformed or missing OAuth parameters or an unexpected response from the provider.
	ProtocolError Kind = iota
	// UserDenied means that the user explicitly refused to authorize the application.
	UserDenied
	// UnknownCredential means there is no stored credential matching the request.
	UnknownCredential
	// ProviderExchangeFailure means the provider refused the code or token exchange.
	ProviderExchangeFailure
)

func (k Kind) String() string {
	switch k {
	case ProtocolError:
		return "protocol error"
	case UserDenied:
		return "user denied"
	case UnknownCredential:
		return "unknown credential"
	case ProviderExchangeFailure:
		return "provider exchange failure"
	}
	return "unknown error kind"
}

// ErrorCode is the value of the `error_code` query parameter appended to the redirect target when a browser flow
// fails.
func (k Kind) ErrorCode() string {
	if k == UserDenied {
		return "access_denied"
	}
	return "invalid_request"
}

// Error is an error carrying its Kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Kind, e.Message)
	}
	return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Err.Error())
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a new error of the provided kind.
func New(kind Kind, msg string, cause error) *Error {
	return &Error{Kind: kind, Message: msg, Err: cause}
}

// KindOf returns the kind of the first Error found in the chain of the provided error. Errors that don't carry any
// kind are reported as ProtocolError.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return ProtocolError
}

// IsKind checks whether the provided error carries the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	return errors.As(err, &e) && e.Kind == kind
}

// ServiceProviderError represents a non-successful HTTP response of a service provider API.
type ServiceProviderError struct {
	StatusCode int
	Response   string
}

func (e ServiceProviderError) Error() string {
	return fmt.Sprintf("%s (http status %d): %s", e.describe(), e.StatusCode, e.Response)
}

func (e ServiceProviderError) describe() string {
	if e.StatusCode == http.StatusUnauthorized || e.StatusCode == http.StatusForbidden {
		return "invalid access token"
	} else if e.StatusCode >= 500 {
		return "error in the service provider"
	}
	return "unexpected response from the service provider"
}

func IsServiceProviderError(err error) bool {
	spe := ServiceProviderError{}
	return errors.As(err, &spe)
}

// FromHttpResponse returns a ServiceProviderError for responses with status codes 400 and above. The body of the
// response is consumed in that case.
func FromHttpResponse(response *http.Response) error {
	if response.StatusCode < 400 {
		return nil
	}

	body := ""
	if response.Body != nil {
		bytes, err := io.ReadAll(response.Body)
		if err == nil {
			body = string(bytes)
		}
	}

	return ServiceProviderError{
		StatusCode: response.StatusCode,
		Response:   body,
	}
}
