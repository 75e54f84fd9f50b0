/*
 * Copyright (C) 2024 Nuts community
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License as published by
 * the Free Software Foundation, either version 3 of the License, or
 * (at your option) any later version.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <https://www.gnu.org/licenses/>.
 */

package openid4vci

import (
	"errors"
	"fmt"

	"github.com/nuts-foundation/openid4vci-wallet/oauth"
)

// Kind is a closed taxonomy of error categories a caller can switch on, following the
// teacher's vcr/oidc4vci.Error pattern of a typed code rather than a bare string.
type Kind string

const (
	KindValidation        Kind = "validation"
	KindMetadataInvalid   Kind = "metadata_invalid"
	KindOfferInvalid      Kind = "offer_invalid"
	KindTransport         Kind = "transport"
	KindOAuthError        Kind = "oauth_error"
	KindInvalidProof      Kind = "invalid_proof"
	KindCryptographic     Kind = "cryptographic"
	KindUnsupportedFeature Kind = "unsupported_feature"
)

// ErrValidation, ErrMetadataInvalid and friends are the sentinels errors.Is can match against,
// regardless of which wrapped cause or structured field a particular Error carries.
var (
	ErrValidation         = errors.New("validation error")
	ErrMetadataInvalid    = errors.New("credential issuer or authorization server metadata invalid")
	ErrOfferInvalid       = errors.New("credential offer invalid")
	ErrTransport          = errors.New("transport error")
	ErrOAuth              = errors.New("oauth error")
	ErrInvalidProof       = errors.New("invalid proof")
	ErrCryptographic      = errors.New("cryptographic error")
	ErrUnsupportedFeature = errors.New("unsupported feature")
)

var sentinelByKind = map[Kind]error{
	KindValidation:         ErrValidation,
	KindMetadataInvalid:    ErrMetadataInvalid,
	KindOfferInvalid:       ErrOfferInvalid,
	KindTransport:          ErrTransport,
	KindOAuthError:         ErrOAuth,
	KindInvalidProof:       ErrInvalidProof,
	KindCryptographic:      ErrCryptographic,
	KindUnsupportedFeature: ErrUnsupportedFeature,
}

// Error is the single error type this library returns. It carries a closed Kind, an optional
// wrapped cause, and kind-specific structured fields, following the teacher's
// vcr/oidc4vci.Error / core.HttpError pattern of typed errors over free-form strings.
type Error struct {
	Kind Kind
	// Message is a human-readable description, independent of Cause (which may be nil).
	Message string
	// Cause is the underlying error, if any (a transport error, a JSON decode error, ...).
	Cause error
	// CNonce is set on KindInvalidProof: the fresh c_nonce the issuer returned alongside the error.
	CNonce string
	// OAuth2Error is set on KindOAuthError: the structured error body from the AS or issuer.
	OAuth2Error *oauth.ErrorResponse
	// StatusCode is the HTTP status code that produced this error, when applicable.
	StatusCode int
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %s", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Is matches e against the sentinel for its Kind, so callers can write errors.Is(err, openid4vci.ErrInvalidProof).
func (e *Error) Is(target error) bool {
	sentinel, ok := sentinelByKind[e.Kind]
	return ok && errors.Is(sentinel, target)
}

// NewError builds an Error of the given kind wrapping cause, with a formatted message.
func NewError(kind Kind, cause error, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// ValidationError builds a KindValidation Error.
func ValidationError(format string, args ...interface{}) *Error {
	return NewError(KindValidation, nil, format, args...)
}

// MetadataInvalidError builds a KindMetadataInvalid Error.
func MetadataInvalidError(cause error, format string, args ...interface{}) *Error {
	return NewError(KindMetadataInvalid, cause, format, args...)
}

// OfferInvalidError builds a KindOfferInvalid Error.
func OfferInvalidError(format string, args ...interface{}) *Error {
	return NewError(KindOfferInvalid, nil, format, args...)
}

// TransportError builds a KindTransport Error.
func TransportError(cause error, format string, args ...interface{}) *Error {
	return NewError(KindTransport, cause, format, args...)
}

// OAuthError builds a KindOAuthError Error carrying the structured response body.
func OAuthError(statusCode int, body *oauth.ErrorResponse) *Error {
	description := string(body.Code)
	if body.Description != "" {
		description = fmt.Sprintf("%s: %s", body.Code, body.Description)
	}
	return &Error{
		Kind:        KindOAuthError,
		Message:     description,
		OAuth2Error: body,
		StatusCode:  statusCode,
	}
}

// InvalidProofError builds a KindInvalidProof Error carrying the fresh c_nonce the issuer returned.
func InvalidProofError(cNonce string, description string) *Error {
	return &Error{Kind: KindInvalidProof, Message: description, CNonce: cNonce}
}

// CryptographicError builds a KindCryptographic Error.
func CryptographicError(cause error, format string, args ...interface{}) *Error {
	return NewError(KindCryptographic, cause, format, args...)
}

// UnsupportedFeatureError builds a KindUnsupportedFeature Error.
func UnsupportedFeatureError(format string, args ...interface{}) *Error {
	return NewError(KindUnsupportedFeature, nil, format, args...)
}
