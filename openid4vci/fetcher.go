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
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/nuts-foundation/openid4vci-wallet/core"
)

// Response is the transport-level result of a Fetcher call: status, raw body and headers.
// Decoding is deliberately left to the caller (via DecodeJSON) because a non-2xx body still
// needs inspecting — for a structured OAuth error, an invalid_proof c_nonce, or a use_dpop_nonce
// retry signal — rather than being thrown away at the transport boundary.
type Response struct {
	StatusCode int
	Body       []byte
	Header     http.Header
}

// IsSuccess reports whether the response status is in the 2xx range.
func (r *Response) IsSuccess() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// DPoPNonce returns the DPoP-Nonce response header, if present. Every response, success or
// failure, may carry one; the DPoP Engine updates its nonce cell from it unconditionally.
func (r *Response) DPoPNonce() string {
	return r.Header.Get("DPoP-Nonce")
}

// DecodeJSON decodes a Response body as JSON into T.
func DecodeJSON[T any](r *Response) (T, error) {
	var value T
	if err := json.Unmarshal(r.Body, &value); err != nil {
		var zero T
		return zero, TransportError(err, "could not decode JSON response body")
	}
	return value, nil
}

// Fetcher abstracts the HTTP transport the issuance state machine depends on: GET for
// discovery/offer-by-reference, form-encoded POST for OAuth2 endpoints, JSON POST for
// OpenID4VCI endpoints. Every method call is one suspension point in the single-logical-flow
// model of spec §5; a Fetcher implementation must tolerate concurrent calls from distinct
// sessions.
type Fetcher interface {
	Get(ctx context.Context, url string, headers http.Header) (*Response, error)
	PostForm(ctx context.Context, url string, form url.Values, headers http.Header) (*Response, error)
	PostJSON(ctx context.Context, url string, body interface{}, headers http.Header) (*Response, error)
}

// HTTPFetcher is the default Fetcher, built on a core.HTTPRequestDoer — typically a
// core.StrictHTTPClient, so strict-mode HTTPS enforcement applies to every issuer/AS call this
// library makes.
type HTTPFetcher struct {
	Doer core.HTTPRequestDoer
}

// NewHTTPFetcher returns a Fetcher backed by doer, tagging every outgoing request with the
// library's User-Agent.
func NewHTTPFetcher(doer core.HTTPRequestDoer) *HTTPFetcher {
	return &HTTPFetcher{Doer: doer}
}

func (f *HTTPFetcher) do(ctx context.Context, method string, target string, body io.Reader, headers http.Header) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, TransportError(err, "could not build request for %s", target)
	}
	for key, values := range headers {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	if err := core.UserAgentRequestEditor(ctx, req); err != nil {
		return nil, TransportError(err, "could not set User-Agent header")
	}

	httpResponse, err := f.Doer.Do(req)
	if err != nil {
		return nil, TransportError(err, "request to %s failed", target)
	}
	defer httpResponse.Body.Close()

	responseBody, err := io.ReadAll(httpResponse.Body)
	if err != nil {
		return nil, TransportError(err, "could not read response body from %s", target)
	}

	return &Response{
		StatusCode: httpResponse.StatusCode,
		Body:       responseBody,
		Header:     httpResponse.Header,
	}, nil
}

func (f *HTTPFetcher) Get(ctx context.Context, target string, headers http.Header) (*Response, error) {
	return f.do(ctx, http.MethodGet, target, nil, headers)
}

func (f *HTTPFetcher) PostForm(ctx context.Context, target string, form url.Values, headers http.Header) (*Response, error) {
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Content-Type", "application/x-www-form-urlencoded")
	return f.do(ctx, http.MethodPost, target, strings.NewReader(form.Encode()), headers)
}

func (f *HTTPFetcher) PostJSON(ctx context.Context, target string, body interface{}, headers http.Header) (*Response, error) {
	encoded, err := json.Marshal(body)
	if err != nil {
		return nil, TransportError(err, "could not encode JSON request body")
	}
	if headers == nil {
		headers = http.Header{}
	}
	headers.Set("Content-Type", "application/json")
	return f.do(ctx, http.MethodPost, target, strings.NewReader(string(encoded)), headers)
}
