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

import "encoding/json"

const (
	FormatMsoMdoc  = "mso_mdoc"
	FormatSDJWTVC  = "dc+sd-jwt"
)

// Profile is the extension point for a credential format: decoding the format-specific fields
// of a credential_configurations_supported entry, and encoding the format-specific fields of a
// credential request body. Per spec §9, unknown formats never get coerced to a known shape —
// they round-trip as an OpaqueProfile so forward-compatibility with new formats is preserved.
type Profile interface {
	// Format returns the format discriminator this profile handles, e.g. "mso_mdoc".
	Format() string
	// DecodeConfiguration decodes the format-specific fields of a credential configuration.
	DecodeConfiguration(raw json.RawMessage) (interface{}, error)
	// EncodeRequestFields returns the format-specific fields to merge into a credential
	// request body (alongside credential_configuration_id and proof/proofs), given an
	// optional claim set the caller wants to request.
	EncodeRequestFields(claimSet interface{}) (map[string]interface{}, error)
}

// Registry maps format discriminators to their Profile. A format absent from the registry is
// still usable for issuance (offer resolution routes it by its format discriminator, and a
// credential request without a claim set needs no profile) but can't have its
// configuration-specific fields interpreted, and a request with a claim set fails with
// UnsupportedFeature.
type Registry struct {
	profiles map[string]Profile
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{profiles: map[string]Profile{}}
}

// NewDefaultRegistry returns a Registry pre-populated with the mso_mdoc and dc+sd-jwt profiles.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.Register(MsoMdocProfile{})
	r.Register(SDJWTVCProfile{})
	return r
}

// Register adds or replaces the profile for its Format().
func (r *Registry) Register(p Profile) {
	r.profiles[p.Format()] = p
}

// Lookup returns the registered profile for format, or an OpaqueProfile if none is registered.
func (r *Registry) Lookup(format string) Profile {
	if p, ok := r.profiles[format]; ok {
		return p
	}
	return OpaqueProfile{format: format}
}

// OpaqueProfile is the forward-compatible fallback for an unregistered format: it decodes
// configuration fields as an untouched json.RawMessage and refuses to encode request fields,
// since without knowing the format's shape there's nothing safe to construct.
type OpaqueProfile struct {
	format string
}

func (p OpaqueProfile) Format() string { return p.format }

func (p OpaqueProfile) DecodeConfiguration(raw json.RawMessage) (interface{}, error) {
	return raw, nil
}

func (p OpaqueProfile) EncodeRequestFields(_ interface{}) (map[string]interface{}, error) {
	return nil, UnsupportedFeatureError("no format profile registered for %q", p.format)
}

// MsoMdocConfiguration is the mso_mdoc-specific subset of a credential configuration: the
// mobile document type and its claim namespaces, per ISO/IEC 18013-5.
type MsoMdocConfiguration struct {
	DocType string                                `json:"doctype"`
	Claims  map[string]map[string]json.RawMessage `json:"claims,omitempty"`
}

// MsoMdocProfile implements Profile for the ISO/IEC 18013-5 mobile document format.
type MsoMdocProfile struct{}

func (MsoMdocProfile) Format() string { return FormatMsoMdoc }

func (MsoMdocProfile) DecodeConfiguration(raw json.RawMessage) (interface{}, error) {
	var configuration MsoMdocConfiguration
	if err := json.Unmarshal(raw, &configuration); err != nil {
		return nil, ValidationError("invalid mso_mdoc credential configuration: %v", err)
	}
	return configuration, nil
}

func (MsoMdocProfile) EncodeRequestFields(claimSet interface{}) (map[string]interface{}, error) {
	if claimSet == nil {
		return nil, nil
	}
	configuration, ok := claimSet.(MsoMdocConfiguration)
	if !ok {
		return nil, ValidationError("claim set for mso_mdoc request must be an MsoMdocConfiguration")
	}
	return map[string]interface{}{"doctype": configuration.DocType, "claims": configuration.Claims}, nil
}

// SDJWTVCConfiguration is the dc+sd-jwt-specific subset of a credential configuration: the
// verifiable credential type and the claims it discloses.
type SDJWTVCConfiguration struct {
	VCT    string                     `json:"vct"`
	Claims map[string]json.RawMessage `json:"claims,omitempty"`
}

// SDJWTVCProfile implements Profile for the Selective Disclosure JWT VC format.
type SDJWTVCProfile struct{}

func (SDJWTVCProfile) Format() string { return FormatSDJWTVC }

func (SDJWTVCProfile) DecodeConfiguration(raw json.RawMessage) (interface{}, error) {
	var configuration SDJWTVCConfiguration
	if err := json.Unmarshal(raw, &configuration); err != nil {
		return nil, ValidationError("invalid dc+sd-jwt credential configuration: %v", err)
	}
	return configuration, nil
}

func (SDJWTVCProfile) EncodeRequestFields(claimSet interface{}) (map[string]interface{}, error) {
	if claimSet == nil {
		return nil, nil
	}
	configuration, ok := claimSet.(SDJWTVCConfiguration)
	if !ok {
		return nil, ValidationError("claim set for dc+sd-jwt request must be an SDJWTVCConfiguration")
	}
	return map[string]interface{}{"vct": configuration.VCT, "claims": configuration.Claims}, nil
}
