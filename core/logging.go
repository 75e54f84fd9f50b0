/*
 * Copyright (C) 2022 Nuts community
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
 *
 */

package core

const (
	// LogFieldModule is the log field for the module name.
	LogFieldModule = "module"

	// LogFieldCredentialIssuer is the log field key for the Credential Issuer identifier.
	LogFieldCredentialIssuer = "credentialIssuer"
	// LogFieldCredentialConfigurationID is the log field key for a credential_configuration_id.
	LogFieldCredentialConfigurationID = "credentialConfigurationID"
	// LogFieldAuthorizationServer is the log field key for the Authorization Server identifier.
	LogFieldAuthorizationServer = "authorizationServer"
	// LogFieldGrantType is the log field key for the OAuth2 grant_type of a token request.
	LogFieldGrantType = "grantType"
	// LogFieldHTTPStatus is the log field key for an HTTP response status code.
	LogFieldHTTPStatus = "httpStatus"
	// LogFieldTransactionID is the log field key for a deferred issuance transaction_id.
	LogFieldTransactionID = "transactionID"
)
