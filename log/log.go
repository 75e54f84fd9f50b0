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
 */

// Package log holds the per-module loggers used across this library, following the
// module-tagged *logrus.Entry convention the rest of the node's subsystems use.
package log

import (
	"github.com/sirupsen/logrus"

	"github.com/nuts-foundation/openid4vci-wallet/core"
)

var openID4VCILogger = logrus.StandardLogger().WithField(core.LogFieldModule, "OpenID4VCI")
var dpopLogger = logrus.StandardLogger().WithField(core.LogFieldModule, "OpenID4VCI/DPoP")
var cliLogger = logrus.StandardLogger().WithField(core.LogFieldModule, "OpenID4VCI/CLI")

// OpenID4VCI returns the logger used by the issuer facade, authorizer and requester.
func OpenID4VCI() *logrus.Entry {
	return openID4VCILogger
}

// DPoP returns the logger used by the DPoP engine.
func DPoP() *logrus.Entry {
	return dpopLogger
}

// CLI returns the logger used by the walletctl command.
func CLI() *logrus.Entry {
	return cliLogger
}
