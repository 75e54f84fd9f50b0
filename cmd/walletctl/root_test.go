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

package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nuts-foundation/openid4vci-wallet/openid4vci"
)

func Test_rootCmd_noArgsPrintsHelp(t *testing.T) {
	oldStdOut := stdOutWriter
	buf := new(bytes.Buffer)
	stdOutWriter = buf
	defer func() { stdOutWriter = oldStdOut }()

	command := CreateCommand()
	command.SetOut(buf)
	command.SetArgs(nil)
	require.NoError(t, command.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "Available Commands")
}

func Test_configCmd_printsResolvedConfig(t *testing.T) {
	buf := new(bytes.Buffer)
	command := CreateCommand()
	command.SetOut(buf)
	command.SetArgs([]string{"config", "--clientid=wallet-1"})
	require.NoError(t, command.ExecuteContext(context.Background()))
	assert.Contains(t, buf.String(), "wallet-1")
}

func Test_issueCmd_requiresAnOffer(t *testing.T) {
	buf := new(bytes.Buffer)
	command := CreateCommand()
	command.SetOut(buf)
	command.SetErr(buf)
	command.SetArgs([]string{"issue"})
	err := command.ExecuteContext(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offer")
}

func Test_readLine_trimsNewline(t *testing.T) {
	line, err := readLine(strings.NewReader("the-code\n"))
	require.NoError(t, err)
	assert.Equal(t, "the-code", line)
}

func Test_readLine_noTrailingNewlineAtEOF(t *testing.T) {
	line, err := readLine(strings.NewReader("the-code"))
	require.NoError(t, err)
	assert.Equal(t, "the-code", line)
}

func Test_printOutcome_success(t *testing.T) {
	buf := new(bytes.Buffer)
	outcome := openid4vci.SubmissionOutcome{
		Kind:        openid4vci.OutcomeSuccess,
		Credentials: []openid4vci.IssuedCredential{{Credential: "cred-1"}},
	}
	printOutcome(buf, openid4vci.AuthorizedRequest{}, outcome)
	assert.Contains(t, buf.String(), "issued 1 credential")
	assert.Contains(t, buf.String(), "cred-1")
}

func Test_printOutcome_deferred(t *testing.T) {
	buf := new(bytes.Buffer)
	outcome := openid4vci.SubmissionOutcome{Kind: openid4vci.OutcomeDeferred, TransactionID: "tx-1"}
	printOutcome(buf, openid4vci.AuthorizedRequest{}, outcome)
	assert.Contains(t, buf.String(), "tx-1")
}

func Test_printOutcome_mentionsRefreshToken(t *testing.T) {
	buf := new(bytes.Buffer)
	refreshToken := "rt-1"
	authorized := openid4vci.AuthorizedRequest{RefreshToken: &refreshToken}
	printOutcome(buf, authorized, openid4vci.SubmissionOutcome{Kind: openid4vci.OutcomeSuccess})
	assert.Contains(t, buf.String(), "refresh_token")
}
