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
	"bufio"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nuts-foundation/openid4vci-wallet/core"
	"github.com/nuts-foundation/openid4vci-wallet/log"
	"github.com/nuts-foundation/openid4vci-wallet/openid4vci"
)

// stdOutWriter is overridden in tests, following the teacher's cmd.stdOutWriter convention.
var stdOutWriter io.Writer = os.Stdout

// createRootCommand builds the bare "walletctl" command with no children, mirroring
// createRootCommand's shape in the teacher.
func createRootCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "walletctl",
		Short: "walletctl drives an OpenID4VCI issuance session from the command line.",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.HelpFunc()(cmd, args)
		},
	}
}

// createIssueCommand builds the "issue" subcommand: resolve an offer, authorize, request one
// credential, print the outcome.
func createIssueCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "issue",
		Short: "Resolve a credential offer and request one credential.",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			if level, err := logrus.ParseLevel(config.Verbosity); err == nil {
				logrus.SetLevel(level)
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), config.Timeout)
			defer cancel()
			return runIssue(ctx, cmd, config)
		},
	}
	command.Flags().AddFlagSet(FlagSet())
	return command
}

// createConfigCommand prints the resolved configuration, mirroring createPrintConfigCommand.
func createConfigCommand() *cobra.Command {
	command := &cobra.Command{
		Use:   "config",
		Short: "Prints the resolved configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			config, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			cmd.Printf("%+v\n", config)
			return nil
		},
	}
	command.Flags().AddFlagSet(FlagSet())
	return command
}

// CreateCommand wires the root command and its subcommands together.
func CreateCommand() *cobra.Command {
	command := createRootCommand()
	command.SetOut(stdOutWriter)
	command.AddCommand(createIssueCommand())
	command.AddCommand(createConfigCommand())
	return command
}

// Execute runs walletctl to completion.
func Execute(ctx context.Context) error {
	command := CreateCommand()
	command.SetOut(stdOutWriter)
	return command.ExecuteContext(ctx)
}

// runIssue drives the offer-resolution, authorization and credential-request sequence spec
// §2's data-flow diagram describes, printing progress to cmd's configured output.
func runIssue(ctx context.Context, cmd *cobra.Command, settings Config) error {
	if settings.Offer == "" && settings.OfferURI == "" {
		return fmt.Errorf("one of --offer or --offeruri is required")
	}

	holderKey, err := newEphemeralKey()
	if err != nil {
		return err
	}

	authenticator := openid4vci.NewPublicClientAuthenticator(settings.ClientID)
	walletConfig := openid4vci.NewConfig(authenticator, settings.RedirectURI)
	walletConfig.UsePAR = settings.UsePAR
	if settings.UseDPoP {
		walletConfig.DPoP = openid4vci.NewDPoPEngine(holderKey)
	}

	httpClient := core.NewStrictHTTPClient(settings.Strictmode, settings.Timeout, nil)
	fetcher := openid4vci.NewHTTPFetcher(httpClient)
	issuer := openid4vci.NewIssuer(fetcher, walletConfig)

	var offerRequest openid4vci.CredentialOfferRequest
	if settings.Offer != "" {
		offerRequest = openid4vci.OfferByValue(settings.Offer)
	} else {
		offerRequest = openid4vci.OfferByReference(settings.OfferURI)
	}

	offer, err := issuer.ResolveOffer(ctx, offerRequest)
	if err != nil {
		return err
	}
	log.CLI().WithField(core.LogFieldCredentialIssuer, string(offer.Issuer)).Info("resolved credential offer")

	configurationID := settings.ConfigurationID
	if configurationID == "" {
		if len(offer.Credentials) == 0 {
			return fmt.Errorf("credential offer names no credential configurations")
		}
		configurationID = offer.Credentials[0].ConfigurationID
	}
	log.CLI().WithField(core.LogFieldCredentialConfigurationID, configurationID).Info("requesting credential configuration")

	signer := openid4vci.NewKeyProofSigner(holderKey)
	payload := openid4vci.IssuanceRequestPayload{ConfigurationID: configurationID}

	var authorized openid4vci.AuthorizedRequest
	var outcome openid4vci.SubmissionOutcome

	switch {
	case offer.Grants.PreAuthorizedCode != nil:
		authorized, outcome, err = issuer.AuthorizeAndIssue(ctx, offer, settings.TxCode, payload, signer, nil)
	case offer.Grants.AuthorizationCode != nil:
		authorized, outcome, err = issueViaAuthorizationCode(ctx, cmd, issuer, offer, payload, signer)
	default:
		return fmt.Errorf("credential offer carries neither a pre-authorized_code nor an authorization_code grant")
	}
	if err != nil {
		return err
	}

	printOutcome(cmd.OutOrStdout(), authorized, outcome)
	return nil
}

// issueViaAuthorizationCode drives the PAR/authorization-code flow interactively: it prints the
// authorization URL (plus a scannable QR code) and blocks for the resulting code on stdin,
// since that redirect can only be completed by a human following a browser/wallet-app flow.
func issueViaAuthorizationCode(ctx context.Context, cmd *cobra.Command, issuer *openid4vci.Issuer, offer *openid4vci.CredentialOffer, payload openid4vci.IssuanceRequestPayload, signer openid4vci.ProofSigner) (openid4vci.AuthorizedRequest, openid4vci.SubmissionOutcome, error) {
	authorizer := issuer.Authorizer()
	prepared, err := authorizer.PushAuthorizationRequest(ctx, offer, []string{payload.ConfigurationID})
	if err != nil {
		return openid4vci.AuthorizedRequest{}, openid4vci.SubmissionOutcome{}, err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Open this URL to authorize, or scan the QR code below:")
	fmt.Fprintln(out, prepared.AuthorizationURL)
	printQrCode(out, prepared.AuthorizationURL)
	fmt.Fprint(out, "Paste the authorization code from the redirect: ")

	code, err := readLine(cmd.InOrStdin())
	if err != nil {
		return openid4vci.AuthorizedRequest{}, openid4vci.SubmissionOutcome{}, fmt.Errorf("could not read authorization code: %w", err)
	}

	unauthorized, err := authorizer.HandleAuthorizationCode(prepared, code)
	if err != nil {
		return openid4vci.AuthorizedRequest{}, openid4vci.SubmissionOutcome{}, err
	}

	token, err := authorizer.RequestAccessToken(ctx, offer, unauthorized)
	if err != nil {
		return openid4vci.AuthorizedRequest{}, openid4vci.SubmissionOutcome{}, err
	}

	requester := issuer.Requester(offer)
	if token.CNonce == nil && offer.IssuerMetadata.NonceEndpoint != "" {
		nonce, expiresIn, err := requester.GetFreshCNonce(ctx)
		if err != nil {
			return openid4vci.AuthorizedRequest{}, openid4vci.SubmissionOutcome{}, err
		}
		updated := token.WithCNonce(nonce, expiresIn)
		token = &updated
	}

	return requester.RequestCredential(ctx, *token, payload, signer, nil)
}

// readLine reads one newline-terminated line from r, trimming the trailing newline.
func readLine(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && err != io.EOF {
		return "", err
	}
	for len(line) > 0 && (line[len(line)-1] == '\n' || line[len(line)-1] == '\r') {
		line = line[:len(line)-1]
	}
	return line, nil
}

// printOutcome reports the SubmissionOutcome spec §3 defines, in the variant the requester
// actually returned.
func printOutcome(w io.Writer, authorized openid4vci.AuthorizedRequest, outcome openid4vci.SubmissionOutcome) {
	switch outcome.Kind {
	case openid4vci.OutcomeSuccess:
		fmt.Fprintf(w, "issued %d credential(s)\n", len(outcome.Credentials))
		for i, credential := range outcome.Credentials {
			fmt.Fprintf(w, "[%d] %s\n", i, credential.Credential)
		}
	case openid4vci.OutcomeDeferred:
		fmt.Fprintf(w, "issuance deferred, transaction_id=%s\n", outcome.TransactionID)
	case openid4vci.OutcomeInvalidProof:
		fmt.Fprintf(w, "issuer rejected the proof, fresh c_nonce=%s: %s\n", outcome.CNonce, outcome.Description)
	case openid4vci.OutcomeFailed:
		fmt.Fprintf(w, "issuance failed: %s\n", outcome.Description)
	}
	if authorized.RefreshToken != nil {
		fmt.Fprintln(w, "a refresh_token was issued alongside this access token")
	}
}
