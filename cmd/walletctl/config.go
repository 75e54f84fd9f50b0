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
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"
)

const defaultConfigFile = "walletctl.yaml"
const configFileFlag = "configfile"
const envPrefix = "WALLETCTL_"
const delimiter = "."

// Config gathers every setting the issue command needs to drive one issuance session,
// loadable from a YAML file, WALLETCTL_-prefixed environment variables, and CLI flags, in
// that order of increasing precedence, mirroring core.ServerConfig's layering.
type Config struct {
	Verbosity       string        `koanf:"verbosity"`
	ClientID        string        `koanf:"clientid"`
	RedirectURI     string        `koanf:"redirecturi"`
	Offer           string        `koanf:"offer"`
	OfferURI        string        `koanf:"offeruri"`
	ConfigurationID string        `koanf:"configurationid"`
	TxCode          string        `koanf:"txcode"`
	UsePAR          bool          `koanf:"usepar"`
	UseDPoP         bool          `koanf:"usedpop"`
	Strictmode      bool          `koanf:"strictmode"`
	Timeout         time.Duration `koanf:"timeout"`
}

// defaultConfig is what a field keeps when neither file, env nor flag supplies a value.
func defaultConfig() Config {
	return Config{
		Verbosity:   "info",
		RedirectURI: "https://walletctl.local/callback",
		UsePAR:      true,
		UseDPoP:     true,
		Timeout:     10 * time.Second,
	}
}

// FlagSet returns the flags the issue command accepts, one per Config field.
func FlagSet() *pflag.FlagSet {
	defaults := defaultConfig()
	flags := pflag.NewFlagSet("walletctl", pflag.ContinueOnError)
	flags.String(configFileFlag, defaultConfigFile, "Configuration file to load.")
	flags.String("verbosity", defaults.Verbosity, "Log level (trace, debug, info, warn, error).")
	flags.String("clientid", defaults.ClientID, "OAuth2 client_id this wallet identifies as.")
	flags.String("redirecturi", defaults.RedirectURI, "Redirect URI registered for the authorization code flow.")
	flags.String("offer", "", "Credential offer JSON, as received via a credential_offer= parameter.")
	flags.String("offeruri", "", "URL to fetch the credential offer from, as received via a credential_offer_uri= parameter.")
	flags.String("configurationid", "", "credential_configuration_id to request; defaults to the first one the offer names.")
	flags.String("txcode", "", "Transaction code for a pre-authorized_code grant that requires one.")
	flags.Bool("usepar", defaults.UsePAR, "Use Pushed Authorization Requests when the authorization server supports them.")
	flags.Bool("usedpop", defaults.UseDPoP, "Bind the issued access token to a DPoP proof key.")
	flags.Bool("strictmode", defaults.Strictmode, "Refuse to dial any endpoint that isn't HTTPS.")
	flags.Duration("timeout", defaults.Timeout, "HTTP client timeout.")
	return flags
}

// LoadConfig resolves a Config from defaults, the file named by --configfile (if present),
// WALLETCTL_ environment variables, and flags, each layer overriding the last — the same
// sequence core.LoadConfigMap uses for the node's server config.
func LoadConfig(flags *pflag.FlagSet) (Config, error) {
	config := defaultConfig()
	k := koanf.New(delimiter)

	if err := k.Load(posflag.Provider(flags, delimiter, k), nil); err != nil {
		return config, err
	}

	if configFile := k.String(configFileFlag); configFile != "" {
		if err := k.Load(file.Provider(configFile), yaml.Parser()); err != nil {
			if !os.IsNotExist(err) {
				return config, fmt.Errorf("unable to load config file: %w", err)
			}
		}
	}

	envProvider := env.ProviderWithValue(envPrefix, delimiter, func(rawKey string, rawValue string) (string, interface{}) {
		key := strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(rawKey, envPrefix)), "_", delimiter)
		return key, rawValue
	})
	if err := k.Load(envProvider, nil); err != nil {
		return config, err
	}

	if err := k.Load(posflag.Provider(flags, delimiter, k), nil); err != nil {
		return config, err
	}

	if err := k.UnmarshalWithConf("", &config, koanf.UnmarshalConf{FlatPaths: false}); err != nil {
		return config, err
	}
	return config, nil
}
