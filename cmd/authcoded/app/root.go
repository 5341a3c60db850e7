// Package app is the authcoded command line.
package app

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lockbox.dev/authcode"
)

// NewRootCmd returns the authcoded command. Every flag can also be set in the
// config file, or in the environment as AUTHCODE_<FLAG>, with dashes
// replaced by underscores.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var configFile string

	cmd := &cobra.Command{
		Use:   "authcoded",
		Short: "Serve routes behind an OAuth2 authorization code login",
		Long: `authcoded logs users in with the OAuth2 authorization code flow against an
OpenID Connect issuer, and serves the identity of the logged in user on /.`,
		SilenceUsage: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if configFile == "" {
				return nil
			}
			v.SetConfigFile(configFile)
			if err := v.ReadInConfig(); err != nil {
				return fmt.Errorf("reading %s: %w", configFile, err)
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg := LoadConfig(v)
			if err := cfg.Validate(); err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}

	flags := cmd.Flags()
	cmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file")
	flags.String("issuer", "", "OpenID Connect issuer URL")
	flags.String("client-id", "", "OAuth2 client ID")
	flags.String("client-secret", "", "OAuth2 client secret")
	flags.String("callback-url", "", "Absolute URL the authorization server redirects back to")
	flags.StringSlice("scope", []string{"openid", "email"}, "Scopes to request")
	flags.StringToString("extra-param", nil, "Extra authorization URL parameters, as key=value")
	flags.String("address", ":8080", "Address to listen on")
	flags.String("redis-addr", "", "Redis address for sessions; sessions are kept in memory when empty")
	flags.String("redis-prefix", "authcode:session:", "Prefix of Redis session keys")
	flags.Duration("session-ttl", authcode.DefaultSessionTTL, "How long an idle Redis session lives")
	flags.Bool("cookie-secure", true, "Only send the session cookie over HTTPS")
	flags.String("log-level", "INFO", "Log level: DEBUG, INFO, WARNING or ERROR")

	if err := v.BindPFlags(flags); err != nil {
		panic(fmt.Sprintf("binding flags: %v", err))
	}
	v.SetEnvPrefix("AUTHCODE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}
