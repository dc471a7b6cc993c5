package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

type Config struct {
	bind          string
	gracePeriod   time.Duration
	oracleKey     string
	oracleModel   string
	oracleTimeout time.Duration
	oracleURL     string
	port          int
	prefix        string
	profile       bool
	promptLimit   int
	tlsCert       string
	tlsKey        string
	verbose       bool
	version       bool
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}
	if c.gracePeriod <= 0 {
		return fmt.Errorf("invalid grace period (must be positive): %s", c.gracePeriod)
	}
	if c.promptLimit < 1 {
		return fmt.Errorf("invalid prompt limit (must be positive): %d", c.promptLimit)
	}
	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("BALLPARK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "ballpark",
		Short:         "A realtime party game of numeric guesstimates, served from a single binary.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: BALLPARK_BIND)")
	fs.DurationVar(&cfg.gracePeriod, "grace-period", 2*time.Minute, "time before empty rooms are deleted (env: BALLPARK_GRACE_PERIOD)")
	fs.StringVar(&cfg.oracleKey, "oracle-key", "", "api key for the answer oracle (env: BALLPARK_ORACLE_KEY)")
	fs.StringVar(&cfg.oracleModel, "oracle-model", "gpt-4o-mini", "model requested from the answer oracle (env: BALLPARK_ORACLE_MODEL)")
	fs.DurationVar(&cfg.oracleTimeout, "oracle-timeout", 30*time.Second, "timeout for answer oracle requests (env: BALLPARK_ORACLE_TIMEOUT)")
	fs.StringVar(&cfg.oracleURL, "oracle-url", "https://api.openai.com/v1/chat/completions", "chat completions endpoint for the answer oracle (env: BALLPARK_ORACLE_URL)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: BALLPARK_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: BALLPARK_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: BALLPARK_PROFILE)")
	fs.IntVar(&cfg.promptLimit, "prompt-limit", 300, "maximum question length in characters (env: BALLPARK_PROMPT_LIMIT)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: BALLPARK_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: BALLPARK_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: BALLPARK_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: BALLPARK_VERSION)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("ballpark v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
