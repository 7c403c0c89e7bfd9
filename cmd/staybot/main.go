package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/hrygo/staybot/internal/observability"
	"github.com/hrygo/staybot/internal/profile"
	"github.com/hrygo/staybot/plugin/ai/cache"
	"github.com/hrygo/staybot/plugin/ai/metrics"
	"github.com/hrygo/staybot/plugin/ai/session"
	"github.com/hrygo/staybot/plugin/ai/timeout"
	"github.com/hrygo/staybot/plugin/travelapi"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

// app holds everything a command needs once the profile is loaded.
type app struct {
	v      *viper.Viper
	in     io.Reader
	out    io.Writer
	errOut io.Writer

	profile *profile.Profile
	logger  *slog.Logger
	stats   *metrics.Aggregator
	store   *session.Store
}

func newRootCmd(in io.Reader, out, errOut io.Writer) *cobra.Command {
	a := &app{v: viper.New(), in: in, out: out, errOut: errOut}

	rootCmd := &cobra.Command{
		Use:           "staybot",
		Short:         "Travel suggestion chat client for the hotel booking backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.setup(cmd)
		},
		PersistentPostRun: func(_ *cobra.Command, _ []string) {
			if a.store != nil {
				_ = a.store.Close()
			}
		},
	}
	rootCmd.SetIn(in)
	rootCmd.SetOut(out)
	rootCmd.SetErr(errOut)

	a.v.SetDefault("mode", "demo")
	a.v.SetDefault("log-level", "info")
	a.v.SetDefault("base-url", profile.DefaultBaseURL)
	a.v.SetDefault("page-size", profile.DefaultPageSize)
	a.v.SetDefault("timeout", timeout.RequestTimeout)
	a.v.SetDefault("rate-limit", 10.0)
	a.v.SetDefault("rate-burst", 20)
	a.v.SetDefault("cache-size", cache.DefaultCapacity)
	a.v.SetDefault("cache-ttl", timeout.AutocompleteTTL)

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("mode", "demo", `mode of the client, can be "prod" or "dev" or "demo"`)
	flags.String("log-level", "info", "log level: debug, info, warn or error")
	flags.String("base-url", profile.DefaultBaseURL, "base url of the travel suggestion backend")
	flags.String("token", "", "bearer token sent with every request")
	flags.Int("page-size", profile.DefaultPageSize, "history page size")
	flags.Int("top-n", 0, "result-count hint for suggestions")
	flags.String("use-llm", "", `force LLM usage on or off ("true" or "false")`)
	flags.Duration("timeout", timeout.RequestTimeout, "timeout for each backend call")

	for _, name := range []string{"mode", "log-level", "base-url", "token", "page-size", "top-n", "use-llm", "timeout"} {
		if err := a.v.BindPFlag(name, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	a.v.SetEnvPrefix("staybot")
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()

	rootCmd.AddCommand(
		newChatCmd(a),
		newAskCmd(a),
		newSessionsCmd(a),
		newHistoryCmd(a),
		newAutocompleteCmd(a),
	)
	return rootCmd
}

// setup loads the profile and builds the store.
func (a *app) setup(cmd *cobra.Command) error {
	if path, _ := cmd.Flags().GetString("config"); path != "" {
		a.v.SetConfigFile(path)
		if err := a.v.ReadInConfig(); err != nil {
			return errors.Wrapf(err, "failed to read config %s", path)
		}
	}

	p, err := loadProfile(a.v)
	if err != nil {
		return err
	}
	a.profile = p
	a.logger = observability.NewLogger(a.errOut, p.Mode, p.LogLevel)
	slog.SetDefault(a.logger)

	client := travelapi.NewClient(&travelapi.Config{
		BaseURL:          p.BaseURL,
		AuthToken:        p.AuthToken,
		SuggestPath:      p.SuggestPath,
		AutocompletePath: p.AutocompletePath,
		SessionsPath:     p.SessionsPath,
		MessagesPath:     p.MessagesPath,
		Timeout:          p.RequestTimeout,
		RateLimit:        p.RateLimit,
		RateBurst:        p.RateBurst,
		Logger:           a.logger,
	})

	a.stats = metrics.NewAggregator()
	a.store = session.NewStore(client,
		session.WithLogger(a.logger),
		session.WithMetrics(a.stats),
		session.WithPageSize(p.PageSize),
		session.WithAutocompleteCache(cache.NewLRU[[]string](p.AutocompleteCacheSize, p.AutocompleteCacheTTL)),
		session.WithDefaults(session.SendOptions{
			TopN:    p.TopN,
			Filters: p.Filters,
			UseLLM:  p.UseLLMOverride(),
		}),
	)

	a.logger.Debug("client configured",
		slog.String("mode", p.Mode),
		slog.String("version", p.Version),
		slog.String("base_url", p.BaseURL),
		slog.Int("page_size", p.PageSize),
	)
	return nil
}

// loadProfile builds and validates a profile from v.
func loadProfile(v *viper.Viper) (*profile.Profile, error) {
	p := &profile.Profile{
		Mode:                  v.GetString("mode"),
		Version:               version,
		LogLevel:              v.GetString("log-level"),
		BaseURL:               v.GetString("base-url"),
		AuthToken:             v.GetString("token"),
		SuggestPath:           v.GetString("suggest-path"),
		AutocompletePath:      v.GetString("autocomplete-path"),
		SessionsPath:          v.GetString("sessions-path"),
		MessagesPath:          v.GetString("messages-path"),
		PageSize:              v.GetInt("page-size"),
		TopN:                  v.GetInt("top-n"),
		UseLLM:                v.GetString("use-llm"),
		Filters:               v.GetStringMap("filters"),
		RequestTimeout:        v.GetDuration("timeout"),
		RateLimit:             v.GetFloat64("rate-limit"),
		RateBurst:             v.GetInt("rate-burst"),
		AutocompleteCacheSize: v.GetInt("cache-size"),
		AutocompleteCacheTTL:  v.GetDuration("cache-ttl"),
	}
	if len(p.Filters) == 0 {
		p.Filters = nil
	}
	if err := p.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return p, nil
}

func main() {
	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
