package main

import (
	"context"
	"os"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	similarity "github.com/ssciwr/similarity-client-go"
	"github.com/ssciwr/similarity-client-go/pkg/logger"
	"github.com/ssciwr/similarity-client-go/pkg/mock"
)

const mockAPIKey = "mock"

// cli carries the configuration shared by every subcommand.
type cli struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	c := &cli{v: viper.New()}
	rootCmd := &cobra.Command{
		Use:          "similarity",
		Short:        "Client for the similarity webservice",
		Long:         "similarity manages image collections on a similarity webservice and runs similarity searches against them.",
		SilenceUsage: true,
	}
	c.initConfig()

	flags := rootCmd.PersistentFlags()
	flags.String("api-url", "", "Base URL of the webservice (default $SIMILARITY_API_URL or "+similarity.DefaultBaseURL+")")
	flags.StringP("api-key", "k", "", "API key sent with modifying requests")
	flags.Duration("timeout", 0, "Request timeout (0 keeps the configured default)")
	flags.Bool("debug", false, "Log HTTP traffic")
	flags.Bool("mock", false, "Run against an in-memory backend")
	flags.String("mock-fixtures", "", "YAML file seeding the in-memory backend")

	_ = c.v.BindPFlag("api_url", flags.Lookup("api-url"))
	_ = c.v.BindPFlag("api_key", flags.Lookup("api-key"))
	_ = c.v.BindPFlag("timeout", flags.Lookup("timeout"))
	_ = c.v.BindPFlag("debug", flags.Lookup("debug"))
	_ = c.v.BindPFlag("mock", flags.Lookup("mock"))
	_ = c.v.BindPFlag("mock_fixtures", flags.Lookup("mock-fixtures"))

	c.addCommands(rootCmd)
	return rootCmd
}

func (c *cli) initConfig() {
	c.v.SetEnvPrefix("SIMILARITY")
	c.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	c.v.AutomaticEnv()
}

func (c *cli) apiKey() string {
	key := c.v.GetString("api_key")
	if key == "" && c.v.GetBool("mock") {
		return mockAPIKey
	}
	return key
}

// session is one configured client plus whatever has to be torn down after the command.
type session struct {
	client  similarity.Client
	closers []func() error
}

func (s *session) Close() error {
	var first error
	for i := len(s.closers) - 1; i >= 0; i-- {
		if err := s.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (c *cli) open(cmd *cobra.Command) (*session, error) {
	s := &session{}
	opts := make([]similarity.ClientOption, 0)

	if c.v.GetBool("debug") {
		l, err := logger.NewDevelopmentZapLogger()
		if err != nil {
			return nil, errors.Wrap(err, "error creating logger")
		}
		opts = append(opts, similarity.WithLogger(l))
	}
	if timeout := c.v.GetDuration("timeout"); timeout > 0 {
		opts = append(opts, similarity.WithTimeout(timeout))
	}

	switch {
	case c.v.GetBool("mock"):
		backendOpts := []mock.Option{mock.WithAPIKey("cli", c.apiKey())}
		if path := c.v.GetString("mock_fixtures"); path != "" {
			f, err := os.Open(path)
			if err != nil {
				return nil, errors.Wrap(err, "error opening fixtures")
			}
			defer func() { _ = f.Close() }()
			backendOpts = append(backendOpts, mock.WithFixtures(f))
		} else {
			backendOpts = append(backendOpts,
				mock.WithCollection("example", ""),
				mock.WithCollection("heidicon example", "example-tag"),
			)
		}
		backend, err := mock.NewBackend(backendOpts...)
		if err != nil {
			return nil, err
		}
		srv, err := backend.Start("")
		if err != nil {
			return nil, err
		}
		s.closers = append(s.closers, func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Close(ctx)
		})
		opts = append(opts, similarity.WithBaseURL(srv.URL))
	case c.v.GetString("api_url") != "":
		opts = append(opts, similarity.WithBaseURL(c.v.GetString("api_url")))
	}

	client, err := similarity.NewHTTPClient(opts...)
	if err != nil {
		_ = s.Close()
		return nil, err
	}
	s.client = client
	s.closers = append(s.closers, client.Close)

	printer := newBannerPrinter(cmd.ErrOrStderr())
	unsubscribe := client.Alerts().Subscribe(printer.Print)
	s.closers = append(s.closers, func() error {
		unsubscribe()
		return nil
	})
	return s, nil
}

// run opens a session, calls fn and prints its result as JSON.
func (c *cli) run(fn func(ctx context.Context, client similarity.Client, key string) (interface{}, error)) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, _ []string) error {
		s, err := c.open(cmd)
		if err != nil {
			return err
		}
		defer func() { _ = s.Close() }()

		result, err := fn(cmd.Context(), s.client, c.apiKey())
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}
		return printJSON(cmd.OutOrStdout(), result)
	}
}
