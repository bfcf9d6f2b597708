// internal/config/cmd.go
package config

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jason-s-yu/filterbattle/internal/game"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// DefaultQueue is the Redis list shared by the server and the historian.
const DefaultQueue = "filterbattle_rounds"

// NewServerCommand builds the cobra command for the game server. Every flag
// can also be set through FILTERBATTLE_<FLAG> in the environment or a .env file.
func NewServerCommand(cfg *Server, version string, run func(ctx context.Context, cfg *Server) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "filterbattle",
		Short:         "Real-time filter battle party game server.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	normalize(fs)

	fs.StringVarP(&cfg.Bind, "bind", "b", "0.0.0.0", "address to bind to (env: FILTERBATTLE_BIND)")
	fs.IntVarP(&cfg.Port, "port", "p", 8080, "port to listen on (env: FILTERBATTLE_PORT)")
	fs.DurationVar(&cfg.SubmitTimeout, "submit-timeout", game.DefaultSubmitTimeout, "time players have to submit a card (env: FILTERBATTLE_SUBMIT_TIMEOUT)")
	fs.BoolVar(&cfg.IndependentFilters, "independent-filters", true, "draw the filter from the global list instead of the topic's own (env: FILTERBATTLE_INDEPENDENT_FILTERS)")
	fs.StringVar(&cfg.ContentPath, "content", "", "path to a topics YAML file; empty uses the built-in set (env: FILTERBATTLE_CONTENT)")
	fs.StringSliceVar(&cfg.Origins, "origins", []string{"*"}, "allowed websocket origin patterns (env: FILTERBATTLE_ORIGINS)")
	fs.StringVar(&cfg.RedisAddr, "redis-addr", "", "redis address for round recording; empty disables it (env: FILTERBATTLE_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database index (env: FILTERBATTLE_REDIS_DB)")
	fs.StringVar(&cfg.Queue, "queue", DefaultQueue, "redis list that receives round records (env: FILTERBATTLE_QUEUE)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: FILTERBATTLE_VERBOSE)")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "log as JSON (env: FILTERBATTLE_LOG_JSON)")
	fs.BoolVarP(&cfg.Version, "version", "V", false, "display version and exit (env: FILTERBATTLE_VERSION)")

	bindEnv(fs)
	finish(cmd, "filterbattle")
	return cmd
}

// NewHistorianCommand builds the cobra command for the round archive worker.
func NewHistorianCommand(cfg *Historian, version string, run func(ctx context.Context, cfg *Historian) error) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "filterbattle-historian",
		Short:         "Archives scored filter battle rounds from Redis into PostgreSQL.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       version,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			return run(cmd.Context(), cfg)
		},
	}

	fs := cmd.Flags()
	normalize(fs)

	fs.StringVar(&cfg.RedisAddr, "redis-addr", "localhost:6379", "redis address (env: FILTERBATTLE_REDIS_ADDR)")
	fs.IntVar(&cfg.RedisDB, "redis-db", 0, "redis database index (env: FILTERBATTLE_REDIS_DB)")
	fs.StringVar(&cfg.Queue, "queue", DefaultQueue, "redis list to drain (env: FILTERBATTLE_QUEUE)")
	fs.StringVar(&cfg.DatabaseURL, "database-url", "", "postgres connection URL (env: FILTERBATTLE_DATABASE_URL)")
	fs.IntVar(&cfg.BatchSize, "batch-size", 20, "records written per transaction (env: FILTERBATTLE_BATCH_SIZE)")
	fs.DurationVar(&cfg.FlushInterval, "flush-interval", 500*time.Millisecond, "maximum time a record waits before being written (env: FILTERBATTLE_FLUSH_INTERVAL)")
	fs.BoolVarP(&cfg.Verbose, "verbose", "v", false, "display additional output (env: FILTERBATTLE_VERBOSE)")
	fs.BoolVar(&cfg.LogJSON, "log-json", false, "log as JSON (env: FILTERBATTLE_LOG_JSON)")

	bindEnv(fs)
	finish(cmd, "filterbattle-historian")
	return cmd
}

func normalize(fs *pflag.FlagSet) {
	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})
}

// bindEnv lets FILTERBATTLE_* variables fill any flag not given on the command line.
func bindEnv(fs *pflag.FlagSet) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})
}

func finish(cmd *cobra.Command, name string) {
	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate(name + " v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
}
