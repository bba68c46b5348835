// Command filebot runs a bot that accepts every friend request and receives
// the files its friends send into a staging directory.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/opd-ai/toxfilebot"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "FILEBOT"

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

// newRootCommand builds the filebot command with flags bound to a private
// viper instance.
func newRootCommand() *cobra.Command {
	v := viper.New()
	defaults := toxfilebot.NewOptions()

	cmd := &cobra.Command{
		Use:   "filebot",
		Short: "Receive files from Tox friends into a staging directory",
		Long: `filebot accepts every friend request and receives the files its friends send.

At most --active-limit transfers are received at once; further offers wait for a
free slot. Offers larger than --max-file-size are refused with a message.

Console commands on stdin:
  status <text>   set the status message
  list            print every transfer in the queue
  kill            stop the bot`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := initConfig(v); err != nil {
				return err
			}
			return configureLogging(v.GetString("log-level"), v.GetString("log-format"))
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			options, err := buildOptions(v)
			if err != nil {
				return err
			}
			return run(cmd.Context(), options)
		},
	}

	flags := cmd.Flags()
	flags.String("config", "", "config file (yaml, toml or json)")
	flags.String("listen", defaults.ListenAddr, "UDP address to listen on")
	flags.String("dir", defaults.StagingDir, "directory receiving incoming files")
	flags.String("save", "filebot.save", "save file holding the identity and friends; empty disables saving")
	flags.String("name", defaults.Name, "bot name")
	flags.Uint64("max-file-size", defaults.MaxFileSize, "largest accepted file in bytes; 0 disables the check")
	flags.Int("active-limit", defaults.ActiveLimit, "number of transfers received at once")
	flags.Duration("stall-timeout", defaults.StallTimeout, "kill active transfers idle this long; 0 disables")
	flags.Duration("peer-timeout", defaults.PeerTimeout, "mark friends offline after this much silence; 0 disables")
	flags.Duration("save-interval", defaults.SaveInterval, "how often changed state is saved")
	flags.String("log-level", logrus.InfoLevel.String(), "log level (trace, debug, info, warn, error)")
	flags.String("log-format", "text", "log format (text or json)")

	_ = v.BindPFlags(flags)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	return cmd
}

// initConfig reads the config file named by --config or FILEBOT_CONFIG.
func initConfig(v *viper.Viper) error {
	cfgFile := v.GetString("config")
	if cfgFile == "" {
		return nil
	}

	v.SetConfigFile(cfgFile)
	if err := v.ReadInConfig(); err != nil {
		return fmt.Errorf("read config %s: %w", cfgFile, err)
	}

	logrus.WithFields(logrus.Fields{
		"function": "initConfig",
		"config":   v.ConfigFileUsed(),
	}).Info("Using config file")
	return nil
}

func configureLogging(level, format string) error {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		return err
	}
	logrus.SetLevel(lvl)

	switch format {
	case "text":
		logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	case "json":
		logrus.SetFormatter(&logrus.JSONFormatter{})
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	return nil
}

// buildOptions assembles bot options from flags, environment and config file.
func buildOptions(v *viper.Viper) (*toxfilebot.Options, error) {
	options := toxfilebot.NewOptions()
	options.ListenAddr = v.GetString("listen")
	options.StagingDir = v.GetString("dir")
	options.SaveFile = v.GetString("save")
	options.Name = v.GetString("name")
	options.MaxFileSize = v.GetUint64("max-file-size")
	options.ActiveLimit = v.GetInt("active-limit")
	options.StallTimeout = v.GetDuration("stall-timeout")
	options.PeerTimeout = v.GetDuration("peer-timeout")
	options.SaveInterval = v.GetDuration("save-interval")

	if err := options.Validate(); err != nil {
		return nil, err
	}
	return options, nil
}

func run(parent context.Context, options *toxfilebot.Options) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	bot, err := toxfilebot.New(options)
	if err != nil {
		return err
	}
	defer bot.Close()

	fmt.Println("Bot address:", bot.Address())

	go func() {
		_ = bot.RunConsole(ctx, os.Stdin, os.Stdout)
	}()

	return bot.Run(ctx)
}
