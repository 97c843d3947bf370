// Command triagebot runs the IT support triage service.
//
// Usage:
//
//	triagebot serve [--port 3000]
//	triagebot classify [--sender user@company.com] <message...>
//	triagebot graph
//
// Configuration comes from an optional YAML file (--config), a .env file,
// TRIAGE_* environment variables and flags, in increasing precedence.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/dshills/support-triage/config"
	"github.com/dshills/support-triage/logging"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// rootFlags are the persistent flags shared by every subcommand.
type rootFlags struct {
	v          *viper.Viper
	configPath string
	envFile    string
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{v: viper.New()}

	cmd := &cobra.Command{
		Use:          "triagebot",
		Short:        "IT support triage bot",
		Long:         "triagebot classifies incoming support messages, notifies the right team and replies to the sender.",
		SilenceUsage: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to a YAML config file")
	pf.StringVar(&f.envFile, "env-file", ".env", "dotenv file loaded before the environment is read")
	pf.String("log-level", "", "log level (debug, info, warn, error)")
	pf.String("log-format", "", "log format (text, json)")
	_ = f.v.BindPFlag("log.level", pf.Lookup("log-level"))
	_ = f.v.BindPFlag("log.format", pf.Lookup("log-format"))

	cmd.AddCommand(
		newServeCmd(f),
		newClassifyCmd(f),
		newGraphCmd(),
	)
	return cmd
}

// load reads the dotenv file and the configuration.
func (f *rootFlags) load() (*config.Config, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.LoadWith(f.v, f.configPath)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration:\n%w", err)
	}
	return cfg, nil
}

// newLogger builds the process logger and installs it as the slog default.
func newLogger(cfg *config.Config, w io.Writer) (*slog.Logger, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format, w)
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)
	return logger, nil
}
