package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/vovakirdan/dmchat/internal/config"
	applog "github.com/vovakirdan/dmchat/internal/log"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type rootOptions struct {
	configPath string
	v          *viper.Viper
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{v: viper.New()}

	root := &cobra.Command{
		Use:           "dmchat",
		Short:         "Direct message chat server and terminal client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "path to config.yaml")
	root.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	_ = opts.v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newServeCmd(opts), newChatCmd(opts), newSmokeCmd(opts))
	return root
}

// load resolves configuration after flags are bound to opts.v.
func (o *rootOptions) load(logFile *os.File) (config.Config, error) {
	bootstrap := applog.NewWithWriter(logFile, "info")
	cfg, path, err := config.Load(bootstrap, o.v, o.configPath)
	if err != nil {
		return cfg, fmt.Errorf("load config %s: %w", path, err)
	}
	return cfg, nil
}
