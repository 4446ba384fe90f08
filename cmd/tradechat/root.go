package main

import (
	"errors"
	"io/fs"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ageniuscoder/tradechat/internal/config"
	"github.com/ageniuscoder/tradechat/internal/logging"
)

type app struct {
	configPath string
	cfg        config.Config
}

func Execute(version string) error {
	return newRootCmd(version).Execute()
}

func newRootCmd(version string) *cobra.Command {
	a := &app{}
	cmd := &cobra.Command{
		Use:           "tradechat",
		Short:         "Marketplace chat and trade negotiation",
		Long:          "tradechat runs the conversation relay (serve) and a local-first chat client.",
		SilenceUsage:  true,
		SilenceErrors: true,
		Version:       version,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}
	cmd.PersistentFlags().StringVar(&a.configPath, "config", "", "config file (default ./tradechat.yaml if present)")

	cmd.AddCommand(
		newServeCmd(a),
		newMigrateCmd(a),
		newTokenCmd(a),
		newChatCmd(a),
		newSendCmd(a),
		newProposeCmd(a),
		newAcceptCmd(a),
		newRejectCmd(a),
		newInboxCmd(a),
	)
	return cmd
}

func (a *app) load() error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return err
	}
	a.cfg = cfg
	logging.Init(logging.Config{Level: cfg.LogLevel, Format: cfg.LogFormat})
	return nil
}
