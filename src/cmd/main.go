package main

import (
	"fmt"
	"os"

	"handyhub-admin-console/src/internal/config"
	"handyhub-admin-console/src/internal/logger"
	"handyhub-admin-console/src/internal/server"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var log = logrus.StandardLogger()

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "admin-console",
	Short: "HandyHub admin console session services",
	Long:  `Admin console backend and the headless inactivity guard that keeps console sessions honest`,
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the console backend API",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := loadConfig()
		log.Infof("Application %s is starting....", cfg.App.Name)

		srv := server.New(cfg)
		if err := srv.Start(); err != nil {
			log.WithError(err).Error("Error running server")
			return err
		}
		return nil
	},
}

var guardCmd = &cobra.Command{
	Use:   "guard",
	Short: "Run the inactivity guard for one console context",
	Long: `Runs one console context headlessly. Every line on stdin counts as user
activity; "extend" dismisses the expiry warning and "logout" ends the session.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGuard(cmd.Context(), loadConfig(), cmd.InOrStdin(), cmd.OutOrStdout())
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is src/internal/config/cfg.yml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(guardCmd)
}

func loadConfig() *config.Configuration {
	cfg := config.Load(cfgFile)
	logger.Init(cfg)
	return cfg
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
