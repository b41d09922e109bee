package main

import (
	"github.com/spf13/cobra"

	"github.com/goatkit/goatdesk/internal/config"
	"github.com/goatkit/goatdesk/internal/gateway"
)

var (
	cfgFile string
	cfg     *config.Config
)

var rootCmd = &cobra.Command{
	Use:           "goatdesk",
	Short:         "Terminal client for the support desk chat and ticket board",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(cfgFile)
		return err
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: environment only)")
	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(dashboardCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Println("goatdesk 0.1.0")
	},
}

// newGateway builds the shared HTTP client from config.
func newGateway() *gateway.Client {
	opts := []gateway.Option{}
	if cfg.SessionCookie != "" {
		opts = append(opts, gateway.WithHeader("Cookie", cfg.SessionCookie))
	}
	return gateway.NewClient(cfg.BaseURL, opts...)
}
