package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"text/tabwriter"

	"mcptelegram/internal/config"
	"mcptelegram/internal/logutil"
	"mcptelegram/internal/mcpserver"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const envPrefix = "MCP_TELEGRAM"

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "mcp-telegram",
		Short:        "Telegram account tools over the Model Context Protocol",
		SilenceUsage: true,
	}

	cobra.OnInitialize(initConfig)

	cmd.PersistentFlags().String("log-level", "", "Logging level: debug|info|warn|error (defaults to info).")
	cmd.PersistentFlags().String("log-format", "text", "Logging format: text|json.")
	cmd.PersistentFlags().Bool("log-add-source", false, "Include source file:line in logs.")
	_ = viper.BindPFlag("logging.level", cmd.PersistentFlags().Lookup("log-level"))
	_ = viper.BindPFlag("logging.format", cmd.PersistentFlags().Lookup("log-format"))
	_ = viper.BindPFlag("logging.add_source", cmd.PersistentFlags().Lookup("log-add-source"))
	viper.SetDefault("logging.format", "text")

	cmd.AddCommand(newLoginCmd())
	cmd.AddCommand(newStartCmd())
	cmd.AddCommand(newToolsCmd())
	cmd.AddCommand(newVersionCmd())
	return cmd
}

func initConfig() {
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	viper.AutomaticEnv()
}

func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func loadApp() (*App, error) {
	log, err := logutil.LoggerFromViper()
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	return NewApp(cfg, log)
}

func newLoginCmd() *cobra.Command {
	var (
		useQR bool
		phone string
	)
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Authorize the Telegram session with a login code or QR code",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			display, err := app.Login(ctx, useQR, strings.TrimSpace(phone))
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Signed in as %s\n", display)
			return nil
		},
	}
	cmd.Flags().BoolVar(&useQR, "qr", false, "Log in by scanning a QR code from another Telegram device.")
	cmd.Flags().StringVar(&phone, "phone", "", "Phone number in international format (prompted when empty).")
	return cmd
}

func newStartCmd() *cobra.Command {
	var httpAddr string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Serve the Telegram tools over stdio, or streamable HTTP with --http",
		RunE: func(cmd *cobra.Command, _ []string) error {
			app, err := loadApp()
			if err != nil {
				return err
			}
			ctx, cancel := signalContext(cmd.Context())
			defer cancel()
			return app.Serve(ctx, strings.TrimSpace(httpAddr))
		},
	}
	cmd.Flags().StringVar(&httpAddr, "http", "", "Serve streamable HTTP on this loopback address, e.g. 127.0.0.1:8765.")
	return cmd
}

func newToolsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tools",
		Short: "List available tools",
		RunE: func(cmd *cobra.Command, _ []string) error {
			log, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			server := mcpserver.New(nil, mcpserver.Options{Version: version, Logger: log})
			tools, err := server.ListTools(cmd.Context())
			if err != nil {
				return err
			}
			return printTools(cmd, tools)
		},
	}
}

func printTools(cmd *cobra.Command, tools []mcpserver.ToolInfo) error {
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "NAME\tPARAMETERS\tDESCRIPTION")
	for _, tool := range tools {
		params := make([]string, 0, len(tool.Params))
		for _, p := range tool.Params {
			name := p.Name + ":" + p.Type
			if !p.Required {
				name += "?"
			}
			params = append(params, name)
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", tool.Name, strings.Join(params, " "), firstSentence(tool.Description))
	}
	return w.Flush()
}

func firstSentence(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.Index(s, ". "); i >= 0 {
		return s[:i+1]
	}
	return s
}
