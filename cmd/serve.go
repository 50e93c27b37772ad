package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/edalens/internal/ai"
	"github.com/KaramelBytes/edalens/internal/server"
)

var (
	srvLoad        loadFlags
	srvAddr        string
	srvMaxUploadMB int
	srvTTLMin      int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the web dashboard",
	Example: `  edalens serve
  edalens serve --addr 0.0.0.0:8501 --max-upload-mb 50`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c := settings()
		addr := srvAddr
		if addr == "" {
			addr = c.ListenAddr
		}
		if srvMaxUploadMB > 0 {
			c.MaxUploadMB = srvMaxUploadMB
		}
		if srvTTLMin > 0 {
			c.SessionTTLMin = srvTTLMin
		}
		load, err := srvLoad.options("")
		if err != nil {
			return err
		}

		s, err := server.New(server.Config{
			MaxUploadMB:   c.MaxUploadMB,
			SessionTTL:    c.SessionTTL(),
			Load:          load,
			APIKey:        c.APIKey,
			ContextTokens: c.ContextTokens,
			TopN:          c.TopN,
			HistBins:      c.HistBins,
		}, &logger, func(apiKey string) ai.Analyst {
			return newAnalyst(c, apiKey, c.Model)
		})
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		fmt.Fprintf(cmd.OutOrStdout(), "✓ edalens listening on http://%s (datasets expire after %s idle)\n",
			addr, c.SessionTTL().Round(time.Minute))
		return s.Run(ctx, addr)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	srvLoad.register(serveCmd)
	serveCmd.Flags().StringVar(&srvAddr, "addr", "", "listen address (default from config, 127.0.0.1:8501)")
	serveCmd.Flags().IntVar(&srvMaxUploadMB, "max-upload-mb", 0, "largest accepted upload in MB (default from config)")
	serveCmd.Flags().IntVar(&srvTTLMin, "session-ttl", 0, "minutes an idle dataset is kept (default from config)")
}
