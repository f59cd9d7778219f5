package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/colthorp/planning-cli-go/internal/core"
	"github.com/colthorp/planning-cli-go/internal/output"
)

func init() {
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(loginCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(mcpCmd)

	getCmd.Flags().Bool("json", false, "Emit JSON instead of text")
	statusCmd.Flags().Bool("json", false, "Emit JSON instead of text")
}

// getCmd captures (or reuses) the planning for a week
var getCmd = &cobra.Command{
	Use:   "get [date]",
	Short: "Get the planning for a week offset (e.g. 1, -1) or a date (DD/MM/YYYY)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleGet,
}

// loginCmd establishes a portal session
var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Log into the portal and report the session state",
	Args:  cobra.NoArgs,
	RunE:  handleLogin,
}

// statusCmd reports cache state without fetching
var statusCmd = &cobra.Command{
	Use:   "status [date]",
	Short: "Show freshness and storage state for a week",
	Args:  cobra.MaximumNArgs(1),
	RunE:  handleStatus,
}

// mcpCmd starts the MCP server
var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP server for chat integration",
	Args:  cobra.NoArgs,
	RunE:  handleMCP,
}

func argOrEmpty(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func handleGet(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	art, err := a.service.Get(ctx, argOrEmpty(args))
	if err != nil {
		return err
	}

	if asJSON {
		return output.PrintJSON(cmd.OutOrStdout(), art)
	}
	output.PrintResult(cmd.OutOrStdout(), art)
	return nil
}

func handleLogin(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	s, err := a.pipeline.Login(ctx)
	if err != nil {
		return err
	}

	names := make([]string, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		names = append(names, c.Name)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "session %s: %d cookies %v (logins=%d, imports=%d)\n",
		a.sessions.State(), len(s.Cookies), names, a.sessions.Logins(), a.sessions.Imports())
	return nil
}

func handleStatus(cmd *cobra.Command, args []string) error {
	asJSON, _ := cmd.Flags().GetBool("json")
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	key, _, err := a.service.Resolve(argOrEmpty(args))
	if err != nil {
		return err
	}
	st, err := a.service.Status(ctx, key)
	if err != nil {
		return err
	}

	if asJSON {
		return output.PrintJSON(cmd.OutOrStdout(), st)
	}
	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "Planning for %s\n", st.Key)
	fmt.Fprintf(w, "  fresh:    %t (ttl %s)\n", st.Fresh, st.TTL)
	if !st.CapturedAt.IsZero() {
		fmt.Fprintf(w, "  captured: %s\n", core.FormatCaptureTime(st.CapturedAt))
	}
	fmt.Fprintf(w, "  stored:   %t at %s\n", st.Stored, st.Location)
	fmt.Fprintf(w, "  session:  %t, %d event details cached\n", st.HasSession, st.DetailCount)
	return nil
}

func handleMCP(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}

	if addr := a.cfg.MetricsAddr; addr != "" {
		stop := serveMetrics(a, addr)
		defer stop()
	}

	a.log.Info("MCP server ready", "version", core.Version)
	return newMCPServer(a.service, os.Stdout, a.log).serve(ctx, os.Stdin)
}

// serveMetrics exposes /metrics on addr until the returned stop is called.
func serveMetrics(a *app, addr string) (stop func()) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", a.metrics.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		a.log.Info("metrics listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			a.log.WithError(err).Error("metrics server stopped")
		}
	}()

	return func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
	}
}
