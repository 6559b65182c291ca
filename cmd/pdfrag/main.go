package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"pdfrag/internal/config"
	"pdfrag/internal/logger"
	"pdfrag/internal/server"
	"pdfrag/internal/service"
	"pdfrag/internal/tui"
)

var (
	cfgPath string
	verbose bool
)

func main() {
	_ = godotenv.Load()
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "pdfrag",
		Short:        "Index PDF documents and answer questions against them",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&cfgPath, "config", "", "path to YAML config file (default ./config.yaml or ~/.config/pdfrag/config.yaml)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(ingestCmd(), searchCmd(), clearCmd(), statusCmd(), tuiCmd(), serveCmd())
	return root
}

func loadConfig() (*config.AppConfig, error) {
	var (
		cfg *config.AppConfig
		err error
	)
	if cfgPath == "" {
		cfg, _, err = config.LoadDefault()
	} else {
		cfg, err = config.Load(cfgPath)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Log.Level))
	logger.SetTimestamps(cfg.Log.Timestamps)
	if verbose {
		logger.SetLevel(logger.LevelDebug)
	}
	return cfg, nil
}

// withApp loads the config, builds the pipeline and runs fn against it.
func withApp(cmd *cobra.Command, fn func(ctx context.Context, a *app) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx := cmd.Context()
	a, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func ingestCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingest <file> [file...]",
		Short: "Extract, chunk, embed and index documents",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				var failed int
				for _, path := range args {
					st := a.ctrl.Ingest(ctx, path)
					fmt.Fprintln(cmd.OutOrStdout(), st.Message())
					if st.Summary != "" {
						fmt.Fprintf(cmd.OutOrStdout(), "Summary: %s\n", st.Summary)
					}
					if st.Outcome != service.OutcomeIndexed {
						failed++
					}
				}
				if failed > 0 {
					return fmt.Errorf("%d of %d documents were not fully indexed", failed, len(args))
				}
				return nil
			})
		},
	}
}

func searchCmd() *cobra.Command {
	var topK int
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Answer one or more queries separated by ||",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				k := topK
				if !cmd.Flags().Changed("top-k") {
					k = a.cfg.Retriever.TopK
				}
				resp := a.ctrl.SearchTopK(ctx, strings.Join(args, " "), k)
				fmt.Fprint(cmd.OutOrStdout(), resp.Message())
				if resp.Outcome != service.OutcomeAnswered {
					fmt.Fprintln(cmd.OutOrStdout())
					return fmt.Errorf("search %s", resp.Outcome)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVarP(&topK, "top-k", "k", 1, "matches per query")
	return cmd
}

func clearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear",
		Short: "Delete the index",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				st := a.ctrl.Clear(ctx)
				fmt.Fprintln(cmd.OutOrStdout(), st.Message())
				return st.Err
			})
		},
	}
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the index lifecycle state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(_ context.Context, a *app) error {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(a.ctrl.Status())
			})
		},
	}
}

func tuiCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "tui [file]",
		Short: "Optionally ingest a document, then search it interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				summary := ""
				if len(args) == 1 {
					st := a.ctrl.Ingest(ctx, args[0])
					if st.Outcome == service.OutcomeFailed || st.Outcome == service.OutcomeRejected {
						return errors.New(st.Message())
					}
					summary = st.Summary
					if st.Outcome == service.OutcomePartial {
						summary = st.Message()
					}
				}
				// logs would tear the alternate screen
				logger.SetOutput(io.Discard)
				m := tui.New(ctx, a.ctrl, summary)
				_, err := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx)).Run()
				return err
			})
		},
	}
}

func serveCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd, func(ctx context.Context, a *app) error {
				sc := a.cfg.Server
				if addr == "" {
					addr = sc.Addr
				}
				m := a.metrics
				if !sc.EnableMetrics {
					m = nil
				}
				srv := server.New(a.ctrl, m, server.Options{
					UploadDir:    sc.UploadDir,
					DocumentRoot: sc.DocumentRoot,
					MaxUploadMB:  sc.MaxUploadMB,
					DefaultTopK:  a.cfg.Retriever.TopK,
					Timeout:      time.Duration(sc.TimeoutSecs) * time.Second,
				})

				ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
				defer stop()
				errCh := make(chan error, 1)
				go func() { errCh <- srv.Start(addr) }()
				logger.Infof("listening on %s", addr)

				select {
				case err := <-errCh:
					if errors.Is(err, http.ErrServerClosed) {
						return nil
					}
					return err
				case <-ctx.Done():
				}
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				logger.Infof("shutting down")
				return srv.Shutdown(shutdownCtx)
			})
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default from config)")
	return cmd
}
