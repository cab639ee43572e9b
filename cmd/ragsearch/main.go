package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/xxxsen/common/logutil"
	"github.com/xxxsen/common/webapi"
	"go.uber.org/zap"

	"github.com/xxxsen/ragsearch/internal/handler"
	"github.com/xxxsen/ragsearch/internal/job"
	"github.com/xxxsen/ragsearch/internal/metrics"
	"github.com/xxxsen/ragsearch/internal/middleware"
	"github.com/xxxsen/ragsearch/internal/model"
	"github.com/xxxsen/ragsearch/internal/schedule"
	"github.com/xxxsen/ragsearch/internal/service"
	"github.com/xxxsen/ragsearch/internal/source"
)

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "ragsearch",
		Short: "document ingestion and retrieval service",
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config.json")

	rootCmd.AddCommand(newServeCmd(&configPath), newIngestCmd(&configPath), newSearchCmd(&configPath))

	if err := rootCmd.Execute(); err != nil {
		logutil.GetLogger(context.Background()).Fatal("command failed", zap.Error(err))
	}
}

func newServeCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the http api and scheduled jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()
			return runServer(ctx, a)
		},
	}
}

func runServer(ctx context.Context, a *app) error {
	cfg := a.cfg
	addr := fmt.Sprintf("0.0.0.0:%d", cfg.Port)
	logutil.GetLogger(ctx).Info("starting server",
		zap.Int("port", cfg.Port),
		zap.String("source", cfg.Source.Type),
		zap.String("embedding_model", cfg.Embedding.Model),
	)

	scheduler := schedule.NewCronScheduler()
	if err := scheduler.AddJob(job.NewIngestJob(a.ingest, a.src), cfg.Schedule.IngestCron); err != nil {
		return err
	}
	if err := scheduler.AddJob(job.NewEmbeddingCacheCleanupJob(a.cacheRepo, cfg.Schedule.CacheMaxAgeDays), cfg.Schedule.CacheCleanupCron); err != nil {
		return err
	}
	scheduler.Start(ctx)
	defer scheduler.Stop()

	deps := handler.RouterDeps{
		Search:         handler.NewSearchHandler(a.search, a.sessions),
		Session:        handler.NewSessionHandler(a.sessions),
		Ingest:         handler.NewIngestHandler(a.ingest, a.src, 0),
		IngestCooldown: time.Duration(cfg.Server.IngestCooldown) * time.Second,
	}
	engine, err := webapi.NewEngine(
		"/api/v1",
		addr,
		webapi.WithRegister(func(group *gin.RouterGroup) {
			handler.RegisterRoutes(group, deps)
		}),
		webapi.WithExtraMiddlewares(
			middleware.RequestID(),
			middleware.CORS(cfg.Server.AllowOrigins),
			metrics.GinMiddleware(),
			gzip.Gzip(gzip.DefaultCompression),
		),
	)
	if err != nil {
		return fmt.Errorf("init web engine: %w", err)
	}
	logutil.GetLogger(ctx).Info("http server listening", zap.String("addr", addr))

	go func() {
		if err := engine.Run(); err != nil && err != http.ErrServerClosed {
			logutil.GetLogger(context.Background()).Error("server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logutil.GetLogger(context.Background()).Info("server stopping...")
	return nil
}

func newIngestCmd(configPath *string) *cobra.Command {
	var (
		clean bool
		force bool
		dir   string
	)
	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "ingest documents from the configured source or a local directory",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			src := a.src
			if dir != "" {
				src = source.NewLocal(dir)
			}
			if src == nil {
				return fmt.Errorf("no source configured, pass --dir or set source in config")
			}
			logger := logutil.GetLogger(ctx)
			results, err := a.ingest.IngestAll(ctx, src, service.IngestOptions{
				Clean: clean,
				Force: force,
				Progress: func(done, total int, res *model.IngestionResult) {
					logger.Info("ingest progress",
						zap.Int("done", done),
						zap.Int("total", total),
						zap.String("path", res.Source),
						zap.Int("chunks", res.ChunksCreated),
						zap.Bool("skipped", res.Skipped),
						zap.Strings("errors", res.Errors),
					)
				},
			})
			if err != nil {
				return err
			}
			return printJSON(cmd, results)
		},
	}
	cmd.Flags().BoolVar(&clean, "clean", false, "delete all documents before ingesting")
	cmd.Flags().BoolVar(&force, "force", false, "re-ingest unchanged documents")
	cmd.Flags().StringVar(&dir, "dir", "", "ingest this local directory instead of the configured source")
	return cmd
}

func newSearchCmd(configPath *string) *cobra.Command {
	var (
		strategy string
		count    int
		weight   float64
	)
	cmd := &cobra.Command{
		Use:   "search [query]",
		Short: "run one search against the index",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configPath)
			if err != nil {
				return err
			}
			ctx := context.Background()
			a, err := buildApp(ctx, cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			query := strings.Join(args, " ")
			opts := []service.SearchOption{service.WithMatchCount(count)}
			if cmd.Flags().Changed("weight") {
				opts = append(opts, service.WithTextWeight(weight))
			}
			var out interface{}
			switch strategy {
			case "semantic":
				out, err = a.search.SemanticSearch(ctx, nil, query, opts...)
			case "hybrid":
				out, err = a.search.HybridSearch(ctx, nil, query, opts...)
			case "auto":
				out, err = a.search.AutoSearch(ctx, nil, query, opts...)
			default:
				return fmt.Errorf("unknown strategy %q", strategy)
			}
			if err != nil {
				return err
			}
			return printJSON(cmd, out)
		},
	}
	cmd.Flags().StringVar(&strategy, "type", "auto", "semantic, hybrid or auto")
	cmd.Flags().IntVar(&count, "count", 0, "number of results")
	cmd.Flags().Float64Var(&weight, "weight", 0, "text weight for hybrid search")
	return cmd
}

func printJSON(cmd *cobra.Command, v interface{}) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
