// kairos-server is the KAIROS knowledge-protocol server: it mints markdown
// protocols into step chains, serves semantic search over them, and walks
// agents through step execution under proof-of-work challenges.
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/debian777/kairos-mcp/internal/api"
	"github.com/debian777/kairos-mcp/internal/chains"
	"github.com/debian777/kairos-mcp/internal/config"
	"github.com/debian777/kairos-mcp/internal/embeddings"
	"github.com/debian777/kairos-mcp/internal/events"
	"github.com/debian777/kairos-mcp/internal/mcpserver"
	"github.com/debian777/kairos-mcp/internal/metrics"
	"github.com/debian777/kairos-mcp/internal/proofstore"
	"github.com/debian777/kairos-mcp/internal/protocol"
	"github.com/debian777/kairos-mcp/internal/search"
	"github.com/debian777/kairos-mcp/internal/vectorstore"
)

var version = "dev"

const shutdownGrace = 10 * time.Second

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "kairos-server:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	log := newLogger(cfg)
	log.Info().Str("version", version).Int("port", cfg.Port).Msg("starting")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	vs, err := vectorstore.NewQdrant(ctx, cfg.VectorStoreURL, cfg.VectorCollection, cfg.VectorName(), cfg.EmbeddingDimension, log)
	if err != nil {
		return fmt.Errorf("vector store: %w", err)
	}
	defer vs.Close()

	pow, err := proofstore.New(cfg.KVURL)
	if err != nil {
		return fmt.Errorf("kv store: %w", err)
	}
	defer pow.Close()

	emb := embeddings.NewOpenAI(cfg.EmbeddingURL, cfg.EmbeddingAPIKey, cfg.EmbeddingModel, cfg.EmbeddingDimension, log)

	var pub *events.Publisher
	if cfg.EventsEnabled() {
		pub = events.New(cfg.KafkaBrokers, cfg.KafkaTopic, log)
		defer pub.Close()
	}

	chainStore := chains.New(vs, emb, pub, chains.Options{
		SpaceID:             cfg.SpaceID,
		AllowedSpaceIDs:     cfg.AllowedSpaceIDs,
		SimilarityThreshold: cfg.SimilarityThreshold,
	}, log)
	engine := search.New(vs, emb, cfg.AllowedSpaceIDs, cfg.MatchThreshold, cfg.ScoreThreshold, log)
	machine := protocol.NewMachine(chainStore, pow,
		time.Duration(cfg.ElicitationTimeoutSeconds)*time.Second, log)

	m := metrics.New()
	srv := api.NewServer(chainStore, engine, machine, pow, vs, emb, m, version, log)
	router := srv.Router(map[string]http.Handler{
		"/mcp": mcpserver.Handler(mcpserver.Deps{
			Chains:  chainStore,
			Engine:  engine,
			Machine: machine,
			Version: version,
			Log:     log,
		}),
	})

	app := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	metricsSrv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.MetricsPort),
		Handler:           m.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", app.Addr).Msg("http listening")
		if err := app.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		log.Info().Str("addr", metricsSrv.Addr).Msg("metrics listening")
		if err := metricsSrv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Info().Msg("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		err := app.Shutdown(shutdownCtx)
		if merr := metricsSrv.Shutdown(shutdownCtx); err == nil {
			err = merr
		}
		return err
	})
	return g.Wait()
}

func newLogger(cfg *config.Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.LogLevel)
	if err != nil {
		level = zerolog.InfoLevel
	}
	var log zerolog.Logger
	if cfg.LogFormat == "json" {
		log = zerolog.New(os.Stderr)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}
	return log.Level(level).With().Timestamp().Logger()
}
