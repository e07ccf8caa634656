package main

import (
	"context"
	"fmt"
	"net/http"
	_ "net/http/pprof"
	"os"

	"github.com/kelseyhightower/envconfig"
	"github.com/quizparty-games/quizparty/internal/buildinfo"
	"github.com/quizparty-games/quizparty/internal/cache"
	"github.com/quizparty-games/quizparty/internal/database"
	answerDb "github.com/quizparty-games/quizparty/internal/database/answer/database"
	buzzDb "github.com/quizparty-games/quizparty/internal/database/buzz/database"
	categoryDb "github.com/quizparty-games/quizparty/internal/database/category/database"
	participantDb "github.com/quizparty-games/quizparty/internal/database/participant/database"
	punishmentDb "github.com/quizparty-games/quizparty/internal/database/punishment/database"
	questionDb "github.com/quizparty-games/quizparty/internal/database/question/database"
	roomDb "github.com/quizparty-games/quizparty/internal/database/room/database"
	"github.com/quizparty-games/quizparty/internal/httpapi"
	"github.com/quizparty-games/quizparty/internal/logging"
	"github.com/quizparty-games/quizparty/internal/quizparty"
	"github.com/quizparty-games/quizparty/internal/quizparty/token"
	"github.com/quizparty-games/quizparty/internal/server"
	"github.com/quizparty-games/quizparty/internal/shutdown"
	"github.com/quizparty-games/quizparty/internal/transport/ws"
	"golang.org/x/sync/errgroup"
)

var version string

func main() {
	_, _ = fmt.Fprint(os.Stdout, buildinfo.Graffiti)
	_, _ = fmt.Fprintf(os.Stdout, buildinfo.GreetingCLI, buildinfo.ProjectName, version, buildinfo.GithubURL)

	ctx, done := shutdown.New()
	defer done()

	config := quizparty.Config{}
	if err := envconfig.Process("", &config); err != nil {
		logging.DefaultLogger().Fatalf("processing the config: %v", err)
	}

	logger := logging.NewLogger(config.Debug)
	ctx = logging.WithLogger(ctx, logger)

	if err := realMain(ctx, config); err != nil {
		logger.Fatalf("main.realMain: %v", err)
	}
}

func realMain(ctx context.Context, config quizparty.Config) error {
	logger := logging.FromContext(ctx).Named("main.realMain")

	db, err := database.NewFromEnv(ctx, &config.DB)
	if err != nil {
		return fmt.Errorf("new database from env: %w", err)
	}

	defer db.Close(ctx)

	categoryCache, err := cache.NewLRU(config.CacheSize)
	if err != nil {
		return fmt.Errorf("can not create lru cache: %w", err)
	}

	tokenCache, err := cache.NewLRU(config.CacheSize)
	if err != nil {
		return fmt.Errorf("can not create lru cache: %w", err)
	}

	categories := categoryDb.New(db, categoryCache)
	tokens := token.New(db, tokenCache)

	manager := quizparty.NewManager(
		&config,
		roomDb.New(db),
		participantDb.New(db),
		categories,
		questionDb.New(db),
		answerDb.New(db),
		buzzDb.New(db),
		punishmentDb.New(db),
		tokens,
	)

	if err := quizparty.SeedCategories(ctx, categories); err != nil {
		return fmt.Errorf("seed categories: %w", err)
	}

	if err := manager.Restore(ctx); err != nil {
		return fmt.Errorf("restore rooms: %w", err)
	}

	srv, err := server.New(config.Port)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	profSrv, err := server.New(config.ProfPort)
	if err != nil {
		return fmt.Errorf("server.New: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/health", server.HandleHealth(ctx))
	mux.Handle("/ws", ws.New(&config, manager))
	httpapi.New(categories, manager).Register(mux)

	group, ctx := errgroup.WithContext(ctx)
	group.Go(func() error {
		return srv.ServeHTTP(ctx, &http.Server{Handler: mux})
	})
	group.Go(func() error {
		return profSrv.ServeHTTP(ctx, &http.Server{Handler: http.DefaultServeMux})
	})

	logger.Infof("Listening on %s", srv.Addr())

	return group.Wait()
}
