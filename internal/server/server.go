package server

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/MicahParks/keyfunc/v3"
	"github.com/go-playground/validator"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"golang.org/x/sync/errgroup"

	"github.com/callpoint-health/triage/backend/internal/queue"
	mid "github.com/callpoint-health/triage/backend/internal/server/middleware"
	"github.com/callpoint-health/triage/backend/internal/util"
	"github.com/callpoint-health/triage/backend/pkg/ai"
	oai "github.com/callpoint-health/triage/backend/pkg/ai/ollama"
	gai "github.com/callpoint-health/triage/backend/pkg/ai/openai"
	"github.com/callpoint-health/triage/backend/pkg/convo"
	"github.com/callpoint-health/triage/backend/pkg/extract"
	"github.com/callpoint-health/triage/backend/pkg/graph"
	"github.com/callpoint-health/triage/backend/pkg/logger"
	"github.com/callpoint-health/triage/backend/pkg/rules"
)

type CustomValidator struct {
	validator *validator.Validate
}

func (cv *CustomValidator) Validate(i any) error {
	if err := cv.validator.Struct(i); err != nil {
		return err
	}
	return nil
}

func Init() {
	e := echo.New()
	e.Validator = &CustomValidator{validator: validator.New()}

	// JWKS verification is optional; gateway-only deployments run on
	// the master API key alone.
	var key *keyfunc.Keyfunc
	if authURL := util.GetEnv("AUTH_URL"); authURL != "" {
		k, err := keyfunc.NewDefault([]string{authURL + "/jwks"})
		if err != nil {
			logger.Fatal("Failed to load jwks keys", "err", err)
		}
		key = &k
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	conn, err := pgxpool.New(ctx, util.GetEnv("DATABASE_URL"))
	if err != nil {
		logger.Fatal("Failed to connect to database", "err", err)
	}
	defer conn.Close()

	engine, err := BuildEngine(ctx)
	if err != nil {
		logger.Fatal("Failed to build triage engine", "err", err)
	}

	que := queue.Init()
	defer que.Close()
	ch, err := que.Channel()
	if err != nil {
		logger.Fatal("Failed to open channel", "err", err)
	}
	if err := queue.SetupQueues(ch, []string{queue.ArchiveQueue}); err != nil {
		logger.Fatal("Failed to set up queues", "err", err)
	}

	masterAPIKey := util.GetEnv("MASTER_API_KEY")

	e.Use(mid.AppContextMiddleware(engine, conn, ch, key, masterAPIKey))
	e.Use(echomw.CORS())
	e.Use(echomw.Logger())
	e.Use(echomw.Recover())
	e.Use(echomw.BodyLimit("1M"))

	RegisterRoutes(e)

	go func() {
		port := util.GetEnv("PORT")
		if port == "" {
			port = "8080"
		}
		logger.Info("Starting server", "port", port)
		if err := e.Start(":" + port); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed shutting down server", "err", err)
		}
	}()

	<-ctx.Done()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shutdown server", "err", err)
	}
}

// BuildEngine loads the triage assets in parallel and wires the
// conversation engine. Asset paths come from the environment; empty
// paths fall back to the embedded defaults.
func BuildEngine(ctx context.Context) (*convo.Engine, error) {
	var (
		g  *graph.Graph
		rs *rules.RuleSet
		ex *extract.Extractor
	)

	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		if path := util.GetEnv("GRAPH_PATH"); path != "" {
			g, err = graph.LoadFile(path)
			return err
		}
		g, err = graph.LoadDefault()
		return err
	})
	eg.Go(func() (err error) {
		if path := util.GetEnv("RULES_PATH"); path != "" {
			rs, err = rules.NewFromFile(path)
			return err
		}
		rs, err = rules.NewDefault()
		return err
	})
	eg.Go(func() (err error) {
		if path := util.GetEnv("SYNONYMS_PATH"); path != "" {
			ex, err = extract.NewFromFile(path)
			return err
		}
		ex, err = extract.NewDefault()
		return err
	})
	if err := eg.Wait(); err != nil {
		return nil, err
	}

	cfg := convo.DefaultConfig()
	cfg.MinEvidence = int(util.GetEnvNumeric("TRIAGE_MIN_EVIDENCE", cfg.MinEvidence))
	cfg.MaxFollowUps = int(util.GetEnvNumeric("TRIAGE_MAX_FOLLOW_UPS", cfg.MaxFollowUps))
	cfg.MaxTurns = int(util.GetEnvNumeric("TRIAGE_MAX_TURNS", cfg.MaxTurns))

	return convo.NewEngine(convo.NewEngineParams{
		Graph:     g,
		Rules:     rs,
		Extractor: ex,
		Enricher:  NewEnricher(),
		Config:    cfg,
	})
}

// NewEnricher builds the optional AI ranking enricher from the
// environment. An unset AI_ADAPTER disables enrichment entirely; the
// engine is fully deterministic without it.
func NewEnricher() ai.Enricher {
	adapter := util.GetEnv("AI_ADAPTER")
	var client ai.TriageAIClient

	switch adapter {
	case "ollama":
		c, err := oai.NewTriageOllamaClient(oai.NewTriageOllamaClientParams{
			Model: util.GetEnv("AI_CHAT_MODEL"),

			BaseURL: util.GetEnv("AI_CHAT_URL"),
			ApiKey:  util.GetEnv("AI_CHAT_KEY"),

			MaxConcurrentRequests: int64(util.GetEnvNumeric("AI_PARALLEL_REQ", 15)),
		})
		if err != nil {
			logger.Fatal("Failed to create Ollama client", "err", err)
		}
		client = c
	case "openai":
		client = gai.NewTriageOpenAIClient(gai.NewTriageOpenAIClientParams{
			Model: util.GetEnv("AI_CHAT_MODEL"),

			ChatURL: util.GetEnv("AI_CHAT_URL"),
			ChatKey: util.GetEnv("AI_CHAT_KEY"),
		})
	default:
		return nil
	}

	timeout := time.Duration(util.GetEnvNumeric("AI_ENRICH_TIMEOUT_MS", 2000)) * time.Millisecond
	return ai.NewRankingEnricher(client, timeout)
}
