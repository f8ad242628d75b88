// handlers.go implements the command handlers: the serve loop and the
// small administrative subcommands.
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

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/inkwellhq/inkwell/internal/assets"
	"github.com/inkwellhq/inkwell/internal/config"
	"github.com/inkwellhq/inkwell/internal/crypto"
	"github.com/inkwellhq/inkwell/internal/intent"
	"github.com/inkwellhq/inkwell/internal/observability"
	"github.com/inkwellhq/inkwell/internal/pipeline"
	"github.com/inkwellhq/inkwell/internal/publisher"
	"github.com/inkwellhq/inkwell/internal/ratelimit"
	"github.com/inkwellhq/inkwell/internal/renderer"
	"github.com/inkwellhq/inkwell/internal/runner"
	"github.com/inkwellhq/inkwell/internal/session"
	"github.com/inkwellhq/inkwell/internal/store"
	"github.com/inkwellhq/inkwell/internal/transport"
	"github.com/inkwellhq/inkwell/internal/transport/telegram"
	"github.com/inkwellhq/inkwell/pkg/models"
)

func loadConfig(path string) (*config.Config, error) {
	cfg, err := config.Load(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg = config.Default()
		} else {
			return nil, err
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func openStores(cfg *config.Config) (*store.Set, error) {
	sealer, err := crypto.NewSealer(cfg.Secrets.Key)
	if err != nil {
		return nil, fmt.Errorf("build sealer: %w", err)
	}
	return store.NewSQLiteSet(cfg.Database.Path, sealer)
}

func runServe(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	logger := observability.NewLogger(observability.LogConfig{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})

	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	var run runner.StageRunner
	switch cfg.LLM.Provider {
	case "openai":
		run = runner.NewOpenAIRunner(runner.OpenAIConfig{
			APIKey:       cfg.LLM.APIKey,
			FastModel:    cfg.LLM.FastModel,
			QualityModel: cfg.LLM.QualityModel,
			Logger:       logger,
		})
	default:
		run = runner.NewAnthropicRunner(runner.AnthropicConfig{
			APIKey:       cfg.LLM.APIKey,
			FastModel:    cfg.LLM.FastModel,
			QualityModel: cfg.LLM.QualityModel,
			Logger:       logger,
		})
	}

	execOpts := []pipeline.Option{
		pipeline.WithLogger(logger),
		pipeline.WithMetrics(metrics),
	}
	if cfg.LLM.WebSearch {
		execOpts = append(execOpts, pipeline.WithWebSearch(pipeline.NewWebSearch()))
	}
	exec := pipeline.NewExecutor(stores.Stages, stores.Drafts, run, execOpts...)

	limiter := ratelimit.New(cfg.Quota.Limit, cfg.Quota.Window)

	falOpts := []renderer.FalOption{renderer.WithLogger(logger)}
	if cfg.Assets.RenderEndpoint != "" {
		falOpts = append(falOpts, renderer.WithEndpoint(cfg.Assets.RenderEndpoint))
	}

	sessCfg := session.Config{
		Stores:           stores,
		Classifier:       intent.NewClassifier(run, intent.WithProvider(cfg.LLM.Provider)),
		Provider:         cfg.LLM.Provider,
		Pipeline:         exec,
		Limiter:          limiter,
		Renderer:         renderer.NewFal(falOpts...),
		Publisher:        publisher.NewInstagram(publisher.WithLogger(logger)),
		Instructor:       run,
		FailureThreshold: cfg.Sessions.FailureThreshold,
		Logger:           logger,
		Metrics:          metrics,
		TransportFactory: func(tenant *models.Tenant) (transport.Transport, error) {
			return telegram.New(telegram.Config{
				Token:  tenant.BotToken,
				ChatID: tenant.ChatID,
				Logger: logger.With("tenant", tenant.ID),
			})
		},
	}

	if cfg.Assets.Bucket != "" {
		assetStore, err := assets.NewS3Store(ctx, assets.S3Config{
			Bucket:          cfg.Assets.Bucket,
			Region:          cfg.Assets.Region,
			Endpoint:        cfg.Assets.Endpoint,
			Prefix:          cfg.Assets.Prefix,
			AccessKeyID:     cfg.Assets.AccessKeyID,
			SecretAccessKey: cfg.Assets.SecretAccessKey,
			UsePathStyle:    cfg.Assets.UsePathStyle,
			PublicBaseURL:   cfg.Assets.PublicBaseURL,
		})
		if err != nil {
			return fmt.Errorf("build asset store: %w", err)
		}
		sessCfg.Assets = assetStore
	}

	manager, err := session.NewManager(sessCfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := manager.StartAll(ctx); err != nil {
		return err
	}
	logger.Info("service started", "sessions", len(manager.Active()))

	var metricsSrv *http.Server
	if cfg.Metrics.Addr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
		metricsSrv = &http.Server{Addr: cfg.Metrics.Addr, Handler: mux}
		go func() {
			if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "error", err)
			}
		}()
		logger.Info("metrics listening", "addr", cfg.Metrics.Addr)
	}

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
	manager.StopAll(shutdownCtx)
	return nil
}

type tenantAddOptions struct {
	Name           string
	BotToken       string
	ChatID         string
	AnthropicKey   string
	OpenAIKey      string
	RenderKey      string
	InstagramToken string
	InstagramUser  string
	OwnerName      string
	Niche          string
}

// defaultStages is the pipeline every new workspace starts with. The
// owner reshapes it from chat with /new_stage and /pipeline.
func defaultStages(tenantID string) []*models.StageDefinition {
	type seed struct {
		name, display, role, instruction string
	}
	seeds := []seed{
		{
			name:    "researcher",
			display: "Researcher",
			role:    "research",
			instruction: "You are a content researcher. Given a topic, gather the key facts, " +
				"angles, and hooks an audience would care about. Return concise bullet points " +
				"with concrete claims, not generalities.",
		},
		{
			name:    "writer",
			display: "Writer",
			role:    "writing",
			instruction: "You are a social media copywriter. Using the research provided, write " +
				"content in the requested format. Lead with a hook, keep sentences short, and " +
				"end with a clear takeaway or call to action.",
		},
		{
			name:    "editor",
			display: "Editor",
			role:    "editing",
			instruction: "You are an editor. Polish the draft: fix grammar, tighten wording, " +
				"remove filler, and keep the original voice. Return only the final text.",
		},
	}

	stages := make([]*models.StageDefinition, 0, len(seeds))
	for i, s := range seeds {
		pos := i + 1
		stages = append(stages, &models.StageDefinition{
			ID:          uuid.NewString(),
			TenantID:    tenantID,
			Name:        s.name,
			DisplayName: s.display,
			Role:        s.role,
			Instruction: s.instruction,
			Position:    &pos,
			Active:      true,
			CreatedAt:   time.Now().UTC(),
		})
	}
	return stages
}

func runTenantAdd(ctx context.Context, configPath string, opts tenantAddOptions) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	tenant := &models.Tenant{
		ID:             uuid.NewString(),
		Name:           opts.Name,
		Active:         true,
		BotToken:       opts.BotToken,
		ChatID:         opts.ChatID,
		AnthropicKey:   opts.AnthropicKey,
		OpenAIKey:      opts.OpenAIKey,
		RenderKey:      opts.RenderKey,
		InstagramToken: opts.InstagramToken,
		InstagramUser:  opts.InstagramUser,
		OwnerName:      opts.OwnerName,
		Niche:          opts.Niche,
		CreatedAt:      time.Now().UTC(),
	}
	if err := stores.Tenants.Create(ctx, tenant); err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}
	for _, stage := range defaultStages(tenant.ID) {
		if err := stores.Stages.Create(ctx, stage); err != nil {
			return fmt.Errorf("seed stage %s: %w", stage.Name, err)
		}
	}

	fmt.Printf("Created workspace %q\n  id: %s\n  chat: %s\n  stages: researcher, writer, editor\n",
		tenant.Name, tenant.ID, tenant.ChatID)
	return nil
}

func runTenantList(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	tenants, err := stores.Tenants.ListActive(ctx)
	if err != nil {
		return err
	}
	if len(tenants) == 0 {
		fmt.Println("No active workspaces.")
		return nil
	}
	for _, t := range tenants {
		fmt.Printf("%s  %-20s  chat=%s\n", t.ID, t.Name, t.ChatID)
	}
	return nil
}

func runScheduleList(ctx context.Context, configPath, tenantID string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	schedules, err := stores.Schedules.List(ctx, tenantID)
	if err != nil {
		return err
	}
	if len(schedules) == 0 {
		fmt.Println("No schedules.")
		return nil
	}
	for _, s := range schedules {
		state := "paused"
		if s.Active {
			state = "active"
		}
		last := "never"
		if !s.LastRun.IsZero() {
			last = s.LastRun.Format(time.RFC3339)
		}
		fmt.Printf("%s  %-20s  %-16s  %-12s  %s  last=%s\n",
			s.ID, s.Name, s.CronExpr, s.Format, state, last)
	}
	return nil
}

func runMigrate(ctx context.Context, configPath string) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return err
	}
	// Opening the set applies the schema.
	stores, err := openStores(cfg)
	if err != nil {
		return err
	}
	defer stores.Close()

	fmt.Printf("Schema applied to %s\n", cfg.Database.Path)
	return nil
}
