package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/chris/questd/config"
	"github.com/chris/questd/internal/clock"
	"github.com/chris/questd/internal/db"
	"github.com/chris/questd/internal/executive"
	"github.com/chris/questd/internal/llm"
	"github.com/chris/questd/internal/logger"
	"github.com/chris/questd/internal/memory"
	"github.com/chris/questd/internal/narrative"
	"github.com/chris/questd/internal/push"
	"github.com/chris/questd/internal/quest"
	"github.com/chris/questd/internal/reward"
	"github.com/chris/questd/internal/scheduler"
)

func main() {
	cfg := config.Load()

	lg, err := logger.New(cfg.LogMode)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer lg.Sync()

	store, err := db.Open(cfg.DatabasePath)
	if err != nil {
		lg.Fatal("failed to open database", "err", err)
	}
	defer store.Close()

	apiKey := cfg.AnthropicKey
	if cfg.LLMProvider == "openai" {
		apiKey = cfg.OpenAIKey
	}
	client, err := llm.NewClient(llm.ProviderConfig{
		Provider: cfg.LLMProvider,
		APIKey:   apiKey,
		Model:    cfg.LLMModel,
		BaseURL:  cfg.OllamaBaseURL,
	})
	if err != nil {
		lg.Fatal("failed to create LLM client", "err", err)
	}

	narr := narrative.New(client, lg)

	var graph memory.GraphPort
	if g, err := memory.NewNeo4jGraph(memory.Neo4jConfig{
		URI:      cfg.Neo4jURI,
		User:     cfg.Neo4jUser,
		Password: cfg.Neo4jPassword,
		Database: cfg.Neo4jDatabase,
	}, lg); err != nil {
		lg.Warn("graph memory unavailable, continuing without it", "err", err)
	} else if g != nil {
		graph = g
		defer g.Close(context.Background())
	}

	var vector memory.VectorPort
	if v, err := memory.NewRedisVector(cfg.RedisAddr, lg); err != nil {
		lg.Warn("vector memory unavailable, continuing without it", "err", err)
	} else if v != nil {
		vector = v
		defer v.Close()
	}

	rerollCost := 100
	if cfg.FreeReroll {
		rerollCost = 0
	}
	quests := quest.New(store, narr, reward.NewEngine(cfg.Testing), graph, vector,
		clock.System(), lg, quest.Config{
			DefaultTimezone:    cfg.DefaultTimezone,
			RerollCost:         rerollCost,
			ForceSerendipity:   cfg.ForceSerendipity,
			DisableSerendipity: cfg.DisableSerendip,
			Deterministic:      cfg.Testing,
		})

	var port push.Port
	switch {
	case cfg.DiscordToken != "":
		p, err := push.NewDiscordPort(cfg.DiscordToken)
		if err != nil {
			lg.Fatal("failed to start Discord session", "err", err)
		}
		defer p.Close()
		port = p
	case cfg.DiscordWebhook != "":
		port = push.NewWebhookPort(cfg.DiscordWebhook)
	default:
		lg.Fatal("no push transport configured: set DISCORD_BOT_TOKEN or DISCORD_WEBHOOK_URL")
	}
	dispatch := push.NewDispatcher(port, lg)

	sched := scheduler.New(store, quests, dispatch, clock.System(), lg, scheduler.Config{
		Interval:        time.Duration(cfg.SchedulerSeconds) * time.Second,
		DefaultTimezone: cfg.DefaultTimezone,
	})
	sched.Start()
	defer sched.Stop()

	loop := executive.New(store, quests, narr, graph, executive.NoLoad(), clock.System(), lg,
		cfg.DefaultTimezone)
	c := cron.New()
	if _, err := c.AddFunc("@every 1h", func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Minute)
		defer cancel()
		loop.RunAll(ctx)
	}); err != nil {
		lg.Fatal("failed to schedule executive loop", "err", err)
	}
	c.Start()
	defer c.Stop()

	lg.Info("coach is running, press Ctrl+C to exit")
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	lg.Info("shutting down")
}
