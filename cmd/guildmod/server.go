package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/bluesky-social/guildmod/automod/cachestore"
	"github.com/bluesky-social/guildmod/automod/classifier"
	"github.com/bluesky-social/guildmod/automod/countstore"
	"github.com/bluesky-social/guildmod/automod/discord"
	"github.com/bluesky-social/guildmod/automod/engine"
	"github.com/bluesky-social/guildmod/automod/rulestore"
	"github.com/bluesky-social/guildmod/automod/setstore"

	"github.com/bwmarrin/discordgo"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

var (
	// how often expired cooldown and rate state is dropped
	SweepInterval = time.Minute
	// longest MessageRate window served from the in-process rate tracker
	RateTrackerWindow = 10 * time.Minute
	ShutdownTimeout   = 10 * time.Second
)

type Server struct {
	logger  *slog.Logger
	store   *rulestore.Store
	engine  *engine.Engine
	backend *discord.Backend
	session *discordgo.Session
	handler *discord.Handler
}

type Config struct {
	DiscordToken        string
	SetsFileJSON        string
	RedisURL            string
	SlackWebhookURL     string
	ClassifierURL       string
	ClassifierToken     string
	ClassifierThreshold float64
	ClassifierTimeout   time.Duration
	ClassifierRateLimit float64
	SaveDelay           time.Duration
	Logger              *slog.Logger
}

func NewServer(ctx context.Context, repo rulestore.Repository, config Config) (*Server, error) {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))
	}

	var counters countstore.CountStore
	var cache cachestore.CacheStore
	if config.RedisURL != "" {
		cnt, err := countstore.NewRedisCountStore(config.RedisURL)
		if err != nil {
			return nil, fmt.Errorf("initializing redis countstore: %v", err)
		}
		counters = cnt

		csh, err := cachestore.NewRedisCacheStore(config.RedisURL, 30*time.Minute)
		if err != nil {
			return nil, fmt.Errorf("initializing redis cachestore: %v", err)
		}
		cache = csh
	} else {
		counters = countstore.NewMemCountStore()
		cache = cachestore.NewMemCacheStore(5_000, 30*time.Minute)
	}

	store := rulestore.NewStore(logger, repo, setstore.NewMemSetStore())
	store.SaveDelay = config.SaveDelay
	if err := store.Load(ctx); err != nil {
		return nil, err
	}
	if config.SetsFileJSON != "" {
		if err := mergeSetsFile(ctx, store, config.SetsFileJSON); err != nil {
			return nil, fmt.Errorf("loading keyword sets: %v", err)
		}
		logger.Info("loaded set config from JSON", "path", config.SetsFileJSON)
	}

	session, err := discord.NewSession(config.DiscordToken)
	if err != nil {
		return nil, fmt.Errorf("failed to create discord session: %w", err)
	}

	history := &engine.CountHistory{Counters: counters}
	backend := discord.NewBackend(session, session.State, history, logger)

	notifiers := []engine.Notifier{
		&discord.LogChannelNotifier{API: session, Rules: store},
	}
	if config.SlackWebhookURL != "" {
		notifiers = append(notifiers, engine.NewSlackNotifier(config.SlackWebhookURL))
	}

	var cls classifier.Classifier
	if config.ClassifierURL != "" {
		logger.Info("configuring AI content classifier", "host", config.ClassifierURL)
		cc := classifier.NewCachingClassifier(
			classifier.NewHTTPClient(config.ClassifierURL, config.ClassifierToken, config.ClassifierRateLimit),
			cache,
		)
		if config.ClassifierThreshold > 0 {
			cc.Threshold = config.ClassifierThreshold
		}
		if config.ClassifierTimeout > 0 {
			cc.Timeout = config.ClassifierTimeout
		}
		cls = cc
	}

	eng := &engine.Engine{
		Logger:     logger,
		Rules:      store,
		Enforcer:   backend,
		Platform:   backend,
		History:    history,
		Joins:      &engine.CountJoinTracker{Counters: counters},
		Rates:      engine.NewRateTracker(RateTrackerWindow),
		Cooldowns:  engine.NewCooldownTracker(),
		Patterns:   engine.NewPatternCache(1024),
		Audit:      &engine.LogAuditSink{Logger: logger},
		Notifiers:  notifiers,
		Classifier: cls,
		Counters:   counters,
		Now:        time.Now,
	}

	return &Server{
		logger:  logger,
		store:   store,
		engine:  eng,
		backend: backend,
		session: session,
		handler: discord.NewHandler(eng, logger),
	}, nil
}

// Merges keyword lists from a JSON sets file in to the store's lists.
func mergeSetsFile(ctx context.Context, store *rulestore.Store, path string) error {
	sets := setstore.NewMemSetStore()
	if err := sets.LoadFromFileJSON(path); err != nil {
		return err
	}
	var lists rulestore.KeywordLists
	var err error
	if lists.Whitelist, err = sets.List(ctx, rulestore.ListWhitelist); err != nil {
		return err
	}
	if lists.Blacklist, err = sets.List(ctx, rulestore.ListBlacklist); err != nil {
		return err
	}
	return store.ImportKeywords(ctx, lists, false)
}

func (s *Server) RunMetrics(listen string) error {
	http.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(listen, nil)
}

// Connects to the gateway and processes events until ctx is cancelled. Pending rule changes are flushed to storage on the way out.
func (s *Server) Run(ctx context.Context) error {
	if err := s.session.Open(); err != nil {
		return fmt.Errorf("failed to open discord connection: %w", err)
	}
	if s.session.State != nil && s.session.State.User != nil {
		s.engine.BotID = s.session.State.User.ID
		s.logger.Info("discord bot connected", "botID", s.engine.BotID)
	}
	s.handler.Register(s.session)

	eg, ctx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return s.RunSweep(ctx)
	})
	err := eg.Wait()

	s.logger.Info("shutting down")
	if cerr := s.session.Close(); cerr != nil {
		s.logger.Warn("failed to close discord session", "err", cerr)
	}
	s.backend.Close()
	s.engine.Wait()

	sctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if cerr := s.store.Close(sctx); cerr != nil {
		s.logger.Error("failed to persist rules on shutdown", "err", cerr)
		if err == nil {
			err = cerr
		}
	}
	return err
}

// this method runs in a loop, dropping expired engine state every SweepInterval
func (s *Server) RunSweep(ctx context.Context) error {
	ticker := time.NewTicker(SweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.engine.Sweep()
		}
	}
}
