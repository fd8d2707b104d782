package cli

import (
	"context"
	"fmt"
	"log"
	"time"

	"contest-engine/internal/app"
	"contest-engine/internal/config"
	"contest-engine/internal/domain"
	"contest-engine/internal/infra/local"
	"contest-engine/internal/infra/memory"
	"contest-engine/internal/infra/postgres"
	redisinfra "contest-engine/internal/infra/redis"
	"contest-engine/internal/jobs"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
)

// outboxStore is an app.Outbox that can also enumerate its pending users.
type outboxStore interface {
	app.Outbox
	jobs.PendingLister
}

type services struct {
	contests    app.ContestRepository
	outbox      outboxStore
	reconciler  *app.Reconciler
	engine      *app.Engine
	admission   *app.Admission
	leaderboard *app.Leaderboard
	payments    *app.Payments
	boot        *app.Bootstrapper
}

// buildServices wires the use cases onto Postgres and Redis when configured,
// falling back to in-memory adapters otherwise. The returned func releases
// every connection.
func buildServices(ctx context.Context, cfg config.Config) (*services, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		closers = append(closers, func() { _ = redisClient.Close() })
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	questionTTL := config.TTLDuration(cfg.Questions.TTL, 10*time.Minute)

	var (
		store     app.Store
		questions app.QuestionRepository
	)
	if cfg.Postgres.URL != "" {
		db := postgres.Open(cfg.Postgres.URL)
		closers = append(closers, func() { _ = db.Close() })
		pgStore := postgres.NewStore(db)

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			cleanup()
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		closers = append(closers, pool.Close)
		loader := postgres.NewQuestionLoader(pool)

		store = pgStore
		if redisClient != nil {
			questions = redisinfra.NewQuestionCache(redisClient, loader, loader, questionTTL)
		} else {
			questions = memory.NewQuestionCache(loader, loader, questionTTL)
		}
	} else {
		memStore := memory.NewStore()
		memStore.PutQuestions(sampleQuestions()...)
		memStore.PutLevelTitles(sampleLevelTitles()...)
		log.Printf("postgres not configured, using in-memory store with %d sample questions", len(sampleQuestions()))
		store = memStore
		questions = memory.NewQuestionCache(memStore, memStore, questionTTL)
	}

	var (
		outbox outboxStore
		locker app.Locker
		plays  app.PlayRegistry
	)
	switch cfg.Outbox.Backend {
	case "file":
		if cfg.Outbox.Path == "" {
			cleanup()
			return nil, nil, fmt.Errorf("outbox path not configured")
		}
		outbox = local.NewOutbox(cfg.Outbox.Path)
	case "redis":
		if redisClient == nil {
			cleanup()
			return nil, nil, fmt.Errorf("redis outbox requires redis.addr")
		}
		outbox = redisinfra.NewOutbox(redisClient)
	case "", "memory":
		if redisClient != nil {
			outbox = redisinfra.NewOutbox(redisClient)
		} else {
			outbox = memory.NewOutbox()
		}
	default:
		cleanup()
		return nil, nil, fmt.Errorf("unknown outbox backend %q", cfg.Outbox.Backend)
	}
	if redisClient != nil {
		locker = redisinfra.NewLocker(redisClient, config.TTLDuration(cfg.Redis.LockTTL, 5*time.Second))
		plays = redisinfra.NewPlayStore(redisClient, redisTTL)
	} else {
		locker = memory.NewLocker()
		plays = memory.NewPlayStore()
	}

	playCfg := playConfig(cfg)
	reconciler := app.NewReconciler(store, outbox, locker, playCfg.QuestionTimeout)
	ledger := app.NewLedger(store, store)
	boot := app.NewBootstrapper(store, store, ledger, reconciler, app.BootstrapConfig{
		Failsafe:           config.TTLDuration(cfg.Bootstrap.Failsafe, 6*time.Second),
		RecentTransactions: config.IntOr(cfg.Bootstrap.RecentTransactions, 20),
	})
	draws := app.NewDrawEngine(questions, store, store, store, drawConfig(cfg))
	engine := app.NewEngine(draws, reconciler, boot, store, plays, guard(cfg), playCfg, nil)

	return &services{
		contests:    store,
		outbox:      outbox,
		reconciler:  reconciler,
		engine:      engine,
		admission:   app.NewAdmission(store, store, ledger),
		leaderboard: app.NewLeaderboard(store, store, store),
		payments:    app.NewPayments(ledger, store, cfg.Payments.RedirectURL),
		boot:        boot,
	}, cleanup, nil
}

func playConfig(cfg config.Config) app.PlayConfig {
	def := app.DefaultPlayConfig()
	return app.PlayConfig{
		QuestionTimeout: config.TTLDuration(cfg.Game.QuestionTimeout, def.QuestionTimeout),
		AnswerDwell:     config.TTLDuration(cfg.Game.AnswerDwell, def.AnswerDwell),
		TimeoutDwell:    config.TTLDuration(cfg.Game.TimeoutDwell, def.TimeoutDwell),
		SettleTimeout:   config.TTLDuration(cfg.Game.SettleTimeout, def.SettleTimeout),
	}
}

func drawConfig(cfg config.Config) app.DrawConfig {
	def := app.DefaultDrawConfig()
	def.SoloDrawSize = config.IntOr(cfg.Game.SoloCount, def.SoloDrawSize)
	def.SoloMinPool = config.IntOr(cfg.Game.SoloMinimum, def.SoloMinPool)
	return def
}

func guard(cfg config.Config) app.Guard {
	g := app.DefaultGuard()
	if cfg.Game.VisibilityLimit > 0 {
		g.Visibility = app.StrikePolicy(cfg.Game.VisibilityLimit)
	}
	if cfg.Game.MinAnswerPace != "" {
		g.Pace = app.MinimumPace(config.TTLDuration(cfg.Game.MinAnswerPace, 800*time.Millisecond))
	}
	return g
}

func sampleLevelTitles() []domain.LevelTitle {
	return []domain.LevelTitle{
		{Level: 1, Title: "Novice"},
		{Level: 5, Title: "Apprentice"},
		{Level: 10, Title: "Erudite"},
		{Level: 15, Title: "Expert"},
		{Level: 20, Title: "Master"},
		{Level: 25, Title: "Grand Master"},
		{Level: 30, Title: "Legend"},
	}
}

// sampleQuestions seeds the in-memory store so a solo draw works out of the box.
func sampleQuestions() []domain.Question {
	rows := []struct {
		category string
		text     string
		options  []string
		correct  int
	}{
		{"geography", "What is the capital of Haiti?", []string{"Cap-Haïtien", "Port-au-Prince", "Jacmel", "Les Cayes"}, 1},
		{"geography", "Which island does Haiti share with the Dominican Republic?", []string{"Cuba", "Jamaica", "Hispaniola", "Puerto Rico"}, 2},
		{"history", "In which year did Haiti declare independence?", []string{"1791", "1804", "1825", "1915"}, 1},
		{"history", "Who led the Haitian Revolution's final campaign?", []string{"Jean-Jacques Dessalines", "Henri Christophe", "Alexandre Pétion", "Boukman"}, 0},
		{"science", "What is the chemical symbol for gold?", []string{"Ag", "Go", "Au", "Gd"}, 2},
		{"science", "How many planets orbit the Sun?", []string{"7", "8", "9", "10"}, 1},
		{"math", "What is 12 x 12?", []string{"124", "144", "132", "154"}, 1},
		{"math", "What is the square root of 81?", []string{"7", "8", "9", "10"}, 2},
		{"culture", "Which currency is used in Haiti?", []string{"Peso", "Dollar", "Gourde", "Franc"}, 2},
		{"culture", "What is Haiti's national dish often served on Independence Day?", []string{"Soup joumou", "Griot", "Diri ak djon djon", "Akra"}, 0},
		{"sport", "How many players does a football team field?", []string{"9", "10", "11", "12"}, 2},
		{"sport", "Which country hosted the 2016 Summer Olympics?", []string{"China", "Brazil", "UK", "Japan"}, 1},
	}
	out := make([]domain.Question, 0, len(rows))
	for i, r := range rows {
		out = append(out, domain.Question{
			ID:           fmt.Sprintf("sample-%02d", i+1),
			Category:     r.category,
			Difficulty:   1 + i%3,
			Text:         r.text,
			Options:      r.options,
			CorrectIndex: r.correct,
			ForSolo:      true,
		})
	}
	return out
}
