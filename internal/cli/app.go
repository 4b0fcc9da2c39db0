package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/lazypower/palace/internal/chambers"
	"github.com/lazypower/palace/internal/config"
	"github.com/lazypower/palace/internal/doors"
	"github.com/lazypower/palace/internal/gravity"
	"github.com/lazypower/palace/internal/llm"
	"github.com/lazypower/palace/internal/maintain"
	"github.com/lazypower/palace/internal/mirrors"
	"github.com/lazypower/palace/internal/search"
	"github.com/lazypower/palace/internal/store"
)

// app wires the engines for one command invocation.
type app struct {
	cfg      config.Config
	db       *store.DB
	gravity  *gravity.Engine
	chambers *chambers.Engine
	doors    *doors.Engine
	mirrors  *mirrors.Engine
	pipeline *search.Pipeline
	maintain *maintain.Orchestrator
}

func loadConfig() (config.Config, error) {
	if configPath != "" {
		return config.Load(configPath)
	}
	return config.Default(), nil
}

// openApp builds the full engine stack from config. The summarizer
// degrades to nil when no LLM is configured; promotion then writes
// failure markers instead of summaries.
func openApp() (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}

	dbPath := cfg.Database.Path
	if dbPath == "" {
		dbPath, err = store.DefaultDBPath()
		if err != nil {
			return nil, fmt.Errorf("resolve db path: %w", err)
		}
	}

	db, err := store.Open(dbPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	var summarizer llm.Summarizer
	if client, err := llm.NewClient(cfg.LLM); err != nil {
		fmt.Fprintf(os.Stderr, "warning: LLM not configured (%v), promotion will write markers\n", err)
	} else {
		summarizer = llm.NewSummarizer(client, time.Duration(cfg.Chambers.SummarizeTimeoutSecs)*time.Second)
	}

	a := &app{cfg: cfg, db: db}
	a.gravity = gravity.New(db, cfg.Gravity)
	a.chambers = chambers.New(db, summarizer, cfg.Corpus, cfg.Chambers)
	a.doors = doors.New(db, cfg.Corpus, cfg.Doors)
	a.mirrors = mirrors.New(db, cfg.Corpus)
	a.pipeline = search.New(a.gravity, a.doors, a.mirrors,
		search.NewKeywordSearcher(cfg.Corpus), cfg.Search)
	a.maintain = maintain.New(a.chambers, a.doors, a.gravity, a.mirrors,
		cfg.Maintenance.LockRetries)
	return a, nil
}

func (a *app) close() {
	a.db.Close()
}
