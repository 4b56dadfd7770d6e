package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/planpilot/planpilot/internal/catalog"
	"github.com/planpilot/planpilot/internal/config"
	"github.com/planpilot/planpilot/internal/db"
	"github.com/planpilot/planpilot/internal/engine"
	"github.com/planpilot/planpilot/internal/intent"
	"github.com/planpilot/planpilot/internal/interfaces"
	"github.com/planpilot/planpilot/internal/journey"
	"github.com/planpilot/planpilot/internal/llm"
	"github.com/planpilot/planpilot/internal/ml"
	"github.com/planpilot/planpilot/internal/planner"
)

var (
	version     = "1.0.0"
	configPath  string
	dbPath      string
	seedPath    string
	reindex     bool
	showVersion bool
)

func init() {
	flag.StringVar(&configPath, "config", config.GetConfigPath(), "Path to configuration file")
	flag.StringVar(&dbPath, "db", "", "Path to SQLite database (overrides config)")
	flag.StringVar(&seedPath, "seed", "", "Load actions from a YAML seed file")
	flag.BoolVar(&reindex, "reindex", false, "Recompute all action embeddings")
	flag.BoolVar(&showVersion, "version", false, "Show version information")
}

func usage() {
	fmt.Println("Usage:")
	fmt.Println("  planpilot [flags] plan \"<request>\"    Build a plan for a request")
	fmt.Println("  planpilot [flags] match \"<request>\"   Show scored action matches")
	fmt.Println("  planpilot -seed actions.yaml           Import actions into the catalog")
	fmt.Println("  planpilot -reindex                     Recompute catalog embeddings")
	flag.PrintDefaults()
}

func main() {
	flag.Parse()

	if showVersion {
		fmt.Printf("PlanPilot v%s\n", version)
		fmt.Println("Natural-language planning over a cataloged action set")
		return
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}
	if dbPath != "" {
		cfg.DBPath = dbPath
	}
	journey.GetLogger().SetPath(cfg.TracePath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	database, err := db.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer database.Close()

	embedder := ml.NewEmbeddingEngine(cfg.Embedding.ModelDir)
	if err := embedder.Load(); err != nil {
		log.Fatalf("Failed to load embedding model: %v", err)
	}
	defer embedder.Close()

	store := catalog.NewStore(database, embedder)

	if seedPath != "" {
		seed, err := catalog.LoadSeedFile(seedPath)
		if err != nil {
			log.Fatalf("Failed to load seed file: %v", err)
		}
		n, err := store.ImportSeed(ctx, seed)
		if err != nil {
			log.Fatalf("Seed import failed after %d actions: %v", n, err)
		}
		fmt.Printf("Imported %d actions.\n", n)
		return
	}

	if err := store.Load(ctx); err != nil {
		log.Fatalf("Failed to load catalog: %v", err)
	}

	if reindex {
		if err := store.ReindexEmbeddings(ctx); err != nil {
			log.Fatalf("Reindex failed: %v", err)
		}
		fmt.Println("Catalog embeddings reindexed.")
		return
	}

	args := flag.Args()
	if len(args) < 2 {
		usage()
		os.Exit(1)
	}
	command, request := args[0], strings.Join(args[1:], " ")

	profile, err := loadProfile(seedOrDefault())
	if err != nil {
		log.Fatalf("Failed to build profile: %v", err)
	}

	matcher := intent.NewMatcher(store, embedder, profile, cfg.Matching)

	switch command {
	case "match":
		matches, err := matcher.Match(ctx, request, nil)
		if err != nil {
			log.Fatalf("Match failed: %v", err)
		}
		printJSON(matches)

	case "plan":
		client := llm.NewClient(cfg.LLM)
		var scope *llm.ScopeGate
		if cfg.Scope.Enabled {
			scope = llm.NewScopeGate(client)
		}

		orch := planner.NewOrchestrator(
			profile,
			llm.NewIntentExtractor(client),
			matcher,
			intent.NewSelector(store),
			scopeOrNil(scope),
			planner.New(llm.NewHTNDecomposer(client), cfg.Planner.MaxDepth, time.Duration(cfg.Planner.PacingDelayMs)*time.Millisecond),
			cfg.Scope.Strict,
			cfg.Planner.MatchWorkers,
		)

		sessionID := uuid.NewString()
		logID, logErr := database.LogPlanStart(sessionID, request)
		start := time.Now()

		plan := orch.PlanIntention(ctx, request)

		if logErr == nil {
			reason := plan.Reason
			if err := database.LogPlanComplete(logID, string(plan.Kind), reason, time.Since(start).Milliseconds()); err != nil {
				log.Printf("Failed to record plan log: %v", err)
			}
		}

		printJSON(plan)

		if !plan.Unresolved() {
			fmt.Println()
			walker := engine.NewWalker(os.Stdout)
			if err := walker.Describe(plan); err != nil {
				log.Printf("Failed to describe plan: %v", err)
			}
		}

	default:
		usage()
		os.Exit(1)
	}
}

// scopeOrNil keeps a disabled gate as a true nil interface rather than
// a typed-nil pointer.
func scopeOrNil(gate *llm.ScopeGate) interfaces.ScopeChecker {
	if gate == nil {
		return nil
	}
	return gate
}

// loadProfile builds the domain profile from a seed file if one is
// available, otherwise an empty profile.
func loadProfile(path string) (*intent.Profile, error) {
	if path == "" {
		return intent.NewProfile("default"), nil
	}
	seed, err := catalog.LoadSeedFile(path)
	if err != nil {
		return nil, err
	}
	return seed.BuildProfile(), nil
}

// seedOrDefault looks for a seed file next to the config so the
// profile survives across runs without re-importing.
func seedOrDefault() string {
	if seedPath != "" {
		return seedPath
	}
	candidate := strings.TrimSuffix(configPath, "config.yaml") + "actions.yaml"
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

func printJSON(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		log.Fatalf("Failed to encode output: %v", err)
	}
	fmt.Println(string(data))
}
