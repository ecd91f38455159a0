// Package seeder orchestrates a seeding run: it parses the schema, loads the
// generation plan, builds the lazy row stream and hands everything to the
// engine.
package seeder

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/fatih/color"

	"github.com/Lumos-Labs-HQ/sprout/internal/config"
	"github.com/Lumos-Labs-HQ/sprout/internal/database"
	"github.com/Lumos-Labs-HQ/sprout/internal/engine"
	"github.com/Lumos-Labs-HQ/sprout/internal/refstore"
	"github.com/Lumos-Labs-HQ/sprout/internal/schema"
)

type Options struct {
	Count    int   // overrides the default per-table row count when > 0
	Seed     int64 // RNG seed; 0 means time-based
	Truncate bool  // empty tables before seeding
	Verbose  bool  // per-flush progress lines
}

type Seeder struct {
	cfg     *config.Config
	adapter database.Adapter
}

func New(ctx context.Context, cfg *config.Config) (*Seeder, error) {
	dbURL, err := cfg.GetDatabaseURL()
	if err != nil {
		return nil, err
	}

	adapter := database.New(cfg.Database.Provider)
	if err := adapter.Connect(ctx, dbURL); err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return &Seeder{cfg: cfg, adapter: adapter}, nil
}

func (s *Seeder) Close() error {
	return s.adapter.Close()
}

// LoadSchema parses the configured schema dir and returns the tables plus
// their insertion order.
func (s *Seeder) LoadSchema() (map[string]*schema.Table, []string, error) {
	files, err := s.cfg.GetSchemaFiles()
	if err != nil {
		return nil, nil, err
	}
	tables, err := schema.ParseFiles(files)
	if err != nil {
		return nil, nil, err
	}
	if len(tables) == 0 {
		return nil, nil, fmt.Errorf("no tables found in %s", s.cfg.SchemaDir)
	}

	order, err := NewDependencyGraph(tables).BuildInsertionOrder()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to build insertion order: %w", err)
	}
	return tables, order, nil
}

// Seed runs one full generation + insertion cycle to completion.
func (s *Seeder) Seed(ctx context.Context, opts Options) error {
	color.Cyan("🌱 Starting database seeding...")

	tables, order, err := s.LoadSchema()
	if err != nil {
		return err
	}

	plan, err := LoadPlan(s.cfg.PlanFile)
	if err != nil {
		return err
	}
	if err := plan.Validate(tables); err != nil {
		return err
	}

	counts := s.rowCounts(tables, plan, opts.Count)
	if err := validateSelfReferences(tables, counts); err != nil {
		return err
	}

	color.Green("📊 Found %d tables", len(tables))
	color.Cyan("📋 Insertion order: %s", strings.Join(order, " → "))

	if opts.Truncate {
		if err := s.truncate(ctx, order); err != nil {
			return fmt.Errorf("failed to truncate tables: %w", err)
		}
	}

	seed := opts.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	gen := NewGenerator(plan, seed)
	stream := newRowStream(tables, order, counts, gen, s.cfg.Database.Provider, seed+1)

	engOpts := engine.Options{
		MaxParams:     s.cfg.Seed.MaxParams,
		Referenceable: ReferencedColumns(tables),
		OpenStore: func() (engine.RefStore, error) {
			return refstore.Open(s.cfg.Seed.ScratchDir)
		},
	}
	if opts.Verbose {
		engOpts.Logf = func(format string, args ...interface{}) {
			color.White("  "+format, args...)
		}
	}

	eng := engine.New(s.adapter, engOpts)
	if err := eng.Run(ctx, stream); err != nil {
		return err
	}

	color.Green("\n✅ Seeded %d rows across %d tables", eng.Inserted(), len(tables))
	return nil
}

// Reset truncates every schema table in reverse insertion order.
func (s *Seeder) Reset(ctx context.Context) error {
	_, order, err := s.LoadSchema()
	if err != nil {
		return err
	}
	return s.truncate(ctx, order)
}

func (s *Seeder) truncate(ctx context.Context, order []string) error {
	color.Yellow("🗑️  Truncating tables...")

	reversed := make([]string, len(order))
	for i, name := range order {
		reversed[len(order)-1-i] = name
	}
	if err := s.adapter.Truncate(ctx, reversed); err != nil {
		return err
	}

	color.Green("✅ Tables truncated")
	return nil
}

// rowCounts resolves the per-table row count. Precedence: plan per-table
// count, then the --count flag, then the plan default, then the config
// default.
func (s *Seeder) rowCounts(tables map[string]*schema.Table, plan *Plan, override int) map[string]int {
	fallback := s.cfg.Seed.DefaultCount
	if plan.DefaultCount > 0 {
		fallback = plan.DefaultCount
	}
	if override > 0 {
		fallback = override
	}
	counts := make(map[string]int, len(tables))
	for name := range tables {
		counts[name] = plan.Count(name, fallback)
	}
	return counts
}
