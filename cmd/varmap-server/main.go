package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kim/varmap/internal/config"
	"github.com/kim/varmap/internal/domain/export"
	"github.com/kim/varmap/internal/domain/granularity"
	"github.com/kim/varmap/internal/domain/mapping"
	"github.com/kim/varmap/internal/domain/project"
	"github.com/kim/varmap/internal/domain/tree"
	"github.com/kim/varmap/internal/platform/backend"
	"github.com/kim/varmap/internal/platform/db"
	"github.com/kim/varmap/internal/platform/session"
	"github.com/kim/varmap/internal/server"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "varmap-server",
		Short:        "Clinical variable mapping workbench API",
		SilenceUsage: true,
	}
	root.AddCommand(serveCmd())
	root.AddCommand(exportCmd())
	root.AddCommand(seedCmd())
	root.AddCommand(migrateCmd())
	return root
}

func newLogger(cfg *config.Config, out io.Writer) zerolog.Logger {
	var logger zerolog.Logger
	if cfg.IsDev() {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339})
	} else {
		logger = zerolog.New(out)
	}
	return logger.Level(cfg.Level()).With().Timestamp().Logger()
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer()
		},
	}
}

func runServer() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := newLogger(cfg, os.Stdout)
	if err := cfg.Validate(); err != nil {
		logger.Error().Err(err).Msg("invalid configuration")
		return err
	}

	ctx := context.Background()
	client := backend.NewClient(cfg.BackendURL, cfg.BackendTimeout, logger)
	var checks []server.HealthCheck

	// Base dataset
	var source mapping.BaseSource
	switch cfg.BaseSource {
	case config.SourceFile:
		if rows, err := mapping.LoadSeedFile(cfg.SeedFile); err != nil {
			logger.Warn().Err(err).Str("seed_file", cfg.SeedFile).Msg("seed file unreadable; master views will be degraded")
		} else {
			logger.Info().Str("seed_file", cfg.SeedFile).Int("rows", len(rows)).Msg("seed file loaded")
		}
		source = mapping.NewFileSource(cfg.SeedFile)
	case config.SourcePostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			logger.Error().Err(err).Msg("failed to connect to database")
			return err
		}
		defer pool.Close()
		st := db.Stats(pool)
		logger.Info().Int32("total_conns", st.TotalConns).Int32("max_conns", st.MaxConns).Msg("connected to database")
		source = mapping.NewBaseStorePG(pool)
		checks = append(checks, server.HealthCheck{Name: "postgres", Check: db.Check(pool)})
	default:
		source = mapping.NewBackendSource(client)
	}

	// Sessions
	var store session.Store
	stopSweep := func() {}
	if cfg.RedisURL != "" {
		rs, err := session.NewRedisStore(cfg.RedisURL, cfg.SessionTTL)
		if err != nil {
			logger.Error().Err(err).Msg("failed to create redis session store")
			return err
		}
		defer rs.Close()
		if err := rs.Ping(ctx); err != nil {
			logger.Warn().Err(err).Msg("redis not reachable yet")
		}
		store = rs
		checks = append(checks, server.HealthCheck{Name: "redis", Check: rs.Ping})
		logger.Info().Msg("using redis session store")
	} else {
		ms := session.NewMemoryStore(cfg.SessionTTL)
		stopSweep = sweepSessions(ms, time.Minute, logger)
		store = ms
		logger.Info().Msg("using in-memory session store")
	}
	defer stopSweep()

	projects := project.NewService(client, cfg.PersistSourceFilter, logger)
	mappings := mapping.NewService(mapping.NewBaseCache(source, logger), client, logger)
	h := server.NewHandler(client, projects, mappings, store, server.Options{
		FrontendURL:  cfg.FrontendURL,
		SessionTTL:   cfg.SessionTTL,
		SecureCookie: cfg.IsProduction(),
		UploadLimit:  cfg.UploadBytes(),
	}, logger)
	e := server.NewEcho(cfg, h, store, checks, logger)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().
			Str("addr", addr).
			Str("env", cfg.Env).
			Str("backend", cfg.BackendURL).
			Str("base_source", cfg.BaseSource).
			Msg("starting server")
		if err := e.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		logger.Error().Err(err).Msg("server error")
		return err
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error().Err(err).Msg("server shutdown failed")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

// sweepSessions drops expired in-memory sessions every interval until the
// returned stop function is called.
func sweepSessions(ms *session.MemoryStore, interval time.Duration, logger zerolog.Logger) func() {
	ticker := time.NewTicker(interval)
	done := make(chan struct{})
	go func() {
		for {
			select {
			case <-ticker.C:
				if n := ms.Sweep(); n > 0 {
					logger.Debug().Int("sessions", n).Msg("expired sessions removed")
				}
			case <-done:
				return
			}
		}
	}()
	return func() {
		ticker.Stop()
		close(done)
	}
}

// -- export --

type exportOptions struct {
	SeedFile   string
	UploadFile string
	Project    string
	Filter     string
	Selection  []string
	All        bool
	Format     string
	Out        string
}

type exportReport struct {
	Path    string
	Rows    int
	Unknown []string
	Upload  *mapping.UpsertResult
}

func exportCmd() *cobra.Command {
	var opts exportOptions
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export selected variables from a seed file without the backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			rep, err := runExport(opts, time.Now())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			if rep.Upload != nil {
				fmt.Fprintf(out, "Upload: %d added, %d updated, %d skipped.\n", rep.Upload.Added, rep.Upload.Updated, rep.Upload.Skipped)
			}
			for _, k := range rep.Unknown {
				fmt.Fprintf(cmd.ErrOrStderr(), "warning: %s is not in the master view\n", k)
			}
			fmt.Fprintf(out, "Wrote %d row(s) to %s\n", rep.Rows, rep.Path)
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.SeedFile, "seed", "", "Base dataset (CSV, XLSX or YAML)")
	cmd.Flags().StringVar(&opts.UploadFile, "upload", "", "Additional variables to merge (CSV, XLSX or YAML)")
	cmd.Flags().StringVar(&opts.Project, "project", "project", "Project name used in the output file name")
	cmd.Flags().StringVar(&opts.Filter, "source-filter", "Both", "Visible source systems: Both, EPIC or PDMS")
	cmd.Flags().StringSliceVar(&opts.Selection, "select", nil, "Row keys to export (EPIC:<id>, PDMS:<id> or ROW:<key>)")
	cmd.Flags().BoolVar(&opts.All, "all", false, "Export every row of the master view")
	cmd.Flags().StringVar(&opts.Format, "format", "csv", "Output format: csv or xlsx")
	cmd.Flags().StringVar(&opts.Out, "out", "", "Output file or directory (default: generated name in the current directory)")
	cmd.MarkFlagRequired("seed")
	return cmd
}

func runExport(opts exportOptions, now time.Time) (exportReport, error) {
	var rep exportReport
	format, err := export.ParseFormat(opts.Format)
	if err != nil {
		return rep, err
	}
	filter, err := mapping.ParseSourceFilter(opts.Filter)
	if err != nil {
		return rep, err
	}
	base, err := mapping.LoadSeedFile(opts.SeedFile)
	if err != nil {
		return rep, err
	}

	var overlay mapping.Overlay
	if opts.UploadFile != "" {
		data, err := os.ReadFile(opts.UploadFile)
		if err != nil {
			return rep, fmt.Errorf("read upload: %w", err)
		}
		recs, err := mapping.ParseTable(opts.UploadFile, data)
		if err != nil {
			return rep, err
		}
		var res mapping.UpsertResult
		overlay, res = mapping.Upsert(base, overlay, mapping.RowsFromRecords(recs), mapping.UpsertOptions{
			Contribution: mapping.ContributionUpload,
			Now:          func() time.Time { return now },
		})
		rep.Upload = &res
	}

	master := mapping.Master(base, overlay, filter)
	valid := mapping.KeySet(master)

	var selection []string
	if opts.All {
		for _, r := range master {
			selection = append(selection, tree.LeafID(r.Key))
		}
	} else {
		for _, s := range opts.Selection {
			s = strings.TrimSpace(s)
			if s == "" {
				continue
			}
			if !strings.HasPrefix(s, tree.PrefixRow) {
				s = tree.LeafID(s)
			}
			selection = append(selection, s)
		}
	}
	normalized := tree.NormalizeSelection(selection)
	kept := tree.FilterSelection(normalized, valid)
	if len(kept) < len(normalized) {
		ok := make(map[string]bool, len(kept))
		for _, id := range kept {
			ok[id] = true
		}
		for _, id := range normalized {
			if !ok[id] {
				key, _ := tree.RowKey(id)
				rep.Unknown = append(rep.Unknown, key)
			}
		}
	}
	if len(kept) == 0 {
		return rep, errors.New("nothing to export: select at least one row in the master view")
	}

	rows := export.Build(granularity.Init(tree.SelectedKeys(kept), valid), master)

	path := opts.Out
	name := export.Filename(opts.Project, now, format)
	if path == "" {
		path = name
	} else if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		path = filepath.Join(path, name)
	}
	f, err := os.Create(path)
	if err != nil {
		return rep, fmt.Errorf("create export file: %w", err)
	}
	if err := export.Write(f, format, rows); err != nil {
		f.Close()
		return rep, fmt.Errorf("write %s export: %w", format, err)
	}
	if err := f.Close(); err != nil {
		return rep, fmt.Errorf("close export file: %w", err)
	}
	rep.Path = path
	rep.Rows = len(rows)
	return rep, nil
}

// -- seed --

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Inspect and load base datasets",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "check <file>",
		Short: "Load a seed file and print key statistics",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeedCheck(args[0], cmd.OutOrStdout())
		},
	})

	loadCmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Replace a project's base rows in the postgres base source",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("project")

			rows, err := mapping.LoadSeedFile(args[0])
			if err != nil {
				return err
			}
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return errors.New("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			n, err := mapping.NewBaseStorePG(pool).Replace(ctx, name, rows)
			if err != nil {
				return err
			}
			scope := name
			if scope == "" {
				scope = "all projects"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Loaded %d row(s) for %s.\n", n, scope)
			return nil
		},
	}
	loadCmd.Flags().String("project", "", "Project the rows belong to (empty: shared by every project)")
	cmd.AddCommand(loadCmd)
	return cmd
}

type seedStats struct {
	Rows          int
	EPIC          int
	PDMS          int
	Synthetic     int
	Duplicates    int
	Unnamed       int
	OrganSystems  int
	Groups        int
	DuplicateKeys []string
}

func seedStatsOf(rows []mapping.Row) seedStats {
	st := seedStats{Rows: len(rows)}
	counts := make(map[string]int, len(rows))
	organs := make(map[string]bool)
	groups := make(map[string]bool)
	for _, r := range rows {
		counts[r.Key]++
		switch {
		case strings.HasPrefix(r.Key, mapping.KeyPrefixEPIC):
			st.EPIC++
		case strings.HasPrefix(r.Key, mapping.KeyPrefixPDMS):
			st.PDMS++
		default:
			st.Synthetic++
		}
		if r.Variable == "" {
			st.Unnamed++
		}
		organs[r.OrganSystem] = true
		groups[r.OrganSystem+"\x1f"+r.Group] = true
	}
	for k, n := range counts {
		if n > 1 {
			st.Duplicates += n - 1
			st.DuplicateKeys = append(st.DuplicateKeys, k)
		}
	}
	sort.Strings(st.DuplicateKeys)
	st.OrganSystems = len(organs)
	st.Groups = len(groups)
	return st
}

func runSeedCheck(path string, out io.Writer) error {
	rows, err := mapping.LoadSeedFile(path)
	if err != nil {
		return err
	}
	if _, err := tree.Build(rows, tree.Options{}); err != nil {
		return fmt.Errorf("build tree from %s: %w", path, err)
	}
	st := seedStatsOf(rows)
	fmt.Fprintf(out, "%-16s %d\n", "rows", st.Rows)
	fmt.Fprintf(out, "%-16s %d\n", "epic keys", st.EPIC)
	fmt.Fprintf(out, "%-16s %d\n", "pdms keys", st.PDMS)
	fmt.Fprintf(out, "%-16s %d\n", "synthetic keys", st.Synthetic)
	fmt.Fprintf(out, "%-16s %d\n", "organ systems", st.OrganSystems)
	fmt.Fprintf(out, "%-16s %d\n", "groups", st.Groups)
	fmt.Fprintf(out, "%-16s %d\n", "unnamed", st.Unnamed)
	fmt.Fprintf(out, "%-16s %d\n", "duplicates", st.Duplicates)
	for _, k := range st.DuplicateKeys {
		fmt.Fprintf(out, "  duplicate key %s (last occurrence wins)\n", k)
	}
	return nil
}

// -- migrate --

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the postgres base source schema",
	}

	open := func(cmd *cobra.Command) (*db.Migrator, func(), error) {
		dir, _ := cmd.Flags().GetString("dir")
		cfg, err := config.Load()
		if err != nil {
			return nil, nil, err
		}
		if cfg.DatabaseURL == "" {
			return nil, nil, errors.New("DATABASE_URL is required")
		}
		pool, err := db.NewPool(context.Background(), cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, nil, err
		}
		fsys := db.Migrations()
		if dir != "" {
			fsys = os.DirFS(dir)
		}
		return db.NewMigrator(pool, fsys), pool.Close, nil
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			count, err := migrator.Up(context.Background())
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s).\n", count)
			return nil
		},
	}
	upCmd.Flags().String("dir", "", "Read migrations from this directory instead of the bundled set")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			migrator, closeFn, err := open(cmd)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(context.Background())
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}
			printStatuses(cmd.OutOrStdout(), statuses)
			return nil
		},
	}
	statusCmd.Flags().String("dir", "", "Read migrations from this directory instead of the bundled set")
	cmd.AddCommand(statusCmd)
	return cmd
}

func printStatuses(out io.Writer, statuses []db.MigrationStatus) {
	fmt.Fprintf(out, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
	for _, s := range statuses {
		status, appliedAt := "pending", ""
		if s.Applied {
			status = "applied"
			if s.AppliedAt != nil {
				appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
			}
		}
		fmt.Fprintf(out, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
	}
}
