package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/ehr/medxwalk/internal/adapter/catalog"
	"github.com/ehr/medxwalk/internal/adapter/pgstore"
	"github.com/ehr/medxwalk/internal/config"
	"github.com/ehr/medxwalk/internal/domain/codesystem"
	"github.com/ehr/medxwalk/internal/domain/medication"
	"github.com/ehr/medxwalk/internal/platform/auth"
	"github.com/ehr/medxwalk/internal/platform/db"
	"github.com/ehr/medxwalk/migrations"
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "medxwalk",
		Short:        "Medication code normalization and crosswalk service",
		SilenceUsage: true,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(loadCmd())
	rootCmd.AddCommand(lookupCmd())
	rootCmd.AddCommand(ingredientsCmd())
	rootCmd.AddCommand(remapsCmd())
	rootCmd.AddCommand(crosswalkCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(seedCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the medication API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			return runServer(cfg)
		},
	}
}

// withApp loads configuration, wires the services and runs fn with a
// context cancelled on SIGINT/SIGTERM.
func withApp(fn func(ctx context.Context, a *app) error) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(ctx, a)
}

func printJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func loadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "load <file>",
		Short: "Load a delimited file of local medications",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			workers, _ := cmd.Flags().GetInt("workers")
			return withApp(func(ctx context.Context, a *app) error {
				if workers > 0 {
					a.loader = a.loader.WithWorkers(workers)
				}
				batch, err := a.loader.LoadFile(ctx, args[0])
				if batch != nil {
					if perr := printJSON(cmd.OutOrStdout(), batch.Summary()); perr != nil {
						return perr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().Int("workers", 0, "Worker count (defaults to LOADER_WORKERS)")
	return cmd
}

// entityArgs parses <system> <code> and checks the code's syntax before
// anything is constructed.
func entityArgs(args []string) (codesystem.System, string, error) {
	system, err := codesystem.Parse(args[0])
	if err != nil {
		return "", "", err
	}
	code := strings.TrimSpace(args[1])
	if err := codesystem.CheckSyntax(system, code); err != nil {
		return "", "", err
	}
	return system, code, nil
}

func resolve(ctx context.Context, a *app, system codesystem.System, code string) (medication.Entity, error) {
	e, err := a.meds.Get(ctx, system, code)
	if err != nil {
		return nil, err
	}
	ok, err := e.Valid(ctx)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s %s", medication.ErrInvalidCode, system, code)
	}
	return e, nil
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <system> <code>",
		Short: "Resolve a code and print its view",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, code, err := entityArgs(args)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				e, err := resolve(ctx, a, system, code)
				if err != nil {
					return err
				}
				if _, err := e.Status(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), e.View())
			})
		},
	}
}

func ingredientsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ingredients <system> <code>",
		Short: "Print the ingredient concepts of a code",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, code, err := entityArgs(args)
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				e, err := resolve(ctx, a, system, code)
				if err != nil {
					return err
				}
				ings, err := e.Ingredients(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), medication.Views(ings))
			})
		},
	}
}

func remapsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "remaps <code>",
		Short: "Print the live successors of a normalized code",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			system, code, err := entityArgs([]string{string(codesystem.Normalized), args[0]})
			if err != nil {
				return err
			}
			return withApp(func(ctx context.Context, a *app) error {
				concept, err := a.meds.Concept(ctx, code)
				if err != nil {
					return err
				}
				if ok, err := concept.Valid(ctx); err != nil {
					return err
				} else if !ok {
					return fmt.Errorf("%w: %s %s", medication.ErrInvalidCode, system, code)
				}
				remaps, err := concept.Remaps(ctx)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), medication.Views(remaps))
			})
		},
	}
}

func crosswalkCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crosswalk <source> <target> <code>",
		Short: "Run a defined crosswalk for one code",
		Args: func(cmd *cobra.Command, args []string) error {
			if list, _ := cmd.Flags().GetBool("list"); list {
				return cobra.NoArgs(cmd, args)
			}
			return cobra.ExactArgs(3)(cmd, args)
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			list, _ := cmd.Flags().GetBool("list")
			return withApp(func(ctx context.Context, a *app) error {
				if list {
					return printJSON(cmd.OutOrStdout(), a.xwalk.Engine().Pairs())
				}
				source, err := codesystem.Parse(args[0])
				if err != nil {
					return err
				}
				out, err := a.xwalk.Translate(ctx, source, args[1], args[2])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().Bool("list", false, "List the defined (source, target) pairs")
	return cmd
}

// openMigrator connects to DATABASE_URL and returns a migrator over the
// embedded migrations, or over dir when set.
func openMigrator(ctx context.Context, dir string) (*db.Migrator, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}
	if cfg.DatabaseURL == "" {
		return nil, nil, fmt.Errorf("DATABASE_URL is required")
	}
	pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
	if err != nil {
		return nil, nil, err
	}
	if dir != "" {
		return db.NewDirMigrator(pool, dir), pool.Close, nil
	}
	return db.NewMigrator(pool, migrations.FS), pool.Close, nil
}

func migrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Run database migrations",
	}

	upCmd := &cobra.Command{
		Use:   "up",
		Short: "Apply pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()

			fmt.Fprintf(cmd.OutOrStdout(), "Running migrations on schema: %s\n", schema)
			count, err := migrator.Up(ctx, schema)
			if err != nil {
				return fmt.Errorf("migration failed: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Applied %d migration(s) successfully.\n", count)
			return nil
		},
	}
	upCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	upCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(upCmd)

	statusCmd := &cobra.Command{
		Use:   "status",
		Short: "Show migration status",
		RunE: func(cmd *cobra.Command, args []string) error {
			schema, _ := cmd.Flags().GetString("schema")
			dir, _ := cmd.Flags().GetString("dir")

			ctx := context.Background()
			migrator, closeFn, err := openMigrator(ctx, dir)
			if err != nil {
				return err
			}
			defer closeFn()

			statuses, err := migrator.Status(ctx, schema)
			if err != nil {
				return fmt.Errorf("failed to get migration status: %w", err)
			}

			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "Migration status for schema: %s\n", schema)
			fmt.Fprintf(w, "%-10s %-40s %-10s %s\n", "VERSION", "NAME", "STATUS", "APPLIED AT")
			fmt.Fprintln(w, "---------- ---------------------------------------- ---------- --------------------")
			for _, s := range statuses {
				status := "pending"
				appliedAt := ""
				if s.Applied {
					status = "applied"
					if s.AppliedAt != nil {
						appliedAt = s.AppliedAt.Format("2006-01-02 15:04:05")
					}
				}
				fmt.Fprintf(w, "%-10d %-40s %-10s %s\n", s.Version, s.Name, status, appliedAt)
			}
			return nil
		},
	}
	statusCmd.Flags().String("schema", db.DefaultSchema, "Target schema for migrations")
	statusCmd.Flags().String("dir", "", "Migrations directory (defaults to the embedded set)")
	cmd.AddCommand(statusCmd)

	return cmd
}

func seedCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Copy a terminology catalog into the reference tables",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			path, _ := cmd.Flags().GetString("catalog")
			if path == "" {
				path = cfg.CatalogPath
			}
			cat, err := catalog.Load(path)
			if err != nil {
				return err
			}
			if cfg.DatabaseURL == "" {
				return fmt.Errorf("DATABASE_URL is required")
			}

			ctx := context.Background()
			pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
			if err != nil {
				return err
			}
			defer pool.Close()

			stats, err := pgstore.New(pool).Seed(ctx, cat)
			if err != nil {
				return fmt.Errorf("seed failed: %w", err)
			}
			return printJSON(cmd.OutOrStdout(), stats)
		},
	}
	cmd.Flags().String("catalog", "", "Catalog file (defaults to CATALOG_PATH)")
	return cmd
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token <subject>",
		Short: "Issue an API bearer token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			scopes, _ := cmd.Flags().GetStringSlice("scope")
			ttl, _ := cmd.Flags().GetDuration("ttl")

			cfg, err := config.Load()
			if err != nil {
				return err
			}
			token, err := auth.IssueToken(auth.JWTConfig{
				Issuer:     cfg.AuthIssuer,
				Audience:   cfg.AuthAudience,
				SigningKey: []byte(cfg.AuthSigningKey),
			}, args[0], scopes, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}
	cmd.Flags().StringSlice("scope", []string{auth.ScopeCodesRead, auth.ScopeCrosswalksRun}, "Scopes granted to the token")
	cmd.Flags().Duration("ttl", 24*time.Hour, "Token lifetime")
	return cmd
}
