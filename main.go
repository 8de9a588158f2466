package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/trackzero/chorenet/internal/config"
	"github.com/trackzero/chorenet/internal/database"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/server"
	"github.com/trackzero/chorenet/internal/services"
)

var Version = "dev"

func main() {
	rootCmd := &cobra.Command{
		Use:           "chorenet",
		Short:         "ChoreNet - household chore scheduling for Home Assistant",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE:          runServe,
	}

	rootCmd.AddCommand(serveCmd())
	rootCmd.AddCommand(statusCmd())
	rootCmd.AddCommand(migrateCmd())
	rootCmd.AddCommand(tokenCmd())

	if err := rootCmd.Execute(); err != nil {
		slog.Error("chorenet failed", "error", err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the scheduler, the event dispatcher and the HTTP API",
		RunE:  runServe,
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := database.Open(cfg.DatabasePath)
			if err != nil {
				return err
			}
			defer db.Close()

			applied, err := database.Apply(cmd.Context(), db)
			if err != nil {
				return fmt.Errorf("running migrations: %w", err)
			}
			for _, migration := range applied {
				fmt.Printf("applied %s\n", migration.Filename)
			}
			fmt.Println("database is up to date")
			return nil
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Manage API tokens",
	}

	create := &cobra.Command{
		Use:   "create",
		Short: "Create a token and print it once",
		RunE: func(cmd *cobra.Command, args []string) error {
			name, _ := cmd.Flags().GetString("name")
			scope, _ := cmd.Flags().GetString("scope")
			if scope != models.TokenScopeAPI && scope != models.TokenScopeICal {
				return fmt.Errorf("scope must be %q or %q", models.TokenScopeAPI, models.TokenScopeICal)
			}

			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			db, err := openDatabase(cfg)
			if err != nil {
				return err
			}
			defer db.Close()

			rawToken := repository.GenerateToken()
			_, err = repository.NewAPITokenRepository(db).Create(cmd.Context(), models.APIToken{
				Name:      name,
				TokenHash: repository.HashToken(rawToken),
				Scope:     scope,
			})
			if err != nil {
				return err
			}
			fmt.Println(rawToken)
			return nil
		},
	}
	create.Flags().String("name", "cli", "Token name")
	create.Flags().String("scope", models.TokenScopeAPI, "Token scope (api, ical)")

	cmd.AddCommand(create)
	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	choreService, err := newChoreService(ctx, db, cfg)
	if err != nil {
		return err
	}

	if _, err := choreService.Tick(ctx); err != nil {
		return fmt.Errorf("initial evaluation: %w", err)
	}

	if err := bootstrapToken(ctx, repository.NewAPITokenRepository(db), cfg.APIToken); err != nil {
		return err
	}

	var dispatcher services.Dispatcher = services.LogDispatcher{}
	if cfg.HAURL != "" {
		dispatcher = services.NewHomeAssistantDispatcher(ctx, services.HomeAssistantOptions{
			BaseURL: cfg.HAURL,
			Token:   cfg.HAToken,
		})
		slog.Info("dispatching events to home assistant", "url", cfg.HAURL)
	}
	notifier := services.NewNotifier(repository.NewOutboxRepository(db), dispatcher, cfg.DispatchInterval)

	go choreService.RunTicker(ctx, cfg.TickInterval)
	go notifier.Run(ctx, choreService.Notifications())

	srv := server.New(db, cfg, choreService)
	return srv.Start(ctx)
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("loading config: %w", err)
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()})))
	return cfg, nil
}

func openDatabase(cfg config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}
	return db, nil
}

// newChoreService restores stored state and applies the household file.
func newChoreService(ctx context.Context, db *sql.DB, cfg config.Config) (*services.ChoreService, error) {
	location, err := cfg.Location()
	if err != nil {
		return nil, err
	}

	choreService := services.NewChoreService(
		repository.NewPersonRepository(db),
		repository.NewChoreRepository(db),
		repository.NewInstanceRepository(db),
		repository.NewCompletionLogRepository(db),
		repository.NewOutboxRepository(db),
		repository.NewSettingsRepository(db),
		location,
	)
	if err := choreService.Load(ctx); err != nil {
		return nil, err
	}

	household, err := config.LoadHousehold(cfg.HouseholdFile)
	if err != nil {
		return nil, err
	}
	if household.Name != "" {
		if err := repository.NewSettingsRepository(db).Set(ctx, "household_name", household.Name); err != nil {
			return nil, err
		}
	}

	chores := make([]services.ChoreInput, 0, len(household.Chores))
	for _, spec := range household.Chores {
		chores = append(chores, choreInput(spec))
	}
	if err := choreService.ApplyHousehold(ctx, household.Persons(), chores); err != nil {
		return nil, err
	}
	return choreService, nil
}

func choreInput(spec config.ChoreSpec) services.ChoreInput {
	recurrence := spec.Recurrence
	if recurrence.Type == "" {
		recurrence.Type = models.RecurrenceDaily
	}
	return services.ChoreInput{
		ID:                   spec.ID,
		Name:                 spec.Name,
		Description:          spec.Description,
		AssignedPeople:       spec.AssignedPeople,
		OptionalPeople:       spec.OptionalPeople,
		TimePeriod:           spec.TimePeriod,
		Recurrence:           recurrence,
		Required:             spec.Required,
		Enabled:              spec.Enabled,
		CompletionAutomation: spec.CompletionAutomation,
	}
}

// bootstrapToken registers the configured API token so the API is reachable
// before any token has been created.
func bootstrapToken(ctx context.Context, tokenRepo repository.APITokenRepository, rawToken string) error {
	if rawToken == "" {
		return nil
	}
	tokenHash := repository.HashToken(rawToken)
	if _, err := tokenRepo.FindByTokenHash(ctx, tokenHash); err == nil {
		return nil
	} else if !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("looking up bootstrap token: %w", err)
	}
	_, err := tokenRepo.Create(ctx, models.APIToken{
		Name:      "bootstrap",
		TokenHash: tokenHash,
		Scope:     models.TokenScopeAPI,
	})
	if err != nil {
		return fmt.Errorf("creating bootstrap token: %w", err)
	}
	slog.Info("registered bootstrap api token")
	return nil
}
