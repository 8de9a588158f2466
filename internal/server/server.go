package server

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/trackzero/chorenet/internal/config"
	"github.com/trackzero/chorenet/internal/handlers"
	"github.com/trackzero/chorenet/internal/middleware"
	"github.com/trackzero/chorenet/internal/models"
	"github.com/trackzero/chorenet/internal/repository"
	"github.com/trackzero/chorenet/internal/services"
)

type Server struct {
	router *chi.Mux
	config config.Config
}

func New(database *sql.DB, cfg config.Config, choreService *services.ChoreService) *Server {
	tokenRepo := repository.NewAPITokenRepository(database)
	settingsRepo := repository.NewSettingsRepository(database)

	apiHandler := handlers.NewAPIHandler(choreService, tokenRepo)
	icalHandler := handlers.NewICalHandler(choreService, tokenRepo, settingsRepo, cfg.HASensorToken)
	haHandler := handlers.NewHASensorHandler(choreService, cfg.HASensorToken)

	router := chi.NewRouter()

	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)
	router.Use(chimiddleware.Compress(5))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	router.Get("/ical", icalHandler.Feed)
	router.Get("/api/ha/sensors", haHandler.Sensors)

	router.Group(func(r chi.Router) {
		r.Use(middleware.APITokenAuth(tokenRepo, models.TokenScopeAPI))

		r.Get("/api/summary", apiHandler.Summary)
		r.Get("/api/people", apiHandler.ListPeople)
		r.Get("/api/people/{id}", apiHandler.GetPerson)
		r.Put("/api/people/{id}", apiHandler.PutPerson)
		r.Delete("/api/people/{id}", apiHandler.DeletePerson)

		r.Get("/api/chores", apiHandler.ListChores)
		r.Post("/api/chores", apiHandler.CreateChore)
		r.Get("/api/chores/{id}", apiHandler.GetChore)
		r.Delete("/api/chores/{id}", apiHandler.DeleteChore)

		r.Get("/api/instances", apiHandler.ListInstances)
		r.Get("/api/instances/{id}", apiHandler.GetInstance)
		r.Post("/api/instances/{id}/complete", apiHandler.CompleteInstance)
		r.Post("/api/instances/{id}/reset", apiHandler.ResetInstance)
		r.Get("/api/instances/{id}/log", apiHandler.InstanceLog)

		r.Get("/api/log", apiHandler.CompletionLog)

		r.Get("/api/tokens", apiHandler.ListTokens)
		r.Post("/api/tokens", apiHandler.CreateToken)
		r.Delete("/api/tokens/{id}", apiHandler.DeleteToken)
	})

	server := &Server{
		router: router,
		config: cfg,
	}

	return server
}

func (server *Server) Handler() http.Handler {
	return server.router
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (server *Server) Start(ctx context.Context) error {
	address := ":" + server.config.Port
	httpServer := &http.Server{Addr: address, Handler: server.router}

	errs := make(chan error, 1)
	go func() {
		slog.Info("starting server", "address", address)
		errs <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errs:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errs; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
