package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/signalworks/listening-cli/internal/model"
	"github.com/signalworks/listening-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the REST server and campaign scheduler",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{env: env}

		// Background loops: scheduled campaign triggering and stuck-run
		// sweeping.
		go api.scheduleLoop(ctx)
		go api.sweepLoop(ctx)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: api.router(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let in-flight runs finish before the store closes.
		env.Runner.Wait()
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}

// apiServer is the REST surface over the store and runner.
type apiServer struct {
	env *pipelineEnv
}

func (s *apiServer) router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/campaigns", s.handleCreateCampaign)
		r.Get("/campaigns", s.handleListCampaigns)
		r.Get("/campaigns/{id}", s.handleGetCampaign)
		r.Delete("/campaigns/{id}", s.handleDeleteCampaign)
		r.Post("/campaigns/{id}/pause", s.handleSetStatus(model.CampaignStatusPaused))
		r.Post("/campaigns/{id}/resume", s.handleSetStatus(model.CampaignStatusActive))
		r.Post("/campaigns/{id}/runs", s.handleTriggerRun)
		r.Get("/campaigns/{id}/runs", s.handleListRuns)
		r.Get("/campaigns/{id}/analytics", s.handleListAnalytics)
		r.Get("/runs/{id}", s.handleGetRun)
		r.Get("/runs/{id}/posts", s.handleListRunPosts)
		r.Get("/runs/{id}/analytics", s.handleGetRunAnalytics)
	})
	return r
}

func (s *apiServer) handleCreateCampaign(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name      string                 `json:"name"`
		Query     string                 `json:"query"`
		Platforms []string               `json:"platforms"`
		Settings  model.CampaignSettings `json:"settings"`
		Schedule  model.Schedule         `json:"schedule"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Query == "" || len(req.Platforms) == 0 {
		writeError(w, http.StatusBadRequest, "query and platforms are required")
		return
	}

	campaign := &model.Campaign{
		Name:      req.Name,
		Query:     req.Query,
		Platforms: req.Platforms,
		Settings:  req.Settings,
		Schedule:  req.Schedule,
		Status:    model.CampaignStatusActive,
	}
	if err := s.env.Store.CreateCampaign(r.Context(), campaign); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, campaign)
}

func (s *apiServer) handleListCampaigns(w http.ResponseWriter, r *http.Request) {
	sweepStuck(r.Context(), s.env.Store)

	campaigns, err := s.env.Store.ListCampaigns(r.Context(), store.CampaignFilter{
		Status: model.CampaignStatus(r.URL.Query().Get("status")),
		Limit:  queryInt(r, "limit", 100),
		Offset: queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaigns)
}

func (s *apiServer) handleGetCampaign(w http.ResponseWriter, r *http.Request) {
	campaign, err := s.env.Store.GetCampaign(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, campaign)
}

func (s *apiServer) handleDeleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.env.Store.DeleteCampaign(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *apiServer) handleSetStatus(status model.CampaignStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if err := s.env.Store.UpdateCampaignStatus(r.Context(), id, status); err != nil {
			writeError(w, http.StatusNotFound, err.Error())
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": string(status)})
	}
}

func (s *apiServer) handleTriggerRun(w http.ResponseWriter, r *http.Request) {
	runID, err := s.env.Runner.TriggerRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID})
}

func (s *apiServer) handleListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.env.Store.ListRuns(r.Context(), store.RunFilter{
		CampaignID: chi.URLParam(r, "id"),
		Status:     model.RunStatus(r.URL.Query().Get("status")),
		Limit:      queryInt(r, "limit", 100),
		Offset:     queryInt(r, "offset", 0),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

func (s *apiServer) handleListAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.env.Store.ListAnalytics(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

func (s *apiServer) handleGetRun(w http.ResponseWriter, r *http.Request) {
	run, err := s.env.Store.GetRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *apiServer) handleListRunPosts(w http.ResponseWriter, r *http.Request) {
	posts, err := s.env.Store.ListPostsByRun(r.Context(), chi.URLParam(r, "id"),
		queryInt(r, "limit", 100), queryInt(r, "offset", 0))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, posts)
}

func (s *apiServer) handleGetRunAnalytics(w http.ResponseWriter, r *http.Request) {
	analytics, err := s.env.Store.GetAnalyticsByRun(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if analytics == nil {
		writeError(w, http.StatusNotFound, "no analytics for run")
		return
	}
	writeJSON(w, http.StatusOK, analytics)
}

// scheduleLoop triggers runs for active campaigns whose schedule interval
// has elapsed since their last run.
func (s *apiServer) scheduleLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		campaigns, err := s.env.Store.ListCampaigns(ctx, store.CampaignFilter{
			Status: model.CampaignStatusActive,
			Limit:  1000,
		})
		if err != nil {
			zap.L().Warn("scheduler: list campaigns failed", zap.Error(err))
			continue
		}

		now := time.Now().UTC()
		for _, c := range campaigns {
			interval := c.Schedule.Interval()
			if interval <= 0 {
				continue
			}
			if c.Stats.LastRunAt != nil && now.Sub(*c.Stats.LastRunAt) < interval {
				continue
			}
			runID, err := s.env.Runner.TriggerRun(ctx, c.ID)
			if err != nil {
				zap.L().Warn("scheduler: trigger failed",
					zap.String("campaign_id", c.ID),
					zap.Error(err),
				)
				continue
			}
			zap.L().Info("scheduler: triggered run",
				zap.String("campaign_id", c.ID),
				zap.String("run_id", runID),
			)
		}
	}
}

// sweepLoop periodically recovers runs orphaned by crashed orchestrators.
func (s *apiServer) sweepLoop(ctx context.Context) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sweepStuck(ctx, s.env.Store)
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return fallback
	}
	return n
}
