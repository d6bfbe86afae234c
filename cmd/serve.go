package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/propsight/market-cli/internal/geo"
	"github.com/propsight/market-cli/internal/promote"
	"github.com/propsight/market-cli/internal/scrape"
	"github.com/propsight/market-cli/internal/verify"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the read-only data API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		if err := cfg.Validate("serve"); err != nil {
			return err
		}

		pool, err := initPool(ctx)
		if err != nil {
			return err
		}
		defer pool.Close()

		srv := &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
			Handler:      newRouter(pool),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 30 * time.Second,
		}

		errCh := make(chan error, 1)
		go func() {
			zap.L().Info("api listening", zap.Int("port", cfg.Server.Port))
			errCh <- srv.ListenAndServe()
		}()

		select {
		case <-ctx.Done():
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		case err := <-errCh:
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		}
	},
}

func newRouter(pool *pgxpool.Pool) http.Handler {
	canonicals := promote.NewPostgresStore(pool)
	runs := scrape.NewPostgresStore(pool)
	verifications := verify.NewPostgresStore(pool)
	locator := geo.NewLocator(pool)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet},
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Get("/api/canonical", func(w http.ResponseWriter, req *http.Request) {
		entities, err := canonicals.ListCanonical(req.Context(), promote.CanonicalFilter{
			EntityType: req.URL.Query().Get("entity_type"),
			Status:     promote.CanonicalStatus(req.URL.Query().Get("status")),
			Limit:      queryInt(req, "limit", 100),
		})
		respondList(w, entities, err)
	})

	r.Get("/api/canonical/{entityType}/{entityKey}", func(w http.ResponseWriter, req *http.Request) {
		c, err := canonicals.GetCanonical(req.Context(),
			chi.URLParam(req, "entityType"), chi.URLParam(req, "entityKey"))
		if err != nil {
			writeError(w, err)
			return
		}
		if c == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
			return
		}
		writeJSON(w, http.StatusOK, c)
	})

	r.Get("/api/runs", func(w http.ResponseWriter, req *http.Request) {
		list, err := runs.ListRuns(req.Context(), scrape.RunFilter{
			Scraper: req.URL.Query().Get("scraper"),
			Status:  scrape.RunStatus(req.URL.Query().Get("status")),
			Limit:   queryInt(req, "limit", 100),
		})
		respondList(w, list, err)
	})

	r.Get("/api/candidates", func(w http.ResponseWriter, req *http.Request) {
		list, err := canonicals.ListCandidates(req.Context(), promote.CandidateFilter{
			EntityType:   req.URL.Query().Get("entity_type"),
			ReviewStatus: promote.ReviewStatus(req.URL.Query().Get("status")),
			Limit:        queryInt(req, "limit", 100),
		})
		respondList(w, list, err)
	})

	r.Get("/api/verifications", func(w http.ResponseWriter, req *http.Request) {
		list, err := verifications.ListCandidates(req.Context(), verify.CandidateFilter{
			EntityType:   req.URL.Query().Get("entity_type"),
			ReviewStatus: verify.ReviewStatus(req.URL.Query().Get("status")),
			Limit:        queryInt(req, "limit", 100),
		})
		respondList(w, list, err)
	})

	r.Get("/api/districts/locate", func(w http.ResponseWriter, req *http.Request) {
		lat, latErr := strconv.ParseFloat(req.URL.Query().Get("lat"), 64)
		lng, lngErr := strconv.ParseFloat(req.URL.Query().Get("lng"), 64)
		if latErr != nil || lngErr != nil || !geo.ValidPoint(lat, lng) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "lat and lng are required"})
			return
		}
		relations, err := locator.NearestDistricts(req.Context(), lat, lng, queryInt(req, "top", 3))
		respondList(w, relations, err)
	})

	return r
}

func queryInt(req *http.Request, key string, def int) int {
	v, err := strconv.Atoi(req.URL.Query().Get(key))
	if err != nil {
		return def
	}
	return v
}

func respondList[T any](w http.ResponseWriter, list []T, err error) {
	if err != nil {
		writeError(w, err)
		return
	}
	if list == nil {
		list = []T{}
	}
	writeJSON(w, http.StatusOK, list)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Error("write response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, err error) {
	zap.L().Error("api request failed", zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
