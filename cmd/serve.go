package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/adnord/ownership-cli/internal/model"
	"github.com/adnord/ownership-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the resolution status and trigger API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		r := chi.NewRouter()
		r.Use(middleware.RequestID)
		r.Use(middleware.Recoverer)
		r.Use(cors.Handler(cors.Options{
			AllowedMethods: []string{"GET", "POST"},
			AllowedHeaders: []string{"Accept", "Content-Type"},
		}))

		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/runs", func(w http.ResponseWriter, req *http.Request) {
			runs, err := env.Store.ListRuns(req.Context(), store.RunFilter{
				Status: model.RunStatus(req.URL.Query().Get("status")),
			})
			if err != nil {
				zap.L().Error("serve: list runs", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "list runs failed"})
				return
			}
			writeJSON(w, http.StatusOK, runs)
		})

		r.Get("/runs/{id}", func(w http.ResponseWriter, req *http.Request) {
			run, err := env.Store.GetRun(req.Context(), chi.URLParam(req, "id"))
			if err != nil {
				zap.L().Error("serve: get run", zap.Error(err))
				writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "get run failed"})
				return
			}
			if run == nil {
				writeJSON(w, http.StatusNotFound, map[string]string{"error": "run not found"})
				return
			}
			writeJSON(w, http.StatusOK, run)
		})

		// Recent runs from the in-memory ring buffer, cheap enough to poll.
		r.Get("/recent", func(w http.ResponseWriter, _ *http.Request) {
			writeJSON(w, http.StatusOK, env.Orchestrator.History().Recent())
		})

		r.Post("/resolve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				ID         string `json:"id"`
				Address    string `json:"address"`
				PostalCode string `json:"postal_code"`
				City       string `json:"city"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
				return
			}
			if body.Address == "" || body.PostalCode == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "address and postal_code are required"})
				return
			}

			prop := model.PropertyRecord{
				ID:         body.ID,
				Address:    body.Address,
				PostalCode: body.PostalCode,
				City:       body.City,
			}
			if prop.ID == "" {
				prop.ID = prop.Address
			}

			go func() {
				run, err := env.Orchestrator.RunProperty(ctx, prop)
				if err != nil {
					zap.L().Error("serve: resolution failed",
						zap.String("address", prop.Address), zap.Error(err))
					return
				}
				if run != nil {
					zap.L().Info("serve: resolution finished",
						zap.String("run_id", run.ID), zap.String("status", string(run.Status)))
				}
			}()

			writeJSON(w, http.StatusAccepted, map[string]string{
				"status":  "accepted",
				"address": prop.Address,
			})
		})

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
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
		return nil
	},
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
