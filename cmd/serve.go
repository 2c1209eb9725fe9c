package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/brainscroll/paper-cli/internal/store"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the paper feed API",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: newFeedMux(st),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			srv.Shutdown(ctx)
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}
		return nil
	},
}

// newFeedMux builds the HTTP routes for the paper feed.
func newFeedMux(st store.Store) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	mux.HandleFunc("GET /papers", func(w http.ResponseWriter, r *http.Request) {
		filter := store.PaperFilter{
			Category: r.URL.Query().Get("category"),
		}
		if v := r.URL.Query().Get("processed"); v != "" {
			processed, err := strconv.ParseBool(v)
			if err != nil {
				http.Error(w, `{"error":"invalid processed value"}`, http.StatusBadRequest)
				return
			}
			filter.Processed = &processed
		}
		filter.Limit = queryInt(r, "limit")
		filter.Offset = queryInt(r, "offset")

		papers, err := st.ListPapers(r.Context(), filter)
		if err != nil {
			zap.L().Error("list papers failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"papers": papers,
			"count":  len(papers),
		})
	})

	mux.HandleFunc("GET /papers/{id}", func(w http.ResponseWriter, r *http.Request) {
		paper, err := st.GetPaper(r.Context(), r.PathValue("id"))
		if errors.Is(err, store.ErrNotFound) {
			http.Error(w, `{"error":"paper not found"}`, http.StatusNotFound)
			return
		}
		if err != nil {
			zap.L().Error("get paper failed", zap.Error(err))
			http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
			return
		}
		writeJSON(w, http.StatusOK, paper)
	})

	mux.HandleFunc("POST /papers/{id}/like", func(w http.ResponseWriter, r *http.Request) {
		handleIncrement(w, r, "likes_count", st.IncrementLikes)
	})

	mux.HandleFunc("POST /papers/{id}/view", func(w http.ResponseWriter, r *http.Request) {
		handleIncrement(w, r, "views_count", st.IncrementViews)
	})

	return mux
}

func handleIncrement(w http.ResponseWriter, r *http.Request, field string, fn func(context.Context, string) (int, error)) {
	id := r.PathValue("id")
	count, err := fn(r.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		http.Error(w, `{"error":"paper not found"}`, http.StatusNotFound)
		return
	}
	if err != nil {
		zap.L().Error("increment failed",
			zap.String("field", field),
			zap.String("arxiv_id", id),
			zap.Error(err),
		)
		http.Error(w, `{"error":"internal error"}`, http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"arxiv_id": id,
		field:      count,
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func queryInt(r *http.Request, key string) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
