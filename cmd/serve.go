package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/leads-cli/internal/contactsync"
	"github.com/sells-group/leads-cli/internal/fetcher"
	"github.com/sells-group/leads-cli/internal/model"
	"github.com/sells-group/leads-cli/internal/pipeline"
	"github.com/sells-group/leads-cli/internal/resilience"
	"github.com/sells-group/leads-cli/internal/store"
)

// maxRequestBytes bounds JSON request bodies.
const maxRequestBytes = 32 << 20

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API for imports, rescoring and sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signalContext(cmd)
		defer stop()

		env, err := initApp(ctx)
		if err != nil {
			return err
		}
		defer env.Close()

		api := &server{
			store:    env.Store,
			importer: env.Importer,
			syncer:   newSyncer(cfg, env.Store),
			breakers: env.Breakers,
			fetch:    fetchOptions("", ""),
		}

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(cfg.Server.AllowedOrigins),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
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

// server holds the handlers' dependencies.
type server struct {
	store    store.Store
	importer *pipeline.Importer
	syncer   *contactsync.Syncer
	breakers *resilience.Breakers
	fetch    fetcher.Options
}

func (s *server) routes(origins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Handle("/metrics", promhttp.Handler())

	r.Post("/import", s.handleImport)
	r.Post("/rescore", s.handleRescore)
	r.Post("/sync", s.handleSync)
	r.Get("/leads", s.handleListLeads)
	r.Post("/tags/{name}", s.handleApplyTag)
	return r
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	circuits := map[string]string{}
	if s.breakers != nil {
		for name, st := range s.breakers.States() {
			circuits[name] = st.String()
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "circuits": circuits})
}

// importRequest carries either inline rows or a file location.
type importRequest struct {
	Rows     []pipeline.Row `json:"rows"`
	Location string         `json:"location"`
	Format   string         `json:"format"`
	Sheet    string         `json:"sheet"`
}

func (s *server) handleImport(w http.ResponseWriter, r *http.Request) {
	var req importRequest
	if !decode(w, r, &req) {
		return
	}

	rows := req.Rows
	if req.Location != "" {
		if len(rows) > 0 {
			writeError(w, &model.InvalidInputError{Field: "location", Reason: "give rows or a location, not both"})
			return
		}
		opts := s.fetch
		opts.Format = fetcher.Format(req.Format)
		opts.Sheet = req.Sheet
		tbl, err := fetcher.ReadTable(r.Context(), req.Location, opts)
		if err != nil {
			writeError(w, &model.InvalidInputError{Field: "location", Value: req.Location, Reason: err.Error()})
			return
		}
		rows = pipeline.RowsFromTable(tbl)
	}
	if len(rows) == 0 {
		writeError(w, &model.InvalidInputError{Field: "rows", Reason: "no rows to import"})
		return
	}

	writeJSON(w, http.StatusOK, s.importer.ImportBatch(r.Context(), rows))
}

func (s *server) handleRescore(w http.ResponseWriter, r *http.Request) {
	var sel pipeline.Selection
	if !decode(w, r, &sel) {
		return
	}
	report, err := s.importer.Rescore(r.Context(), sel)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

type syncRequest struct {
	pipeline.Selection
	FullTags bool `json:"full_tags"`
	DryRun   bool `json:"dry_run"`
}

func (s *server) handleSync(w http.ResponseWriter, r *http.Request) {
	var req syncRequest
	if !decode(w, r, &req) {
		return
	}
	filter, err := req.Selection.Filter()
	if err != nil {
		writeError(w, err)
		return
	}
	opts := contactsync.Options{DryRun: req.DryRun}
	if !req.FullTags {
		opts.Tag = req.Tag
	}

	report, err := s.syncer.Sync(r.Context(), filter, opts)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (s *server) handleListLeads(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := store.LeadFilter{
		Search: q.Get("search"),
		Domain: model.NormalizeDomain(q.Get("domain")),
		Tag:    model.NormalizeTag(q.Get("tag")),
		Sort:   q.Get("sort"),
		Limit:  50,
	}
	for key, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		if v := q.Get(key); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n < 0 {
				writeError(w, &model.InvalidInputError{Field: key, Value: v, Reason: "must be a non-negative integer"})
				return
			}
			*dst = n
		}
	}

	leads, err := s.store.ListLeads(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	stats, err := s.store.LeadStats(r.Context(), filter)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads, "stats": stats})
}

func (s *server) handleApplyTag(w http.ResponseWriter, r *http.Request) {
	var sel pipeline.Selection
	if !decode(w, r, &sel) {
		return
	}
	name := chi.URLParam(r, "name")
	n, err := s.importer.ApplyTag(r.Context(), sel, name)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"tag": model.NormalizeTag(name), "tagged": n})
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("write response", zap.Error(err))
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case model.IsInvalidInput(err):
		status = http.StatusBadRequest
	case model.IsConfiguration(err):
		status = http.StatusServiceUnavailable
	case eris.Is(err, store.ErrNotFound):
		status = http.StatusNotFound
	default:
		zap.L().Error("request failed", zap.Error(err))
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
