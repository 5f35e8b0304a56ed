package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"sync/atomic"

	"golang.org/x/time/rate"

	"github.com/gnemet/gridquery"
	"github.com/gnemet/gridquery/database/pgloader"
	"github.com/gnemet/gridquery/internal/schema"
)

// server holds the grid built from the current catalog. load swaps it
// atomically so requests in flight finish on the previous one.
type server struct {
	catalogPath string
	dataPath    string
	lang        string
	pageSize    int
	db          *sql.DB
	limiter     *rate.Limiter
	logger      *slog.Logger

	current atomic.Pointer[grid]
}

type grid struct {
	catalog *gridquery.Catalog
	handler *gridquery.Handler[gridquery.Record]
	columns []gridquery.UIColumn
}

func (s *server) load(ctx context.Context) error {
	cat, err := gridquery.LoadCatalog(s.catalogPath)
	if err != nil {
		return err
	}
	var lov gridquery.LOVQuery
	if s.db != nil {
		lov = pgloader.LOV(ctx, s.db)
	}
	cols, err := gridquery.ColumnsFromCatalog(cat, s.lang, lov)
	if err != nil {
		return err
	}

	var h *gridquery.Handler[gridquery.Record]
	if s.dataPath != "" {
		rows, err := loadRows(s.dataPath)
		if err != nil {
			return err
		}
		fields, _ := pgloader.FieldsFor(cols)
		pgloader.Normalize(rows, fields)
		h = gridquery.NewHandler(cols, func(context.Context) ([]gridquery.Record, error) { return rows, nil })
	} else {
		fields, searchable := pgloader.FieldsFor(cols)
		loader := &pgloader.Loader{
			DB:         s.db,
			Table:      cat.Table(),
			Fields:     fields,
			Searchable: searchable,
			Logger:     s.logger,
		}
		if d := cat.Datagrid.Defaults; d.SortColumn != "" {
			loader.DefaultOrder = d.SortColumn + " " + d.SortDirection
		}
		h = gridquery.NewLoaderHandler(cols, loader)
	}
	h.Defaults = cat.Datagrid.Defaults
	if h.Defaults.PageSize == 0 {
		h.Defaults.PageSize = s.pageSize
	}
	h.Limiter = s.limiter
	h.Logger = s.logger

	s.current.Store(&grid{catalog: cat, handler: h, columns: gridquery.UIColumns(cols, cat)})
	return nil
}

func loadRows(path string) ([]gridquery.Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var rows []gridquery.Record
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("rows %s: %w", path, err)
	}
	return rows, nil
}

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		s.current.Load().handler.ServeHTTP(w, r)
	})
	mux.HandleFunc("GET /columns", func(w http.ResponseWriter, r *http.Request) {
		g := s.current.Load()
		writeJSON(w, map[string]any{
			"title":   g.catalog.Title,
			"columns": g.columns,
		})
	})
	mux.HandleFunc("GET /schema", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, schema.FilterData())
	})
	return mux
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("encode response", "error", err)
	}
}
