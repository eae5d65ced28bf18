// Package admin serves the JSON admin API over the CRUD executor
package admin

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/conduit-lang/admin/internal/orm/crud"
	"github.com/conduit-lang/admin/internal/orm/errs"
	ormquery "github.com/conduit-lang/admin/internal/orm/query"
	"github.com/conduit-lang/admin/internal/orm/schema"
	"github.com/conduit-lang/admin/internal/web/middleware"
	"github.com/conduit-lang/admin/internal/web/query"
	"github.com/conduit-lang/admin/internal/web/request"
	"github.com/conduit-lang/admin/internal/web/response"
	"github.com/conduit-lang/admin/internal/web/router"
)

// Options configures the admin handler
type Options struct {
	Title  string
	Parser *request.Parser
	Logger *zap.Logger
	// Middleware wraps every admin route, after the built-in request ID,
	// logging and recovery middleware
	Middleware []middleware.Middleware
}

// Handler serves the admin API. Paths are relative to where it is mounted.
type Handler struct {
	exec   *crud.Executor
	title  string
	parser *request.Parser
	logger *zap.Logger
	router *router.Router
}

// New creates the admin handler and registers its routes
func New(exec *crud.Executor, opts Options) *Handler {
	if opts.Parser == nil {
		opts.Parser = request.NewParser()
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	h := &Handler{
		exec:   exec,
		title:  opts.Title,
		parser: opts.Parser,
		logger: opts.Logger,
		router: router.NewRouter(),
	}

	h.router.Use(middleware.RequestID(), middleware.Logging(h.logger), middleware.Recovery(h.logger))
	h.router.Use(opts.Middleware...)

	h.router.Get("entities", "/entities", h.listEntities)
	h.router.Get("entity", "/entities/{entity}", h.showEntity)
	h.router.Get("records", "/entities/{entity}/records", h.list)
	h.router.Post("records.create", "/entities/{entity}/records", h.create)
	h.router.Delete("records.delete", "/entities/{entity}/records", h.deleteMany)
	h.router.Get("record", "/entities/{entity}/records/{id}", h.read)
	h.router.Patch("record.update", "/entities/{entity}/records/{id}", h.update)
	h.router.Delete("record.delete", "/entities/{entity}/records/{id}", h.delete)
	h.router.Get("record.related", "/entities/{entity}/records/{id}/{relation}", h.related)
	h.router.Get("record.file", "/entities/{entity}/records/{id}/files/{field}", h.file)
	return h
}

// ServeHTTP implements http.Handler
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.router.ServeHTTP(w, r)
}

// Routes lists the admin routes
func (h *Handler) Routes() []router.RouteInfo {
	return h.router.Routes()
}

// IndexResponse is the body of GET /entities
type IndexResponse struct {
	Title    string          `json:"title,omitempty"`
	Entities []EntitySummary `json:"entities"`
}

// PageResponse is one page of records
type PageResponse struct {
	*crud.Page
	HasMore bool `json:"has_more"`
}

func (h *Handler) listEntities(w http.ResponseWriter, r *http.Request) {
	all := h.exec.Registry().All()
	resp := IndexResponse{Title: h.title, Entities: make([]EntitySummary, 0, len(all))}
	for _, meta := range all {
		resp.Entities = append(resp.Entities, summarize(meta))
	}
	h.write(w, r, http.StatusOK, resp)
}

func (h *Handler) showEntity(w http.ResponseWriter, r *http.Request) {
	meta, err := h.exec.Registry().Get(chi.URLParam(r, "entity"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, describe(meta))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	spec, err := query.ParseSpec(r, entity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	page, err := h.exec.List(r.Context(), entity, spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, PageResponse{Page: page, HasMore: page.HasMore()})
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	records, batch, err := h.parser.Records(w, r)
	if err != nil {
		h.badBody(w, err)
		return
	}

	if batch {
		created, err := h.exec.CreateMany(r.Context(), entity, records)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		h.write(w, r, http.StatusCreated, map[string]interface{}{"items": created})
		return
	}

	inst, err := h.exec.Create(r.Context(), entity, records[0])
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusCreated, inst)
}

func (h *Handler) read(w http.ResponseWriter, r *http.Request) {
	entity, id := chi.URLParam(r, "entity"), chi.URLParam(r, "id")
	inst, err := h.exec.Read(r.Context(), entity, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	// include resolves further relationships with their default page
	for _, name := range query.ParseInclude(r) {
		handle, ok := inst.Relations[name]
		if !ok {
			h.fail(w, r, &errs.InvalidQueryError{Entity: entity, Field: name, Reason: "unknown relationship"})
			return
		}
		if handle.Loaded {
			continue
		}
		res, err := h.exec.Related(r.Context(), entity, id, name, ormquery.QuerySpec{})
		if err != nil {
			h.fail(w, r, err)
			return
		}
		handle.Loaded, handle.Result = true, res
	}
	h.write(w, r, http.StatusOK, inst)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	entity, id := chi.URLParam(r, "entity"), chi.URLParam(r, "id")
	values, err := h.parser.Record(w, r)
	if err != nil {
		h.badBody(w, err)
		return
	}
	inst, err := h.exec.Update(r.Context(), entity, id, values)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.write(w, r, http.StatusOK, inst)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	if err := h.exec.Delete(r.Context(), chi.URLParam(r, "entity"), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// deleteMany deletes the records listed as {"keys": [...]}
func (h *Handler) deleteMany(w http.ResponseWriter, r *http.Request) {
	body, err := h.parser.Record(w, r)
	if err != nil {
		h.badBody(w, err)
		return
	}
	keys, ok := body["keys"].([]interface{})
	if !ok {
		response.RenderBadRequest(w, `body must be {"keys": [...]}`)
		return
	}
	if err := h.exec.DeleteMany(r.Context(), chi.URLParam(r, "entity"), keys); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) related(w http.ResponseWriter, r *http.Request) {
	entity := chi.URLParam(r, "entity")
	spec, err := query.ParseSpec(r, entity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	res, err := h.exec.Related(r.Context(), entity, chi.URLParam(r, "id"), chi.URLParam(r, "relation"), spec)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if res.Many != nil {
		h.write(w, r, http.StatusOK, PageResponse{Page: res.Many, HasMore: res.Many.HasMore()})
		return
	}
	h.write(w, r, http.StatusOK, map[string]interface{}{"item": res.One})
}

// file sends the content of one binary field as an attachment
func (h *Handler) file(w http.ResponseWriter, r *http.Request) {
	entity, id, name := chi.URLParam(r, "entity"), chi.URLParam(r, "id"), chi.URLParam(r, "field")
	inst, err := h.exec.Read(r.Context(), entity, id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	meta, err := h.exec.Registry().Get(entity)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	field, ok := meta.Field(name)
	if !ok || field.Type.Kind() != schema.KindBinary {
		response.RenderNotFound(w, fmt.Sprintf("%s has no binary field %q", entity, name))
		return
	}
	data, ok := inst.Get(field.Name).([]byte)
	if !ok || data == nil {
		response.RenderNotFound(w, fmt.Sprintf("%s %s has no %s", entity, id, field.Name))
		return
	}

	w.Header().Set("Content-Type", "application/octet-stream")
	w.Header().Set("Content-Length", strconv.Itoa(len(data)))
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", entity+"-"+id+"-"+field.Name))
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(data); err != nil {
		h.logger.Warn("write file",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
	}
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, status int, payload interface{}) {
	if err := response.JSON(w, status, payload); err != nil {
		h.logger.Warn("write response",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.Error(err))
	}
}

// fail renders an engine error. Server errors are logged since their details
// are not sent to the client.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if response.StatusFor(err) == http.StatusInternalServerError {
		h.logger.Error("admin request failed",
			zap.String("request_id", middleware.GetRequestID(r.Context())),
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err))
	}
	response.RenderEngineError(w, err)
}

func (h *Handler) badBody(w http.ResponseWriter, err error) {
	if errors.Is(err, request.ErrBodyTooLarge) {
		response.RenderError(w, http.StatusRequestEntityTooLarge, err)
		return
	}
	response.RenderBadRequest(w, err.Error())
}
