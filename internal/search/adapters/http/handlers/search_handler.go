package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/middleware"
	"github.com/taskflow-hq/taskflow/internal/platform/response"
	"github.com/taskflow-hq/taskflow/internal/search/app/service"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

const maxQueryLength = 200

// SearchHandler serves the query API. The requesting user is always the
// authenticated principal; no authorization input is read from the request.
type SearchHandler struct {
	query       *service.QueryService
	history     *service.HistoryService
	suggestions *service.SuggestionService
	emitter     *service.ChangeEmitter
	adminOnly   func(http.Handler) http.Handler
	logger      logger.Logger
}

func NewSearchHandler(
	query *service.QueryService,
	history *service.HistoryService,
	suggestions *service.SuggestionService,
	emitter *service.ChangeEmitter,
	adminOnly func(http.Handler) http.Handler,
	logger logger.Logger,
) *SearchHandler {
	if adminOnly == nil {
		adminOnly = func(next http.Handler) http.Handler { return next }
	}
	return &SearchHandler{
		query:       query,
		history:     history,
		suggestions: suggestions,
		emitter:     emitter,
		adminOnly:   adminOnly,
		logger:      logger,
	}
}

func (h *SearchHandler) RegisterRoutes(router *mux.Router) {
	r := router.PathPrefix("/search").Subrouter()

	r.HandleFunc("/tasks", h.SearchTasks).Methods("GET")
	r.HandleFunc("/projects", h.SearchProjects).Methods("GET")
	r.HandleFunc("/users", h.SearchUsers).Methods("GET")
	r.HandleFunc("/teams", h.SearchTeams).Methods("GET")

	r.HandleFunc("/global", h.GlobalSearch).Methods("GET")
	r.HandleFunc("/unified", h.UnifiedSearch).Methods("GET")
	r.HandleFunc("/quick", h.QuickSearch).Methods("GET")
	r.HandleFunc("/autocomplete", h.Autocomplete).Methods("GET")

	r.HandleFunc("/history", h.GetHistory).Methods("GET")
	r.HandleFunc("/history", h.ClearHistory).Methods("DELETE")
	r.HandleFunc("/history/{term}", h.RemoveHistoryItem).Methods("DELETE")
	r.HandleFunc("/popular", h.GetPopular).Methods("GET")
	r.HandleFunc("/suggestions", h.GetSuggestions).Methods("GET")

	r.Handle("/reindex/{entityType}", h.adminOnly(http.HandlerFunc(h.Reindex))).Methods("POST")
}

func (h *SearchHandler) SearchTasks(w http.ResponseWriter, r *http.Request) {
	userID, term, page, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	result, err := h.query.SearchTasks(r.Context(), term, userID, page)
	h.respondSearch(w, model.EntityTask, result, err)
}

func (h *SearchHandler) SearchProjects(w http.ResponseWriter, r *http.Request) {
	userID, term, page, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	result, err := h.query.SearchProjects(r.Context(), term, userID, page)
	h.respondSearch(w, model.EntityProject, result, err)
}

func (h *SearchHandler) SearchUsers(w http.ResponseWriter, r *http.Request) {
	userID, term, page, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	result, err := h.query.SearchUsers(r.Context(), term, userID, page)
	h.respondSearch(w, model.EntityUser, result, err)
}

func (h *SearchHandler) SearchTeams(w http.ResponseWriter, r *http.Request) {
	userID, term, page, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	result, err := h.query.SearchTeams(r.Context(), term, userID, page)
	h.respondSearch(w, model.EntityTeam, result, err)
}

func (h *SearchHandler) GlobalSearch(w http.ResponseWriter, r *http.Request) {
	userID, term, page, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	result := h.query.GlobalSearch(r.Context(), term, userID, page)
	h.history.RecordSearch(r.Context(), userID, term)
	response.OK(w, result)
}

func (h *SearchHandler) UnifiedSearch(w http.ResponseWriter, r *http.Request) {
	userID, term, page, ok := h.searchParams(w, r)
	if !ok {
		return
	}
	types, err := parseTypes(r.URL.Query().Get("types"))
	if err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("types", err.Error()))
		return
	}
	result := h.query.UnifiedSearch(r.Context(), term, userID, types, page)
	h.history.RecordSearch(r.Context(), userID, term)
	response.OK(w, result)
}

func (h *SearchHandler) QuickSearch(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	term, ok := termParam(w, r)
	if !ok {
		return
	}
	response.OK(w, h.query.QuickSearch(r.Context(), term, userID))
}

func (h *SearchHandler) Autocomplete(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	term, ok := termParam(w, r)
	if !ok {
		return
	}
	types, err := parseTypes(r.URL.Query().Get("type"))
	if err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("type", err.Error()))
		return
	}
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}

	items := h.query.Autocomplete(r.Context(), term, userID, types, limit)
	response.OK(w, map[string]interface{}{"items": items})
}

func (h *SearchHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", 0)
	if !ok {
		return
	}

	terms, err := h.history.GetSearchHistory(r.Context(), userID, limit)
	if err != nil {
		h.respondStoreError(w, "Failed to load search history", err)
		return
	}
	response.OK(w, map[string]interface{}{"terms": terms})
}

func (h *SearchHandler) ClearHistory(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	if err := h.history.ClearSearchHistory(r.Context(), userID); err != nil {
		h.respondStoreError(w, "Failed to clear search history", err)
		return
	}
	response.NoContent(w)
}

func (h *SearchHandler) RemoveHistoryItem(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	term := mux.Vars(r)["term"]
	if err := h.history.RemoveSearchHistoryItem(r.Context(), userID, term); err != nil {
		h.respondStoreError(w, "Failed to remove search history item", err)
		return
	}
	response.NoContent(w)
}

func (h *SearchHandler) GetPopular(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.user(w, r); !ok {
		return
	}
	limit, ok := intParam(w, r, "limit", 10)
	if !ok {
		return
	}

	terms, err := h.history.GetPopularSearchTerms(r.Context(), limit)
	if err != nil {
		h.respondStoreError(w, "Failed to load popular search terms", err)
		return
	}
	response.OK(w, map[string]interface{}{"terms": terms})
}

func (h *SearchHandler) GetSuggestions(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	term, ok := termParam(w, r)
	if !ok {
		return
	}
	limit, ok := intParam(w, r, "max", 10)
	if !ok {
		return
	}

	suggestions := h.suggestions.GetSuggestions(r.Context(), userID, term, r.URL.Query().Get("context"), limit)
	response.OK(w, map[string]interface{}{"suggestions": suggestions})
}

func (h *SearchHandler) Reindex(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.user(w, r); !ok {
		return
	}
	entityType, err := model.ParseEntityType(mux.Vars(r)["entityType"])
	if err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("entityType", err.Error()))
		return
	}

	event, err := h.emitter.PublishBulkReindex(r.Context(), entityType)
	if err != nil {
		h.logger.Error("Failed to request bulk reindex", "entity_type", entityType.Label(), "error", err)
		response.Error(w, response.ErrServiceUnavailable)
		return
	}
	response.Accepted(w, event)
}

// user returns the authenticated principal or writes 401.
func (h *SearchHandler) user(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, ok := middleware.ExtractUserID(r.Context())
	if !ok {
		response.Error(w, response.ErrUnauthorized)
		return 0, false
	}
	return userID, true
}

func (h *SearchHandler) searchParams(w http.ResponseWriter, r *http.Request) (int64, string, model.PageRequest, bool) {
	var page model.PageRequest
	userID, ok := h.user(w, r)
	if !ok {
		return 0, "", page, false
	}
	term, ok := termParam(w, r)
	if !ok {
		return 0, "", page, false
	}
	if page.Page, ok = intParam(w, r, "page", 0); !ok {
		return 0, "", page, false
	}
	if page.Size, ok = intParam(w, r, "size", 0); !ok {
		return 0, "", page, false
	}
	page.Sort = model.ParseSortOrder(r.URL.Query().Get("sort"))
	if err := h.query.CheckPage(page); err != nil {
		response.Error(w, response.ErrBadRequest.WithDetails("page", err.Error()))
		return 0, "", page, false
	}
	return userID, term, page, true
}

func (h *SearchHandler) respondSearch(w http.ResponseWriter, entityType model.EntityType, result interface{}, err error) {
	if err != nil {
		if errors.Is(err, service.ErrPageOutOfRange) {
			response.Error(w, response.ErrBadRequest.WithDetails("page", service.ErrPageOutOfRange.Error()))
			return
		}
		h.logger.Error("Search failed", "entity_type", entityType.Label(), "error", err)
		if errors.Is(err, service.ErrSearchUnavailable) {
			response.Error(w, response.ErrServiceUnavailable)
			return
		}
		response.Error(w, response.ErrInternal)
		return
	}
	response.OK(w, result)
}

func (h *SearchHandler) respondStoreError(w http.ResponseWriter, msg string, err error) {
	if errors.Is(err, service.ErrUserRequired) {
		response.Error(w, response.ErrUnauthorized)
		return
	}
	h.logger.Error(msg, "error", err)
	response.ErrorWithMessage(w, http.StatusServiceUnavailable, response.ErrServiceUnavailable.Code, msg)
}

func termParam(w http.ResponseWriter, r *http.Request) (string, bool) {
	term := strings.TrimSpace(r.URL.Query().Get("q"))
	if len([]rune(term)) > maxQueryLength {
		response.Error(w, response.ErrBadRequest.WithDetails("q", "query is too long"))
		return "", false
	}
	return term, true
}

func intParam(w http.ResponseWriter, r *http.Request, name string, fallback int) (int, bool) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, true
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		response.Error(w, response.ErrBadRequest.WithDetails(name, "must be a non-negative integer"))
		return 0, false
	}
	return n, true
}

// parseTypes reads a comma separated list of entity types. Empty means all.
func parseTypes(raw string) ([]model.EntityType, error) {
	var types []model.EntityType
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		t, err := model.ParseEntityType(part)
		if err != nil {
			return nil, err
		}
		types = append(types, t)
	}
	return types, nil
}
