package service

import (
	"cmp"
	"context"
	"slices"

	"golang.org/x/sync/errgroup"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
)

// SubResult is the outcome of one entity type's part of a composed search.
type SubResult[T any] struct {
	Page model.Page[T]
	Err  error
}

// UnifiedResult is a composed search across entity types. Types that were
// not requested are nil; types whose sub-query failed are listed in
// Degraded and contribute an empty page.
type UnifiedResult struct {
	Term          string                             `json:"term"`
	Tasks         *model.Page[model.TaskDocument]    `json:"tasks,omitempty"`
	Projects      *model.Page[model.ProjectDocument] `json:"projects,omitempty"`
	Users         *model.Page[model.UserDocument]    `json:"users,omitempty"`
	Teams         *model.Page[model.TeamDocument]    `json:"teams,omitempty"`
	TotalElements int64                              `json:"totalElements"`
	Degraded      []model.EntityType                 `json:"degraded,omitempty"`
}

// AutocompleteItem is one suggestion of a cross-type autocomplete.
type AutocompleteItem struct {
	Type     model.EntityType `json:"type"`
	ID       string           `json:"id"`
	Text     string           `json:"text"`
	Subtitle string           `json:"subtitle,omitempty"`
	Score    float64          `json:"score"`
}

const (
	opGlobal       = "global"
	opUnified      = "unified"
	opQuick        = "quick"
	opAutocomplete = "autocomplete"
)

// GlobalSearch searches every entity type.
func (s *QueryService) GlobalSearch(ctx context.Context, term string, userID int64, page model.PageRequest) *UnifiedResult {
	return s.compose(ctx, opGlobal, term, userID, model.AllEntityTypes(), s.normalize(page, s.opts.DefaultPageSize))
}

// UnifiedSearch searches the selected entity types; an empty selection
// means all of them.
func (s *QueryService) UnifiedSearch(ctx context.Context, term string, userID int64, types []model.EntityType, page model.PageRequest) *UnifiedResult {
	return s.compose(ctx, opUnified, term, userID, selectTypes(types), s.normalize(page, s.opts.DefaultPageSize))
}

// QuickSearch returns the first few hits of every entity type.
func (s *QueryService) QuickSearch(ctx context.Context, term string, userID int64) *UnifiedResult {
	page := model.PageRequest{Size: s.opts.QuickSearchSize}
	return s.compose(ctx, opQuick, term, userID, model.AllEntityTypes(), s.normalize(page, s.opts.QuickSearchSize))
}

// compose runs one sub-query per type concurrently. Sub-queries never
// fail the group, so a slow or broken type cannot cancel the others; each
// is bounded by the per-call timeout instead.
func (s *QueryService) compose(ctx context.Context, op, term string, userID int64, types []model.EntityType, page model.PageRequest) *UnifiedResult {
	var (
		tasks    SubResult[model.TaskDocument]
		projects SubResult[model.ProjectDocument]
		users    SubResult[model.UserDocument]
		teams    SubResult[model.TeamDocument]
	)

	g, gctx := errgroup.WithContext(ctx)
	for _, t := range types {
		switch t {
		case model.EntityTask:
			g.Go(func() error {
				tasks.Page, tasks.Err = runSearch(gctx, s, taskTarget, BuildQuery(t, term, userID), page)
				return nil
			})
		case model.EntityProject:
			g.Go(func() error {
				projects.Page, projects.Err = runSearch(gctx, s, projectTarget, BuildQuery(t, term, userID), page)
				return nil
			})
		case model.EntityUser:
			g.Go(func() error {
				users.Page, users.Err = runSearch(gctx, s, userTarget, BuildQuery(t, term, userID), page)
				return nil
			})
		case model.EntityTeam:
			g.Go(func() error {
				teams.Page, teams.Err = runSearch(gctx, s, teamTarget, BuildQuery(t, term, userID), page)
				return nil
			})
		}
	}
	_ = g.Wait()

	result := &UnifiedResult{Term: normalizeTerm(term)}
	for _, t := range types {
		switch t {
		case model.EntityTask:
			result.Tasks = resolve(s, result, op, t, tasks, page)
		case model.EntityProject:
			result.Projects = resolve(s, result, op, t, projects, page)
		case model.EntityUser:
			result.Users = resolve(s, result, op, t, users, page)
		case model.EntityTeam:
			result.Teams = resolve(s, result, op, t, teams, page)
		}
	}
	return result
}

// resolve turns a failed sub-query into an empty page and records the
// degradation.
func resolve[T any](s *QueryService, result *UnifiedResult, op string, t model.EntityType, sub SubResult[T], page model.PageRequest) *model.Page[T] {
	p := sub.Page
	if sub.Err != nil {
		s.metrics.DegradedSearches.WithLabelValues(op, t.Label()).Inc()
		s.logger.Warn("Sub-query failed, returning empty result for entity type",
			"operation", op,
			"entity_type", t.Label(),
			"error", sub.Err,
		)
		result.Degraded = append(result.Degraded, t)
		p = model.EmptyPage[T](page)
	}
	result.TotalElements += p.TotalElements
	return &p
}

// Autocomplete merges prefix matches of the selected types, best first,
// truncated to limit.
func (s *QueryService) Autocomplete(ctx context.Context, prefix string, userID int64, types []model.EntityType, limit int) []AutocompleteItem {
	prefix = normalizeTerm(prefix)
	if prefix == "" {
		return []AutocompleteItem{}
	}
	if limit <= 0 || limit > s.opts.AutocompleteSize {
		limit = s.opts.AutocompleteSize
	}
	page := model.PageRequest{Size: limit, Sort: model.SortRelevance}
	types = selectTypes(types)

	parts := make([][]AutocompleteItem, len(types))
	g, gctx := errgroup.WithContext(ctx)
	for i, t := range types {
		g.Go(func() error {
			var err error
			switch t {
			case model.EntityTask:
				parts[i], err = autocompleteType(gctx, s, taskTarget, prefix, userID, page, taskItem)
			case model.EntityProject:
				parts[i], err = autocompleteType(gctx, s, projectTarget, prefix, userID, page, projectItem)
			case model.EntityUser:
				parts[i], err = autocompleteType(gctx, s, userTarget, prefix, userID, page, userItem)
			case model.EntityTeam:
				parts[i], err = autocompleteType(gctx, s, teamTarget, prefix, userID, page, teamItem)
			}
			if err != nil {
				s.metrics.DegradedSearches.WithLabelValues(opAutocomplete, t.Label()).Inc()
				s.logger.Warn("Autocomplete sub-query failed", "entity_type", t.Label(), "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()

	items := slices.Concat(parts...)
	// Stable, so equal scores keep type order.
	slices.SortStableFunc(items, func(a, b AutocompleteItem) int {
		return cmp.Compare(b.Score, a.Score)
	})
	if len(items) > limit {
		items = items[:limit]
	}
	return items
}

func autocompleteType[T any](
	ctx context.Context,
	s *QueryService,
	target searchTarget[T],
	prefix string,
	userID int64,
	page model.PageRequest,
	toItem func(T) AutocompleteItem,
) ([]AutocompleteItem, error) {
	result, err := runSearch(ctx, s, target, BuildAutocompleteQuery(target.entityType, prefix, userID), page)
	if err != nil {
		return nil, err
	}
	items := make([]AutocompleteItem, 0, len(result.Content))
	for _, doc := range result.Content {
		items = append(items, toItem(doc))
	}
	return items, nil
}

func taskItem(d model.TaskDocument) AutocompleteItem {
	return AutocompleteItem{Type: model.EntityTask, ID: d.ID, Text: d.Title, Subtitle: d.ProjectName, Score: d.Score}
}

func projectItem(d model.ProjectDocument) AutocompleteItem {
	return AutocompleteItem{Type: model.EntityProject, ID: d.ID, Text: d.Name, Subtitle: d.OwnerName, Score: d.Score}
}

func userItem(d model.UserDocument) AutocompleteItem {
	text := d.FullName
	if text == "" {
		text = d.Username
	}
	return AutocompleteItem{Type: model.EntityUser, ID: d.ID, Text: text, Subtitle: d.Username, Score: d.Score}
}

func teamItem(d model.TeamDocument) AutocompleteItem {
	return AutocompleteItem{Type: model.EntityTeam, ID: d.ID, Text: d.Name, Subtitle: d.LeaderName, Score: d.Score}
}

// selectTypes drops duplicates and unknown types, keeping canonical order.
// An empty selection means every type.
func selectTypes(types []model.EntityType) []model.EntityType {
	if len(types) == 0 {
		return model.AllEntityTypes()
	}
	out := make([]model.EntityType, 0, len(types))
	for _, t := range model.AllEntityTypes() {
		if slices.Contains(types, t) {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return model.AllEntityTypes()
	}
	return out
}
