// Package memory is an in-process SearchEngine that evaluates the typed
// query DSL directly. It backs local development and the service tests.
package memory

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
	"unicode"

	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

// Option configures an Engine.
type Option func(*Engine)

// WithManualRefresh keeps writes invisible to Search until Refresh is
// called, mimicking the refresh interval of a real engine.
func WithManualRefresh() Option {
	return func(e *Engine) { e.manualRefresh = true }
}

type document struct {
	raw    json.RawMessage
	fields map[string]any
}

type index struct {
	live    map[string]*document
	pending map[string]*document // nil value is a pending delete
}

type failure struct {
	err       error
	remaining int // <0 fails forever
}

// Engine is a thread-safe SearchEngine.
type Engine struct {
	mu            sync.RWMutex
	indices       map[model.EntityType]*index
	failures      map[model.EntityType]*failure
	latency       map[model.EntityType]time.Duration
	manualRefresh bool
}

var _ repository.SearchEngine = (*Engine)(nil)

// NewEngine creates an empty engine.
func NewEngine(opts ...Option) *Engine {
	e := &Engine{
		indices:  make(map[model.EntityType]*index),
		failures: make(map[model.EntityType]*failure),
		latency:  make(map[model.EntityType]time.Duration),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// FailIndex makes every operation on entityType return err until it is
// called again with a nil error.
func (e *Engine) FailIndex(entityType model.EntityType, err error) {
	e.FailIndexTimes(entityType, err, -1)
}

// FailIndexTimes makes the next n operations on entityType return err.
func (e *Engine) FailIndexTimes(entityType model.EntityType, err error, n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if err == nil || n == 0 {
		delete(e.failures, entityType)
		return
	}
	e.failures[entityType] = &failure{err: err, remaining: n}
}

// SetLatency delays every search on entityType by d, or until the context
// is done.
func (e *Engine) SetLatency(entityType model.EntityType, d time.Duration) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.latency[entityType] = d
}

// Document returns the visible source of a document.
func (e *Engine) Document(entityType model.EntityType, id string) (json.RawMessage, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	idx, ok := e.indices[entityType]
	if !ok {
		return nil, false
	}
	doc, ok := idx.live[id]
	if !ok {
		return nil, false
	}
	return doc.raw, true
}

// Count returns the number of visible documents of entityType.
func (e *Engine) Count(entityType model.EntityType) int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if idx, ok := e.indices[entityType]; ok {
		return len(idx.live)
	}
	return 0
}

// Upsert stores doc under id, replacing any previous version.
func (e *Engine) Upsert(ctx context.Context, entityType model.EntityType, id string, doc any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	d, err := newDocument(doc)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(entityType); err != nil {
		return err
	}
	e.write(entityType, id, d)
	return nil
}

// BulkUpsert stores every document. Documents that cannot be serialized are
// reported in the result and the rest are written.
func (e *Engine) BulkUpsert(ctx context.Context, entityType model.EntityType, docs []repository.BulkDocument) (repository.BulkResult, error) {
	result := repository.BulkResult{Failed: make(map[string]string)}
	if err := ctx.Err(); err != nil {
		return result, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(entityType); err != nil {
		return result, err
	}
	for _, bd := range docs {
		d, err := newDocument(bd.Body)
		if err != nil {
			result.Failed[bd.ID] = err.Error()
			continue
		}
		e.write(entityType, bd.ID, d)
		result.Indexed++
	}
	return result, nil
}

// Delete removes id. Deleting a missing document succeeds.
func (e *Engine) Delete(ctx context.Context, entityType model.EntityType, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.takeFailure(entityType); err != nil {
		return err
	}
	e.write(entityType, id, nil)
	return nil
}

// Refresh publishes pending writes of entityType.
func (e *Engine) Refresh(ctx context.Context, entityType model.EntityType) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	idx := e.index(entityType)
	for id, d := range idx.pending {
		if d == nil {
			delete(idx.live, id)
		} else {
			idx.live[id] = d
		}
	}
	idx.pending = make(map[string]*document)
	return nil
}

// Search evaluates req against the visible documents of entityType.
func (e *Engine) Search(ctx context.Context, entityType model.EntityType, req query.SearchRequest) (*model.RawHits, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	start := time.Now()

	e.mu.Lock()
	failErr := e.takeFailure(entityType)
	delay := e.latency[entityType]
	e.mu.Unlock()
	if failErr != nil {
		return nil, failErr
	}
	if delay > 0 {
		timer := time.NewTimer(delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	e.mu.RLock()
	type scored struct {
		id    string
		doc   *document
		score float64
	}
	var matched []scored
	if idx, ok := e.indices[entityType]; ok {
		for id, d := range idx.live {
			if ok, score := evaluate(req.Query, d.fields); ok {
				matched = append(matched, scored{id: id, doc: d, score: score})
			}
		}
	}
	e.mu.RUnlock()

	sorts := req.Sort
	if len(sorts) == 0 {
		sorts = []query.Sort{query.ByScore()}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		for _, s := range sorts {
			var c int
			if s.Field == "" || s.Field == "_score" {
				c = compareFloat(matched[i].score, matched[j].score)
			} else {
				c = compareValues(lookup(matched[i].doc.fields, s.Field), lookup(matched[j].doc.fields, s.Field))
			}
			if c == 0 {
				continue
			}
			if s.Desc {
				return c > 0
			}
			return c < 0
		}
		return matched[i].id < matched[j].id
	})

	hits := &model.RawHits{Total: int64(len(matched)), Hits: []model.RawHit{}}
	for i := req.From; i < len(matched) && i < req.From+req.Size; i++ {
		hits.Hits = append(hits.Hits, model.RawHit{
			ID:     matched[i].id,
			Score:  matched[i].score,
			Source: matched[i].doc.raw,
		})
	}
	hits.Took = time.Since(start).Milliseconds()
	return hits, nil
}

func (e *Engine) index(entityType model.EntityType) *index {
	idx, ok := e.indices[entityType]
	if !ok {
		idx = &index{live: make(map[string]*document), pending: make(map[string]*document)}
		e.indices[entityType] = idx
	}
	return idx
}

func (e *Engine) write(entityType model.EntityType, id string, d *document) {
	idx := e.index(entityType)
	if e.manualRefresh {
		idx.pending[id] = d
		return
	}
	if d == nil {
		delete(idx.live, id)
		return
	}
	idx.live[id] = d
}

// takeFailure must be called with the write lock held.
func (e *Engine) takeFailure(entityType model.EntityType) error {
	f, ok := e.failures[entityType]
	if !ok {
		return nil
	}
	if f.remaining > 0 {
		f.remaining--
		if f.remaining == 0 {
			delete(e.failures, entityType)
		}
	}
	return f.err
}

func newDocument(doc any) (*document, error) {
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("failed to encode document: %w", err)
	}
	var fields map[string]any
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, fmt.Errorf("document is not an object: %w", err)
	}
	return &document{raw: raw, fields: fields}, nil
}

// evaluate reports whether c matches fields and with which score.
func evaluate(c query.Clause, fields map[string]any) (bool, float64) {
	switch q := c.(type) {
	case query.MatchAll:
		return true, 1
	case query.MatchNone:
		return false, 0
	case query.Term:
		if anyEquals(lookup(fields, q.Field), q.Value) {
			return true, boost(q.Boost)
		}
	case query.Terms:
		v := lookup(fields, q.Field)
		for _, want := range q.Values {
			if anyEquals(v, want) {
				return true, 1
			}
		}
	case query.Match:
		return matchText(q.Query, q.Operator, []query.Field{{Name: q.Field, Boost: q.Boost}}, fields)
	case query.MultiMatch:
		return matchText(q.Query, q.Operator, q.Fields, fields)
	case query.MatchPhrasePrefix:
		phrase := strings.ToLower(strings.TrimSpace(q.Query))
		for _, text := range texts(lookup(fields, q.Field)) {
			if phrasePrefix(strings.ToLower(text), phrase) {
				return true, boost(q.Boost)
			}
		}
	case query.Prefix:
		for _, text := range texts(lookup(fields, q.Field)) {
			if strings.HasPrefix(text, q.Value) {
				return true, boost(q.Boost)
			}
		}
	case query.Exists:
		switch v := lookup(fields, q.Field).(type) {
		case nil:
		case []any:
			return len(v) > 0, 1
		default:
			return true, 1
		}
	case *query.Bool:
		return evaluateBool(q, fields)
	}
	return false, 0
}

func evaluateBool(b *query.Bool, fields map[string]any) (bool, float64) {
	var score float64
	for _, c := range b.Must {
		ok, s := evaluate(c, fields)
		if !ok {
			return false, 0
		}
		score += s
	}
	for _, c := range b.Filter {
		if ok, _ := evaluate(c, fields); !ok {
			return false, 0
		}
	}
	for _, c := range b.MustNot {
		if ok, _ := evaluate(c, fields); ok {
			return false, 0
		}
	}

	minShould := b.MinimumShouldMatch
	if minShould == 0 && len(b.Should) > 0 && len(b.Must) == 0 && len(b.Filter) == 0 {
		minShould = 1
	}
	matched := 0
	for _, c := range b.Should {
		if ok, s := evaluate(c, fields); ok {
			matched++
			score += s
		}
	}
	if matched < minShould {
		return false, 0
	}
	if len(b.Must) == 0 && len(b.Should) == 0 {
		score = 1
	}
	return true, score
}

func matchText(text, operator string, targets []query.Field, fields map[string]any) (bool, float64) {
	tokens := tokenize(text)
	if len(tokens) == 0 {
		return false, 0
	}
	var score float64
	hitTokens := 0
	for _, token := range tokens {
		tokenHit := false
		for _, f := range targets {
			for _, value := range texts(lookup(fields, f.Name)) {
				if strings.Contains(strings.ToLower(value), token) {
					score += boost(f.Boost)
					tokenHit = true
					break
				}
			}
		}
		if tokenHit {
			hitTokens++
		}
	}
	if strings.EqualFold(operator, "and") && hitTokens < len(tokens) {
		return false, 0
	}
	return hitTokens > 0, score
}

func tokenize(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '@' && r != '.'
	})
}

func phrasePrefix(text, phrase string) bool {
	if phrase == "" {
		return false
	}
	for i := 0; i < len(text); i++ {
		if i > 0 && isWordRune(rune(text[i-1])) {
			continue
		}
		if strings.HasPrefix(text[i:], phrase) {
			return true
		}
	}
	return false
}

func isWordRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r)
}

func boost(b float64) float64 {
	if b <= 0 {
		return 1
	}
	return b
}

// lookup resolves a field, ignoring keyword sub-field suffixes.
func lookup(fields map[string]any, name string) any {
	name = strings.TrimSuffix(name, ".keyword")
	return fields[name]
}

func texts(v any) []string {
	switch t := v.(type) {
	case string:
		return []string{t}
	case []any:
		out := make([]string, 0, len(t))
		for _, e := range t {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	case float64:
		return []string{fmt.Sprint(int64(t))}
	}
	return nil
}

func anyEquals(v any, want query.Value) bool {
	if arr, ok := v.([]any); ok {
		for _, e := range arr {
			if scalarEquals(e, want) {
				return true
			}
		}
		return false
	}
	return scalarEquals(v, want)
}

func scalarEquals(v any, want query.Value) bool {
	switch want.Kind() {
	case query.KindInt:
		switch t := v.(type) {
		case float64:
			return t == float64(want.Int64())
		case string:
			return t == want.String()
		}
	case query.KindString:
		switch t := v.(type) {
		case string:
			return strings.EqualFold(t, want.Str())
		case float64:
			return fmt.Sprint(int64(t)) == want.Str()
		}
	case query.KindBool:
		b, ok := v.(bool)
		return ok && b == want.BoolValue()
	}
	return false
}

func compareFloat(a, b float64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}

// compareValues orders missing values first so that descending sorts put
// them last.
func compareValues(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	switch x := a.(type) {
	case float64:
		if y, ok := b.(float64); ok {
			return compareFloat(x, y)
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0
			case !x:
				return -1
			}
			return 1
		}
	case string:
		if y, ok := b.(string); ok {
			tx, errX := time.Parse(time.RFC3339Nano, x)
			ty, errY := time.Parse(time.RFC3339Nano, y)
			if errX == nil && errY == nil {
				return tx.Compare(ty)
			}
			return strings.Compare(x, y)
		}
	}
	return 0
}
