package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	elasticsearch "github.com/elastic/go-elasticsearch/v9"
	"github.com/elastic/go-elasticsearch/v9/esapi"

	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/search/domain/query"
	"github.com/taskflow-hq/taskflow/internal/search/domain/repository"
)

// SearchRepository implements repository.SearchEngine on Elasticsearch.
type SearchRepository struct {
	es      *elasticsearch.Client
	prefix  string
	refresh string
	timeout time.Duration
	logger  logger.Logger
}

var _ repository.SearchEngine = (*SearchRepository)(nil)

// NewClient builds an Elasticsearch client from configuration.
func NewClient(cfg config.ElasticsearchConfig) (*elasticsearch.Client, error) {
	if len(cfg.Addresses) == 0 {
		return nil, fmt.Errorf("elasticsearch: no addresses configured")
	}
	client, err := elasticsearch.NewClient(elasticsearch.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
		APIKey:    cfg.APIKey,
		Transport: &http.Transport{
			Proxy:               http.ProxyFromEnvironment,
			DialContext:         (&net.Dialer{Timeout: 5 * time.Second, KeepAlive: 30 * time.Second}).DialContext,
			MaxIdleConns:        100,
			MaxIdleConnsPerHost: 10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 5 * time.Second,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("elasticsearch: create client: %w", err)
	}
	return client, nil
}

// NewSearchRepository wraps an existing client.
func NewSearchRepository(es *elasticsearch.Client, cfg config.ElasticsearchConfig, log logger.Logger) *SearchRepository {
	refresh := cfg.RefreshPolicy
	switch refresh {
	case "true", "wait_for":
	default:
		refresh = "false"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &SearchRepository{
		es:      es,
		prefix:  cfg.IndexPrefix,
		refresh: refresh,
		timeout: timeout,
		logger:  log,
	}
}

// IndexName returns the physical index of an entity type.
func (r *SearchRepository) IndexName(entityType model.EntityType) string {
	if r.prefix == "" {
		return entityType.IndexName()
	}
	return r.prefix + "_" + entityType.IndexName()
}

// Ping verifies connectivity with a lightweight Info call.
func (r *SearchRepository) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	res, err := r.es.Info(r.es.Info.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("elasticsearch: info call failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return fmt.Errorf("elasticsearch: info call returned error status: %s", res.Status())
	}
	return nil
}

// EnsureIndices creates every missing index with its mapping.
func (r *SearchRepository) EnsureIndices(ctx context.Context) error {
	for _, entityType := range model.AllEntityTypes() {
		if err := r.ensureIndex(ctx, entityType); err != nil {
			return fmt.Errorf("failed to create %s index: %w", entityType.IndexName(), err)
		}
	}
	return nil
}

func (r *SearchRepository) ensureIndex(ctx context.Context, entityType model.EntityType) error {
	name := r.IndexName(entityType)

	res, err := r.es.Indices.Exists([]string{name}, r.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == http.StatusOK {
		return nil
	}

	body, err := json.Marshal(Mapping(entityType))
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}
	res, err = r.es.Indices.Create(name,
		r.es.Indices.Create.WithBody(bytes.NewReader(body)),
		r.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()

	// Another replica may have created it in the meantime.
	if res.IsError() {
		respErr := decodeError(res)
		if strings.Contains(respErr.Error(), "resource_already_exists_exception") {
			return nil
		}
		return respErr
	}
	r.logger.Info("Created search index", "index", name, "schema_version", model.DocumentSchemaVersion)
	return nil
}

// Upsert indexes doc under id, replacing any previous version.
func (r *SearchRepository) Upsert(ctx context.Context, entityType model.EntityType, id string, doc any) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal %s document: %w", entityType.Label(), err)
	}

	res, err := r.es.Index(r.IndexName(entityType), bytes.NewReader(body),
		r.es.Index.WithDocumentID(id),
		r.es.Index.WithRefresh(r.refresh),
		r.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index %s %s: %w", entityType.Label(), id, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("error indexing %s %s: %w", entityType.Label(), id, decodeError(res))
	}
	return nil
}

type bulkAction struct {
	Index bulkMeta `json:"index"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkResponse struct {
	Errors bool `json:"errors"`
	Items  []map[string]struct {
		ID     string `json:"_id"`
		Status int    `json:"status"`
		Error  *struct {
			Type   string `json:"type"`
			Reason string `json:"reason"`
		} `json:"error,omitempty"`
	} `json:"items"`
}

// BulkUpsert writes all documents in one NDJSON request and reports
// per-document failures.
func (r *SearchRepository) BulkUpsert(ctx context.Context, entityType model.EntityType, docs []repository.BulkDocument) (repository.BulkResult, error) {
	result := repository.BulkResult{Failed: make(map[string]string)}
	if len(docs) == 0 {
		return result, nil
	}

	index := r.IndexName(entityType)
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	sent := 0
	for _, doc := range docs {
		source, err := json.Marshal(doc.Body)
		if err != nil {
			result.Failed[doc.ID] = err.Error()
			continue
		}
		if err := enc.Encode(bulkAction{Index: bulkMeta{Index: index, ID: doc.ID}}); err != nil {
			result.Failed[doc.ID] = err.Error()
			continue
		}
		buf.Write(source)
		buf.WriteByte('\n')
		sent++
	}
	if sent == 0 {
		return result, nil
	}

	res, err := r.es.Bulk(bytes.NewReader(buf.Bytes()),
		r.es.Bulk.WithRefresh(r.refresh),
		r.es.Bulk.WithContext(ctx),
	)
	if err != nil {
		return result, fmt.Errorf("bulk index failed: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return result, fmt.Errorf("bulk index returned error: %w", decodeError(res))
	}

	var parsed bulkResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return result, fmt.Errorf("failed to decode bulk response: %w", err)
	}
	for _, item := range parsed.Items {
		for _, outcome := range item {
			if outcome.Error != nil {
				result.Failed[outcome.ID] = outcome.Error.Type + ": " + outcome.Error.Reason
				continue
			}
			result.Indexed++
		}
	}
	return result, nil
}

// Delete removes a document. 404 is not an error.
func (r *SearchRepository) Delete(ctx context.Context, entityType model.EntityType, id string) error {
	res, err := r.es.Delete(r.IndexName(entityType), id,
		r.es.Delete.WithRefresh(r.refresh),
		r.es.Delete.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to delete %s %s: %w", entityType.Label(), id, err)
	}
	defer res.Body.Close()

	if res.IsError() && res.StatusCode != http.StatusNotFound {
		return fmt.Errorf("error deleting %s %s: %w", entityType.Label(), id, decodeError(res))
	}
	return nil
}

// Refresh makes all prior writes to the entity's index searchable.
func (r *SearchRepository) Refresh(ctx context.Context, entityType model.EntityType) error {
	res, err := r.es.Indices.Refresh(
		r.es.Indices.Refresh.WithIndex(r.IndexName(entityType)),
		r.es.Indices.Refresh.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to refresh %s: %w", r.IndexName(entityType), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return decodeError(res)
	}
	return nil
}

type searchResponse struct {
	Took int64 `json:"took"`
	Hits struct {
		Total json.RawMessage `json:"total"`
		Hits  []model.RawHit  `json:"hits"`
	} `json:"hits"`
}

// Search runs req against the entity's index.
func (r *SearchRepository) Search(ctx context.Context, entityType model.EntityType, req query.SearchRequest) (*model.RawHits, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("failed to encode search request: %w", err)
	}

	res, err := r.es.Search(
		r.es.Search.WithIndex(r.IndexName(entityType)),
		r.es.Search.WithBody(bytes.NewReader(body)),
		r.es.Search.WithContext(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("search on %s failed: %w", r.IndexName(entityType), err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, fmt.Errorf("search on %s: %w", r.IndexName(entityType), decodeError(res))
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	hits := parsed.Hits.Hits
	if hits == nil {
		hits = []model.RawHit{}
	}
	return &model.RawHits{
		Total: decodeTotal(parsed.Hits.Total),
		Hits:  hits,
		Took:  parsed.Took,
	}, nil
}

// decodeTotal accepts both the legacy numeric form and {"value": n}.
func decodeTotal(raw json.RawMessage) int64 {
	if len(raw) == 0 {
		return 0
	}
	var n int64
	if err := json.Unmarshal(raw, &n); err == nil {
		return n
	}
	var obj struct {
		Value int64 `json:"value"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Value
	}
	return 0
}

// ResponseError is a non-2xx answer from the cluster.
type ResponseError struct {
	Status int
	Type   string
	Reason string
}

func (e *ResponseError) Error() string {
	if e.Type == "" {
		return fmt.Sprintf("elasticsearch: status %d", e.Status)
	}
	return fmt.Sprintf("elasticsearch: status %d: %s: %s", e.Status, e.Type, e.Reason)
}

// Unwrap classifies client errors other than conflicts and throttling as
// rejections.
func (e *ResponseError) Unwrap() error {
	switch {
	case e.Status == http.StatusNotFound:
		return repository.ErrDocumentNotFound
	case e.Status == http.StatusConflict, e.Status == http.StatusTooManyRequests:
		return nil
	case e.Status >= 400 && e.Status < 500:
		return repository.ErrDocumentRejected
	}
	return nil
}

func decodeError(res *esapi.Response) error {
	respErr := &ResponseError{Status: res.StatusCode}
	data, err := io.ReadAll(res.Body)
	if err != nil || len(data) == 0 {
		return respErr
	}
	var envelope struct {
		Error json.RawMessage `json:"error"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil || len(envelope.Error) == 0 {
		return respErr
	}
	var detail struct {
		Type   string `json:"type"`
		Reason string `json:"reason"`
	}
	if err := json.Unmarshal(envelope.Error, &detail); err == nil {
		respErr.Type = detail.Type
		respErr.Reason = detail.Reason
		return respErr
	}
	var text string
	if err := json.Unmarshal(envelope.Error, &text); err == nil {
		respErr.Reason = text
	}
	return respErr
}
