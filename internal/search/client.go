// Package search keeps an Elasticsearch index of user profiles for fuzzy
// people search. The document store stays the source of truth; the index
// is fed from user change events and can be rebuilt with Reindex.
package search

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
	"github.com/goccy/go-json"

	"github.com/cinesync/backend/internal/metrics"
)

// IndexUsers is the index holding one document per profile
const IndexUsers = "users"

// Client wraps the Elasticsearch client with the user index operations
type Client struct {
	es    *elasticsearch.Client
	index string
}

// NewClient connects to the cluster at url and verifies it answers
func NewClient(url string) (*Client, error) {
	es, err := elasticsearch.NewClient(elasticsearch.Config{Addresses: []string{url}})
	if err != nil {
		return nil, fmt.Errorf("failed to create Elasticsearch client: %w", err)
	}
	c := &Client{es: es, index: IndexUsers}
	if err := c.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to connect to Elasticsearch: %w", err)
	}
	return c, nil
}

// Ping checks the cluster is reachable
func (c *Client) Ping(ctx context.Context) error {
	res, err := c.es.Info(c.es.Info.WithContext(ctx))
	if err != nil {
		return err
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("info", res.Status(), res.Body)
	}
	return nil
}

// EnsureIndex creates the users index with its mapping when missing
func (c *Client) EnsureIndex(ctx context.Context) error {
	res, err := c.es.Indices.Exists([]string{c.index}, c.es.Indices.Exists.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to check if index exists: %w", err)
	}
	res.Body.Close()
	if res.StatusCode == 200 {
		return nil
	}

	text := map[string]any{"type": "text", "analyzer": "standard"}
	mapping := map[string]any{
		"mappings": map[string]any{
			"properties": map[string]any{
				"uid": map[string]any{"type": "keyword"},
				"username": map[string]any{
					"type":     "text",
					"analyzer": "standard",
					"fields": map[string]any{
						"keyword": map[string]any{"type": "keyword"},
					},
				},
				"nome":          text,
				"sobrenome":     text,
				"foto":          map[string]any{"type": "keyword", "index": false},
				"followerCount": map[string]any{"type": "integer"},
				"xp":            map[string]any{"type": "long"},
			},
		},
	}
	body, err := json.Marshal(mapping)
	if err != nil {
		return fmt.Errorf("failed to marshal mapping: %w", err)
	}

	res, err = c.es.Indices.Create(c.index,
		c.es.Indices.Create.WithBody(bytes.NewReader(body)),
		c.es.Indices.Create.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to create index: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("creating index", res.Status(), res.Body)
	}
	return nil
}

// IndexUser upserts one profile document
func (c *Client) IndexUser(ctx context.Context, doc UserDocument) (err error) {
	start := time.Now()
	defer func() { metrics.RecordSearchOperation("index", time.Since(start), err) }()

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal user document: %w", err)
	}
	res, err := c.es.Index(c.index, bytes.NewReader(body),
		c.es.Index.WithDocumentID(doc.UID),
		c.es.Index.WithContext(ctx),
	)
	if err != nil {
		return fmt.Errorf("failed to index user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return responseError("indexing user", res.Status(), res.Body)
	}
	return nil
}

// DeleteUser removes a profile document. A missing document is not an error.
func (c *Client) DeleteUser(ctx context.Context, uid string) (err error) {
	start := time.Now()
	defer func() { metrics.RecordSearchOperation("delete", time.Since(start), err) }()

	res, err := c.es.Delete(c.index, uid, c.es.Delete.WithContext(ctx))
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() && res.StatusCode != 404 {
		return responseError("deleting user", res.Status(), res.Body)
	}
	return nil
}

// SearchUsers returns the ids of the best matching profiles. Usernames are
// matched as prefixes and with typo tolerance; names only with tolerance.
func (c *Client) SearchUsers(ctx context.Context, query string, limit int) (_ []string, err error) {
	start := time.Now()
	defer func() { metrics.RecordSearchOperation("search", time.Since(start), err) }()

	q := map[string]any{
		"query": map[string]any{
			"bool": map[string]any{
				"should": []map[string]any{
					{"prefix": map[string]any{"username.keyword": map[string]any{"value": query, "boost": 3.0}}},
					{"match": map[string]any{"username": map[string]any{"query": query, "boost": 2.0, "fuzziness": "AUTO", "prefix_length": 1}}},
					{"match": map[string]any{"nome": map[string]any{"query": query, "boost": 1.5, "fuzziness": "AUTO"}}},
					{"match": map[string]any{"sobrenome": map[string]any{"query": query, "fuzziness": "AUTO"}}},
				},
				"minimum_should_match": 1,
			},
		},
		"sort": []map[string]any{
			{"_score": map[string]any{"order": "desc"}},
			{"followerCount": map[string]any{"order": "desc"}},
		},
		"size":    limit,
		"_source": false,
	}
	body, err := json.Marshal(q)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal search query: %w", err)
	}

	res, err := c.es.Search(
		c.es.Search.WithContext(ctx),
		c.es.Search.WithIndex(c.index),
		c.es.Search.WithBody(bytes.NewReader(body)),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to execute search: %w", err)
	}
	defer res.Body.Close()
	if res.IsError() {
		return nil, responseError("searching users", res.Status(), res.Body)
	}

	var resp struct {
		Hits struct {
			Hits []struct {
				ID string `json:"_id"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}
	ids := make([]string, 0, len(resp.Hits.Hits))
	for _, hit := range resp.Hits.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func responseError(op, status string, body io.Reader) error {
	var errResp map[string]any
	if err := json.NewDecoder(body).Decode(&errResp); err != nil {
		return fmt.Errorf("error response [%s]", status)
	}
	return fmt.Errorf("error %s: [%s] %v", op, status, errResp["error"])
}
