package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/meilisearch/meilisearch-go"

	"coauthor/internal/event"
)

// MeiliIndex mirrors saved logs into MeiliSearch, one document per event.
// It is safe for concurrent use; the SDK client is.
type MeiliIndex struct {
	client meilisearch.ServiceManager
	index  meilisearch.IndexManager
}

var _ Indexer = (*MeiliIndex)(nil)

// NewMeiliIndex connects to MeiliSearch, ensures the index exists and
// applies its settings. Each settings task is awaited before returning.
func NewMeiliIndex(endpoint, apiKey, indexName string) (*MeiliIndex, error) {
	client := meilisearch.New(endpoint, meilisearch.WithAPIKey(apiKey))

	if !client.IsHealthy() {
		return nil, fmt.Errorf("meilisearch at %s is not healthy", endpoint)
	}

	_, err := client.CreateIndex(&meilisearch.IndexConfig{
		Uid:        indexName,
		PrimaryKey: "id",
	})
	if err != nil {
		return nil, fmt.Errorf("create index %q: %w", indexName, err)
	}

	index := client.Index(indexName)

	taskInfo, err := index.UpdateSearchableAttributes(&[]string{
		"text",
		"kind",
		"session_id",
	})
	if err != nil {
		return nil, fmt.Errorf("update searchable attributes: %w", err)
	}
	if err := waitForSettingsTask(client, taskInfo, "searchable attributes"); err != nil {
		return nil, err
	}

	filterAttrs := []interface{}{
		"session_id",
		"kind",
		"source",
		"engine",
		"timestamp_unix_ms",
	}
	taskInfo, err = index.UpdateFilterableAttributes(&filterAttrs)
	if err != nil {
		return nil, fmt.Errorf("update filterable attributes: %w", err)
	}
	if err := waitForSettingsTask(client, taskInfo, "filterable attributes"); err != nil {
		return nil, err
	}

	taskInfo, err = index.UpdateSortableAttributes(&[]string{
		"timestamp_unix_ms",
		"seq",
	})
	if err != nil {
		return nil, fmt.Errorf("update sortable attributes: %w", err)
	}
	if err := waitForSettingsTask(client, taskInfo, "sortable attributes"); err != nil {
		return nil, err
	}

	return &MeiliIndex{client: client, index: index}, nil
}

// waitForSettingsTask waits for a settings update task to complete.
func waitForSettingsTask(client meilisearch.ServiceManager, taskInfo *meilisearch.TaskInfo, name string) error {
	task, err := client.WaitForTask(taskInfo.TaskUID, 500*time.Millisecond)
	if err != nil {
		return fmt.Errorf("wait for %s: %w", name, err)
	}
	if task.Status == meilisearch.TaskStatusFailed {
		return fmt.Errorf("%s task failed: %s", name, task.Error.Message)
	}
	return nil
}

// IndexLog enqueues one document per event. MeiliSearch indexes them in
// the background; only enqueue failures are returned. Document IDs are
// stable, so indexing the same log twice overwrites.
func (m *MeiliIndex) IndexLog(ctx context.Context, sessionID string, events []event.Event) error {
	if len(events) == 0 {
		return nil
	}
	pk := "id"
	_, err := m.index.AddDocumentsWithContext(ctx, LogToDocuments(sessionID, events), &meilisearch.DocumentOptions{
		PrimaryKey: &pk,
	})
	if err != nil {
		return fmt.Errorf("index log %s: %w", sessionID, err)
	}
	return nil
}

// Search runs a full-text query over indexed events, newest first.
func (m *MeiliIndex) Search(ctx context.Context, query string, limit int64) ([]Document, error) {
	res, err := m.index.SearchWithContext(ctx, query, &meilisearch.SearchRequest{
		Limit: limit,
		Sort:  []string{"timestamp_unix_ms:desc"},
	})
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", query, err)
	}
	docs := make([]Document, 0, len(res.Hits))
	for _, hit := range res.Hits {
		doc, err := hitToDocument(hit)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	return docs, nil
}

// hitToDocument decodes a raw hit. Unknown fields such as _formatted are
// ignored.
func hitToDocument(hit meilisearch.Hit) (Document, error) {
	raw, err := json.Marshal(hit)
	if err != nil {
		return Document{}, fmt.Errorf("marshal hit: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return Document{}, fmt.Errorf("unmarshal hit: %w", err)
	}
	return doc, nil
}

// Close is a no-op; the SDK's HTTP client holds no resources.
func (m *MeiliIndex) Close() error {
	return nil
}
