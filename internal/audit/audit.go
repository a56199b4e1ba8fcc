package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v9"
)

// Event is one entry in the session audit trail. Entries are append-only,
// mirroring the refresh-token table.
type Event struct {
	Type     string    `json:"type"`
	UserID   string    `json:"user_id"`
	Username string    `json:"username"`
	At       time.Time `json:"at"`
}

type Indexer struct {
	ES    *elasticsearch.Client
	Index string
}

func (i *Indexer) IndexEvent(ctx context.Context, ev Event) error {
	if i == nil || i.ES == nil {
		return nil
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(ev); err != nil {
		return err
	}

	res, err := i.ES.Index(
		i.Index,
		&buf,
		i.ES.Index.WithContext(ctx),
	)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("audit index error: %s", res.Status())
	}
	return nil
}

func (i *Indexer) Search(ctx context.Context, query string, from, size int) (int64, []Event, error) {
	if i == nil || i.ES == nil {
		return 0, nil, nil
	}

	body := map[string]any{
		"query": map[string]any{
			"multi_match": map[string]any{
				"query":     query,
				"fields":    []string{"username^2", "type"},
				"fuzziness": "AUTO",
			},
		},
		"from": from,
		"size": size,
		"sort": []map[string]any{{"at": map[string]any{"order": "desc"}}},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(body); err != nil {
		return 0, nil, err
	}

	res, err := i.ES.Search(
		i.ES.Search.WithContext(ctx),
		i.ES.Search.WithIndex(i.Index),
		i.ES.Search.WithBody(&buf),
	)
	if err != nil {
		return 0, nil, err
	}
	defer res.Body.Close()

	if res.IsError() {
		return 0, nil, fmt.Errorf("audit search error: %s", res.Status())
	}

	var r struct {
		Hits struct {
			Total struct {
				Value int64 `json:"value"`
			} `json:"total"`
			Hits []struct {
				Source Event `json:"_source"`
			} `json:"hits"`
		} `json:"hits"`
	}
	if err := json.NewDecoder(res.Body).Decode(&r); err != nil {
		return 0, nil, err
	}

	events := make([]Event, len(r.Hits.Hits))
	for idx, hit := range r.Hits.Hits {
		events[idx] = hit.Source
	}
	return r.Hits.Total.Value, events, nil
}

// Paginate converts 1-based page/size query params into an ES offset.
func Paginate(page, size int) (from, capped int) {
	if size <= 0 {
		size = 10
	}
	if size > 100 {
		size = 100
	}
	if page <= 0 {
		page = 1
	}
	return (page - 1) * size, size
}
