// Package audit indexes terminal notification records for later search.
package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"clinic-workers/internal/models"
)

type document struct {
	ID             string                 `json:"id"`
	RecipientKind  string                 `json:"recipientKind"`
	RecipientID    string                 `json:"recipientId"`
	TemplateKey    string                 `json:"templateKey"`
	Channel        string                 `json:"channel"`
	Status         string                 `json:"status"`
	CorrelationKey string                 `json:"correlationKey,omitempty"`
	ScheduledFor   *time.Time             `json:"scheduledFor,omitempty"`
	SentAt         *time.Time             `json:"sentAt,omitempty"`
	Error          string                 `json:"error,omitempty"`
	Meta           map[string]interface{} `json:"meta,omitempty"`
	IndexedAt      time.Time              `json:"indexedAt"`
}

// ElasticsearchSink writes one document per record, keyed by record id so
// repeated writes overwrite rather than duplicate.
type ElasticsearchSink struct {
	client *elasticsearch.Client
	index  string
}

func NewElasticsearchSink(client *elasticsearch.Client, index string) *ElasticsearchSink {
	return &ElasticsearchSink{client: client, index: index}
}

func (s *ElasticsearchSink) Record(ctx context.Context, rec *models.NotificationRecord) error {
	doc := document{
		ID:             rec.ID,
		RecipientKind:  string(rec.RecipientKind),
		RecipientID:    rec.RecipientID,
		TemplateKey:    rec.TemplateKey,
		Channel:        string(rec.Channel),
		Status:         string(rec.Status),
		CorrelationKey: rec.CorrelationKey(),
		ScheduledFor:   rec.ScheduledFor,
		SentAt:         rec.SentAt,
		Meta:           rec.Meta,
		IndexedAt:      time.Now().UTC(),
	}
	if rec.Error != nil {
		doc.Error = *rec.Error
	}

	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode audit document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      s.index,
		DocumentID: rec.ID,
		Body:       bytes.NewReader(body),
	}
	res, err := req.Do(ctx, s.client)
	if err != nil {
		return fmt.Errorf("index audit document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index audit document: %s", res.Status())
	}
	return nil
}
