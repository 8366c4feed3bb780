package record

import (
	"context"
	"sort"
	"sync"
	"time"

	"clinic-workers/internal/common/errors"
	"clinic-workers/internal/models"
)

// MemoryStore keeps records in process memory. Returned records are copies.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]*models.NotificationRecord
	now     func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		records: make(map[string]*models.NotificationRecord),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

func (s *MemoryStore) Create(_ context.Context, rec *models.NotificationRecord) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prepare(rec, s.now())
	s.records[rec.ID] = clone(rec)
	return rec.ID, nil
}

func (s *MemoryStore) Exists(_ context.Context, f Filter) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.records {
		if r.TemplateKey == f.TemplateKey &&
			r.RecipientKind == f.RecipientKind &&
			r.RecipientID == f.RecipientID &&
			r.CorrelationKey() == f.CorrelationKey {
			return true, nil
		}
	}
	return false, nil
}

func (s *MemoryStore) FindDue(_ context.Context, now time.Time, limit int) ([]*models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	due := make([]*models.NotificationRecord, 0)
	for _, r := range s.records {
		if r.Status == models.StatusQueued && r.ScheduledFor != nil && !r.ScheduledFor.After(now) {
			due = append(due, clone(r))
		}
	}
	sort.Slice(due, func(i, j int) bool {
		return due[i].ScheduledFor.Before(*due[j].ScheduledFor)
	})
	if limit = dueLimit(limit); len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (s *MemoryStore) MarkSent(_ context.Context, id string, channel models.Channel, sentAt time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Status.Terminal() {
		return false, nil
	}
	r.Status = models.StatusSent
	r.Channel = channel
	r.SentAt = &sentAt
	r.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) MarkFailed(_ context.Context, id string, errText string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	r, ok := s.records[id]
	if !ok || r.Status.Terminal() {
		return false, nil
	}
	r.Status = models.StatusFailed
	r.Error = &errText
	r.UpdatedAt = s.now()
	return true, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*models.NotificationRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, errors.NewRecordNotFoundError(id)
	}
	return clone(r), nil
}

func clone(r *models.NotificationRecord) *models.NotificationRecord {
	c := *r
	c.Meta = make(map[string]interface{}, len(r.Meta))
	for k, v := range r.Meta {
		c.Meta[k] = v
	}
	if r.ScheduledFor != nil {
		t := *r.ScheduledFor
		c.ScheduledFor = &t
	}
	if r.SentAt != nil {
		t := *r.SentAt
		c.SentAt = &t
	}
	if r.Error != nil {
		e := *r.Error
		c.Error = &e
	}
	return &c
}
