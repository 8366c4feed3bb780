package models

import "time"

// SequenceCounter is the persisted last-issued number of one scope.
type SequenceCounter struct {
	Scope     string    `json:"scope" bson:"scope"`
	Value     int64     `json:"value" bson:"seq"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// CounterInspection lets an operator spot drift before a resync.
type CounterInspection struct {
	Scope                   string `json:"scope"`
	StoredValue             int64  `json:"storedValue"`
	MaxObservedInDomainData int64  `json:"maxObservedInDomainData"`
	NextCodeWouldBe         string `json:"nextCodeWouldBe"`
}

type ResyncResult struct {
	Scope    string `json:"scope"`
	OldValue int64  `json:"oldValue"`
	NewValue int64  `json:"newValue"`
	NextCode string `json:"nextCode"`
}
