package entities

import "fmt"

// EventKey is the identity of an event in both the legacy and the new schema.
type EventKey struct {
	Type                string
	AggregateIdentifier string
	SequenceNumber      int64
}

func (k EventKey) String() string {
	return fmt.Sprintf("%s/%s/%d", k.Type, k.AggregateIdentifier, k.SequenceNumber)
}

// ConversionItem is the projection the cursor reader enumerates. RecordID is
// the legacy row id and only orders pagination.
type ConversionItem struct {
	EventKey
	RecordID int64
}

// LegacyEventEntry is a row of the legacy event table. Only the key, the
// timestamp and the serialized event are read by the migration.
type LegacyEventEntry struct {
	ID                  int64   `gorm:"column:id;primaryKey;autoIncrement"`
	Type                string  `gorm:"column:type;size:255;not null;uniqueIndex:idx_legacy_event_key,priority:1"`
	AggregateIdentifier string  `gorm:"column:aggregateIdentifier;size:255;not null;uniqueIndex:idx_legacy_event_key,priority:2"`
	SequenceNumber      int64   `gorm:"column:sequenceNumber;not null;uniqueIndex:idx_legacy_event_key,priority:3"`
	TimeStamp           string  `gorm:"column:timeStamp;size:255;not null"`
	EventIdentifier     *string `gorm:"column:eventIdentifier;size:255"`
	PayloadType         *string `gorm:"column:payloadType;size:255"`
	PayloadRevision     *string `gorm:"column:payloadRevision;size:255"`
	MetaData            []byte  `gorm:"column:metaData"`
	Payload             []byte  `gorm:"column:payload"`
	SerializedEvent     []byte  `gorm:"column:serializedEvent"`
}

// TableName returns the default legacy table name.
func (LegacyEventEntry) TableName() string {
	return "DomainEventEntry"
}

// Key returns the event identity.
func (e *LegacyEventEntry) Key() EventKey {
	return EventKey{Type: e.Type, AggregateIdentifier: e.AggregateIdentifier, SequenceNumber: e.SequenceNumber}
}

// EventEntry is a row of the new event table.
type EventEntry struct {
	Type                string  `gorm:"column:type;size:255;primaryKey"`
	AggregateIdentifier string  `gorm:"column:aggregateIdentifier;size:255;primaryKey"`
	SequenceNumber      int64   `gorm:"column:sequenceNumber;primaryKey;autoIncrement:false"`
	EventIdentifier     string  `gorm:"column:eventIdentifier;size:255;not null;uniqueIndex:idx_event_identifier"`
	TimeStamp           string  `gorm:"column:timeStamp;size:255;not null;index:idx_event_timestamp"`
	PayloadType         string  `gorm:"column:payloadType;size:255;not null"`
	PayloadRevision     *string `gorm:"column:payloadRevision;size:255"`
	MetaData            []byte  `gorm:"column:metaData"`
	Payload             []byte  `gorm:"column:payload"`
}

// TableName returns the default new event table name.
func (EventEntry) TableName() string {
	return "DomainEventEntry_new"
}

// Key returns the event identity.
func (e *EventEntry) Key() EventKey {
	return EventKey{Type: e.Type, AggregateIdentifier: e.AggregateIdentifier, SequenceNumber: e.SequenceNumber}
}
