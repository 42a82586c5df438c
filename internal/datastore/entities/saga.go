package entities

// SagaEntry is a row of the saga repository.
type SagaEntry struct {
	SagaID         string  `gorm:"column:sagaId;size:255;primaryKey"`
	SagaType       *string `gorm:"column:sagaType;size:255"`
	Revision       *string `gorm:"column:revision;size:255"`
	SerializedSaga []byte  `gorm:"column:serializedSaga"`
}

// TableName returns the default saga table name.
func (SagaEntry) TableName() string {
	return "SagaEntry"
}

// AssociationValueEntry links a saga to an association key/value pair.
type AssociationValueEntry struct {
	ID               int64   `gorm:"column:id;primaryKey;autoIncrement"`
	SagaID           string  `gorm:"column:sagaId;size:255;index:idx_association_saga"`
	AssociationKey   string  `gorm:"column:associationKey;size:255"`
	AssociationValue string  `gorm:"column:associationValue;size:255"`
	SagaType         *string `gorm:"column:sagaType;size:255"`
}

// TableName returns the default association table name.
func (AssociationValueEntry) TableName() string {
	return "AssociationValueEntry"
}
