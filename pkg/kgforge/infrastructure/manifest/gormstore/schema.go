package gormstore

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TextMap is a JSON-serialized string map column. It carries the batch
// original-text mapping through a single column so the external contract
// (custom_id -> text) survives the relational backend unchanged.
type TextMap map[string]string

// Value implements driver.Valuer, serializing the map to JSON.
func (m TextMap) Value() (driver.Value, error) {
	if m == nil {
		return "{}", nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal text map: %w", err)
	}
	return string(data), nil
}

// Scan implements sql.Scanner, deserializing JSON from the column.
func (m *TextMap) Scan(value interface{}) error {
	if value == nil {
		*m = TextMap{}
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported scan type %T for text map", value)
	}
	if len(data) == 0 {
		*m = TextMap{}
		return nil
	}
	return json.Unmarshal(data, m)
}

// ExecutionEntity is a schema model used for persistence.
type ExecutionEntity struct {
	ExecutionID string `gorm:"primaryKey"`
	CreatedAt   time.Time
	LastUpdated time.Time
	Version     int
}

func (ExecutionEntity) TableName() string {
	return "kgforge_execution"
}

// ExecutionItemEntity records one processed item id under an execution.
// The composite primary key makes the id union naturally idempotent.
type ExecutionItemEntity struct {
	ExecutionID string `gorm:"primaryKey"`
	ItemID      string `gorm:"primaryKey"`
}

func (ExecutionItemEntity) TableName() string {
	return "kgforge_execution_item"
}

// BatchRegistrationEntity is one ordered batch summary in the execution
// manifest.
type BatchRegistrationEntity struct {
	Seq         uint   `gorm:"primaryKey;autoIncrement"`
	ExecutionID string `gorm:"index"`
	BatchID     string
	CreatedAt   time.Time
	NItems      int
}

func (BatchRegistrationEntity) TableName() string {
	return "kgforge_batch_registration"
}

// BatchEntity is a schema model used for persistence.
type BatchEntity struct {
	ExecutionID   string `gorm:"primaryKey"`
	LocalID       string `gorm:"primaryKey"`
	BatchID       string `gorm:"index"`
	FileID        string
	CreatedAt     time.Time
	Status        string
	NItems        int
	OriginalTexts TextMap `gorm:"type:text"`
	Retrieved     bool
	Task          string
	Model         string
	LastChecked   *time.Time
	OutputFileID  string
	ErrorFileID   string
	CompletedAt   *time.Time
	ResultsPath   string
	NResults      int
	Version       int
}

func (BatchEntity) TableName() string {
	return "kgforge_batch"
}
