package models

// GORM models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Message is one logged exchange. The same shape is stored as a mongo
// document, so it carries bson tags alongside the gorm ones.
type Message struct {
	ID        uint      `json:"id" bson:"-" gorm:"primaryKey"`
	UserIP    string    `json:"user_ip" bson:"user_ip" gorm:"column:user_ip"`
	Datetime  string    `json:"datetime" bson:"datetime" gorm:"not null"`
	Message   string    `json:"message" bson:"message" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" bson:"-" gorm:"index"`
}

// Database interfaces for repository pattern. Messages are append-only, so
// there is no update or delete.
type MessageRepository interface {
	Create(message *Message) error
	Count() (int64, error)
}

// TableName methods for custom table names
func (Message) TableName() string { return "messages" }

// Model validation methods
func (m *Message) Validate() error {
	if m.Message == "" {
		return fmt.Errorf("message text is required")
	}
	if m.Datetime == "" {
		return fmt.Errorf("datetime is required")
	}
	return nil
}

// GORM hooks
func (m *Message) BeforeCreate(tx *gorm.DB) error {
	return m.Validate()
}
