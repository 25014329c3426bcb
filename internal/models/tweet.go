// Package models contains data structures for the application's domain models.
package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// TweetStatus tracks a scheduled tweet through its lifecycle.
type TweetStatus string

const (
	StatusPending TweetStatus = "pending"
	StatusPosted  TweetStatus = "posted"
	StatusFailed  TweetStatus = "failed"
)

// Valid reports whether s is one of the known lifecycle states.
func (s TweetStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPosted, StatusFailed:
		return true
	}
	return false
}

// StringList stores an ordered list of strings as a JSON text column so the
// same column type works on postgres and sqlite.
type StringList []string

func (l StringList) Value() (driver.Value, error) {
	if len(l) == 0 {
		return "[]", nil
	}
	b, err := json.Marshal([]string(l))
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (l *StringList) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("unsupported type %T for StringList", value)
	}
	if len(data) == 0 {
		*l = nil
		return nil
	}
	return json.Unmarshal(data, (*[]string)(l))
}

// Tweet represents a scheduled tweet.
type Tweet struct {
	ID          uint        `gorm:"primaryKey" json:"id"`
	Content     string      `gorm:"type:text;not null" json:"content"`
	ScheduledAt time.Time   `gorm:"not null;index" json:"scheduled_time"`
	Status      TweetStatus `gorm:"type:varchar(16);not null;default:'pending';index" json:"status"`
	ImagePaths  StringList  `gorm:"type:text" json:"image_paths"`
	// PostedTweetID is the id assigned by the platform after a successful publish.
	PostedTweetID string `gorm:"type:varchar(64)" json:"posted_tweet_id,omitempty"`
	// LastError records the most recent publish failure for operators.
	LastError string    `gorm:"type:text" json:"last_error,omitempty"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Posted reports whether the tweet has been published.
func (t *Tweet) Posted() bool {
	return t.Status == StatusPosted
}
