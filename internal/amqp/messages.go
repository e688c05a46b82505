package amqp

import (
	"encoding/json"
	"errors"
	"time"
)

// ConfigSavedMessage announces a committed configuration save. It carries
// no payload beyond the user and the collections touched; consumers read
// the store for anything else.
type ConfigSavedMessage struct {
	UserID      int64     `json:"user_id"`
	Partial     bool      `json:"partial"`
	Collections []string  `json:"collections"`
	Timestamp   time.Time `json:"timestamp"`
}

var errMissingUser = errors.New("message has no user_id")

// NewConfigSavedMessage stamps a message with the current time.
func NewConfigSavedMessage(userID int64, partial bool, collections []string) *ConfigSavedMessage {
	return &ConfigSavedMessage{
		UserID:      userID,
		Partial:     partial,
		Collections: collections,
		Timestamp:   time.Now(),
	}
}

// ToJSON converts the message to JSON bytes
func (m *ConfigSavedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// ConfigSavedMessageFromJSON decodes a message, rejecting ones without a user.
func ConfigSavedMessageFromJSON(data []byte) (*ConfigSavedMessage, error) {
	var msg ConfigSavedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.UserID <= 0 {
		return nil, errMissingUser
	}
	return &msg, nil
}
