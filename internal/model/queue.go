package model

import (
	"encoding/json"
	"time"
)

// QueueMessage is the body sent to the remote render worker.
type QueueMessage struct {
	JobID            string           `json:"jobId"`
	EpisodeID        string           `json:"episodeId"`
	EditPlanID       string           `json:"editPlanId"`
	ProcessingMethod ProcessingMethod `json:"processingMethod"`
	EditStructure    json.RawMessage  `json:"editStructure"`
	Timestamp        time.Time        `json:"timestamp"`
}

// ReceivedMessage is a delivered queue message awaiting acknowledgement.
type ReceivedMessage struct {
	MessageID     string            `json:"messageId"`
	ReceiptHandle string            `json:"receiptHandle"`
	Body          string            `json:"body"`
	Attributes    map[string]string `json:"attributes,omitempty"`
}

// Decode parses the message body as a QueueMessage.
func (m ReceivedMessage) Decode() (*QueueMessage, error) {
	var msg QueueMessage
	if err := json.Unmarshal([]byte(m.Body), &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
