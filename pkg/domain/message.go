package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Performative is the communicative-act type of a message (FIPA-ACL).
type Performative string

const (
	PerformativeInform     Performative = "inform"
	PerformativeRequest    Performative = "request"
	PerformativeQuery      Performative = "query"
	PerformativePropose    Performative = "propose"
	PerformativeAccept     Performative = "accept"
	PerformativeReject     Performative = "reject"
	PerformativeConfirm    Performative = "confirm"
	PerformativeDisconfirm Performative = "disconfirm"
	PerformativeFailure    Performative = "failure"
	PerformativeAgree      Performative = "agree"
	PerformativeRefuse     Performative = "refuse"
)

// Valid reports whether p is one of the known performatives.
func (p Performative) Valid() bool {
	switch p {
	case PerformativeInform, PerformativeRequest, PerformativeQuery, PerformativePropose,
		PerformativeAccept, PerformativeReject, PerformativeConfirm, PerformativeDisconfirm,
		PerformativeFailure, PerformativeAgree, PerformativeRefuse:
		return true
	}
	return false
}

// UnmarshalText rejects unknown performatives.
func (p *Performative) UnmarshalText(text []byte) error {
	v := Performative(text)
	if !v.Valid() {
		return fmt.Errorf("unknown performative %q", string(text))
	}
	*p = v
	return nil
}

// Default envelope values.
const (
	DefaultProtocol = "fipa-request"
	DefaultLanguage = "json"
)

// Message is an agent communication envelope.
type Message struct {
	Performative   Performative   `json:"performative"`
	Sender         string         `json:"sender"`
	Receiver       string         `json:"receiver"`
	Content        any            `json:"content"`
	ConversationID string         `json:"conversation_id"`
	ReplyTo        string         `json:"reply_to,omitempty"`
	Protocol       string         `json:"protocol"`
	Language       string         `json:"language"`
	Ontology       string         `json:"ontology,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
	MessageID      string         `json:"message_id,omitempty"`
	Metadata       map[string]any `json:"metadata"`
}

// NewMessage builds an envelope with default protocol and language,
// the current UTC time, and a fresh message id.
func NewMessage(perf Performative, sender, receiver string, content any, conversationID string) Message {
	return Message{
		Performative:   perf,
		Sender:         sender,
		Receiver:       receiver,
		Content:        content,
		ConversationID: conversationID,
		Protocol:       DefaultProtocol,
		Language:       DefaultLanguage,
		Timestamp:      time.Now().UTC(),
		MessageID:      uuid.NewString(),
		Metadata:       make(map[string]any),
	}
}

// CreateReply builds a reply addressed to the original sender, in the same
// conversation and protocol.
func (m Message) CreateReply(perf Performative, content any, sender string) Message {
	reply := NewMessage(perf, sender, m.Sender, content, m.ConversationID)
	reply.ReplyTo = m.MessageID
	reply.Protocol = m.Protocol
	return reply
}

// Text returns the "text" field of a map content, if present.
func (m Message) Text() (string, bool) {
	content, ok := m.Content.(map[string]any)
	if !ok {
		return "", false
	}
	text, ok := content["text"].(string)
	return text, ok
}
