package relay

import (
	"time"

	"github.com/bytedance/sonic"
)

// MaxFieldValueLen is the hard field-value limit imposed by the external
// messaging channel.
const MaxFieldValueLen = 1024

// Field is one short labeled value inside an embed.
type Field struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type Footer struct {
	Text string `json:"text"`
}

// Embed is the rich message block posted to the external channel.
type Embed struct {
	Title       string  `json:"title,omitempty"`
	Description string  `json:"description,omitempty"`
	Color       int     `json:"color,omitempty"`
	Fields      []Field `json:"fields,omitempty"`
	Timestamp   string  `json:"timestamp,omitempty"`
	Footer      *Footer `json:"footer,omitempty"`
}

// Message is the full webhook payload.
type Message struct {
	Embeds   []Embed `json:"embeds"`
	Username string  `json:"username,omitempty"`
}

// Trim enforces the channel's field-value limit: oversized values are cut to
// 1020 characters plus an ellipsis marker.
func Trim(value string) string {
	if len(value) > MaxFieldValueLen {
		return value[:MaxFieldValueLen-4] + "..."
	}
	return value
}

// AddField appends a field to the embed, trimming the value to the external
// limit.
func (e *Embed) AddField(name, value string, inline bool) {
	e.Fields = append(e.Fields, Field{
		Name:   name,
		Value:  Trim(value),
		Inline: inline,
	})
}

// Stamp sets the embed timestamp in the wire format.
func (e *Embed) Stamp(at time.Time) {
	e.Timestamp = at.UTC().Format(time.RFC3339)
}

// Encode serializes the message for transmission.
func (m Message) Encode() ([]byte, error) {
	return sonic.Marshal(m)
}
