package events

import (
	"context"
	"time"
)

// Level is the severity of a security event.
type Level string

const (
	LevelInfo    Level = "info"
	LevelWarning Level = "warning"
	LevelError   Level = "error"
	LevelSuccess Level = "success"
)

// Color returns the embed color for the level.
func (l Level) Color() int {
	switch l {
	case LevelWarning:
		return 0xf39c12
	case LevelError:
		return 0xe74c3c
	case LevelSuccess:
		return 0x2ecc71
	default:
		return 0x3498db
	}
}

// Emoji returns the title marker for the level.
func (l Level) Emoji() string {
	switch l {
	case LevelWarning:
		return "⚠️"
	case LevelError:
		return "🚨"
	case LevelSuccess:
		return "✅"
	default:
		return "ℹ️"
	}
}

// Valid reports whether the level is one of the known severities.
func (l Level) Valid() bool {
	switch l {
	case LevelInfo, LevelWarning, LevelError, LevelSuccess:
		return true
	}
	return false
}

// Event is one named security observation. Immutable once constructed.
type Event struct {
	Type      string         `json:"type"`
	Level     Level          `json:"level"`
	Data      map[string]any `json:"data,omitempty"`
	Page      string         `json:"page"`
	URL       string         `json:"url,omitempty"`
	SessionID string         `json:"sessionId,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// ClientInfo describes the reporting page's environment, attached to every
// forwarded message.
type ClientInfo struct {
	UserAgent string `json:"userAgent"`
	Language  string `json:"language"`
	Platform  string `json:"platform"`
	Screen    string `json:"screenResolution"`
	Timezone  string `json:"timezone"`
}

// Sink is the emit side of the dispatcher, implemented by *Logger. Detectors
// depend on this interface so tests can capture their events.
type Sink interface {
	Log(ctx context.Context, eventType string, data map[string]any, level Level)
}
