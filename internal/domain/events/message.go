package events

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/bytedance/sonic"

	"sentinel-server-go/internal/relay"
)

// buildMessage shapes an event into the relay payload: level-colored embed,
// uppercase type title, page/level description, one inline field per datum,
// client-info field and session footer.
func (l *Logger) buildMessage(evt Event) relay.Message {
	description := fmt.Sprintf("**Level:** %s\n**Page:** %s", evt.Level, evt.Page)
	if evt.Type == TypePageLoad {
		description += visitDescription(evt.Data)
	}

	embed := relay.Embed{
		Title:       fmt.Sprintf("%s %s", evt.Level.Emoji(), strings.ToUpper(evt.Type)),
		Description: description,
		Color:       evt.Level.Color(),
	}
	embed.Stamp(evt.Timestamp)

	if evt.SessionID != "" {
		session := evt.SessionID
		if len(session) > 8 {
			session = session[:8]
		}
		embed.Footer = &relay.Footer{
			Text: "Sentinel Security System | Session: " + session,
		}
	}

	keys := make([]string, 0, len(evt.Data))
	for key := range evt.Data {
		if key != "page" {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	for _, key := range keys {
		embed.AddField(titleCase(key), stringify(evt.Data[key]), true)
	}

	if l.client != nil {
		embed.AddField("🌐 Client Info", l.client.summary(), false)
	}

	return relay.Message{
		Embeds:   []relay.Embed{embed},
		Username: l.opts.Username,
	}
}

// visitDescription enriches page_load forwards with the visit counter and a
// humanized last-visit age.
func visitDescription(data map[string]any) string {
	count, ok := asInt(data["visitCount"])
	if !ok || count <= 0 {
		return ""
	}

	out := fmt.Sprintf("\n\n🔢 **Visit #%d**", count)
	if count > 1 {
		if raw, ok := data["lastVisit"].(string); ok {
			if last, err := time.Parse(time.RFC3339, raw); err == nil {
				out += "\n⏰ Last visit: " + humanizeSince(time.Since(last))
			}
		}
	}
	return out
}

func humanizeSince(d time.Duration) string {
	switch {
	case d >= 24*time.Hour:
		days := int(d.Hours() / 24)
		return fmt.Sprintf("%d day%s ago", days, plural(days))
	case d >= time.Hour:
		hours := int(d.Hours())
		return fmt.Sprintf("%d hour%s ago", hours, plural(hours))
	case d >= time.Minute:
		minutes := int(d.Minutes())
		return fmt.Sprintf("%d minute%s ago", minutes, plural(minutes))
	default:
		return "moments ago"
	}
}

func plural(n int) string {
	if n == 1 {
		return ""
	}
	return "s"
}

func asInt(v any) (int, bool) {
	switch value := v.(type) {
	case int:
		return value, true
	case int64:
		return int(value), true
	case float64:
		return int(value), true
	}
	return 0, false
}

func stringify(v any) string {
	switch value := v.(type) {
	case string:
		return value
	case nil:
		return "null"
	case bool, int, int64, float64:
		return fmt.Sprint(value)
	default:
		raw, err := sonic.Marshal(value)
		if err != nil {
			return fmt.Sprint(value)
		}
		return string(raw)
	}
}

func titleCase(key string) string {
	if key == "" {
		return key
	}
	return strings.ToUpper(key[:1]) + key[1:]
}

func (c ClientInfo) summary() string {
	agent := c.UserAgent
	if len(agent) > 100 {
		agent = agent[:100]
	}
	return fmt.Sprintf(
		"**User Agent:** %s\n**Platform:** %s\n**Language:** %s\n**Resolution:** %s\n**Timezone:** %s",
		agent, c.Platform, c.Language, c.Screen, c.Timezone)
}
