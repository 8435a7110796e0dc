package relay

import (
	"encoding/base64"
	"fmt"
	"regexp"
	"strings"
	"time"

	"sentinel-server-go/internal/platform/errors"
)

// Payment method colors used by the external channel embeds.
const (
	colorPayPal  = 0x0070ba
	colorBinance = 0xf3ba2f
)

// Receipt is the payment-receipt request body accepted by the relay.
type Receipt struct {
	Product       string         `json:"product"`
	Duration      string         `json:"duration"`
	DurationLabel string         `json:"durationLabel"`
	Price         float64        `json:"price"`
	Method        string         `json:"method"`
	Note          string         `json:"note,omitempty"`
	ClientInfo    map[string]any `json:"clientInfo,omitempty"`
	ImageDataURL  string         `json:"imageDataUrl"`
}

// Validate checks the five mandatory fields.
func (r Receipt) Validate() error {
	var missing []string
	if r.Product == "" {
		missing = append(missing, "product")
	}
	if r.Duration == "" {
		missing = append(missing, "duration")
	}
	if r.Price == 0 {
		missing = append(missing, "price")
	}
	if r.Method == "" {
		missing = append(missing, "method")
	}
	if r.ImageDataURL == "" {
		missing = append(missing, "imageDataUrl")
	}
	if len(missing) > 0 {
		return errors.New(errors.KindValidation, "receipt.validate",
			"missing required fields: "+strings.Join(missing, ", "))
	}
	return nil
}

// AmountText formats the price the way the channel displays it.
func (r Receipt) AmountText() string {
	return fmt.Sprintf("$%.2f", r.Price)
}

// MethodLabel maps the method enum to its display label.
func (r Receipt) MethodLabel() string {
	if r.Method == "paypal" {
		return "PayPal"
	}
	return "Binance"
}

func (r Receipt) methodColor() int {
	if r.Method == "paypal" {
		return colorPayPal
	}
	return colorBinance
}

func (r Receipt) durationText() string {
	if r.DurationLabel != "" {
		return r.DurationLabel
	}
	return r.Duration + " días"
}

// MetadataMessage builds the first-phase embed carrying the purchase data.
func (r Receipt) MetadataMessage(username string, at time.Time) Message {
	embed := Embed{
		Title: "💰 New Payment Receipt",
		Color: r.methodColor(),
		Footer: &Footer{
			Text: "Sentinel Payment System",
		},
	}
	embed.Stamp(at)

	embed.AddField("📦 Product", r.Product, true)
	embed.AddField("⏱️ Duration", r.durationText(), true)
	embed.AddField("💵 Amount", r.AmountText(), true)
	embed.AddField("💳 Payment Method", r.MethodLabel(), true)

	if r.Note != "" {
		embed.AddField("📝 Customer Note", r.Note, false)
	}
	if len(r.ClientInfo) > 0 {
		embed.AddField("🌐 Client Info", formatClientInfo(r.ClientInfo), false)
	}

	return Message{
		Embeds:   []Embed{embed},
		Username: username,
	}
}

// AttachmentMessage builds the second-phase embed accompanying the image file.
func (r Receipt) AttachmentMessage(at time.Time) Message {
	embed := Embed{
		Title: "📸 Payment Receipt",
		Description: fmt.Sprintf("Product: %s\nAmount: %s\nMethod: %s",
			r.Product, r.AmountText(), r.MethodLabel()),
		Color: r.methodColor(),
	}
	embed.Stamp(at)

	return Message{Embeds: []Embed{embed}}
}

func formatClientInfo(info map[string]any) string {
	str := func(key string) string {
		if v, ok := info[key]; ok {
			return fmt.Sprint(v)
		}
		return "unknown"
	}
	agent := str("userAgent")
	if len(agent) > 150 {
		agent = agent[:150]
	}
	return fmt.Sprintf("**User Agent:** %s\n**Language:** %s\n**Platform:** %s",
		agent, str("language"), str("platform"))
}

var dataURLPattern = regexp.MustCompile(`^data:(.+);base64,(.+)$`)

// ParseImageDataURL decodes a data:<mime>;base64,<payload> image.
func ParseImageDataURL(raw string) (mimeType string, data []byte, err error) {
	match := dataURLPattern.FindStringSubmatch(raw)
	if match == nil {
		return "", nil, errors.New(errors.KindValidation, "receipt.parse_image",
			"image data url does not match data:<mime>;base64,<data>")
	}

	mimeType = match[1]
	if mimeType == "" {
		mimeType = "image/png"
	}

	data, decodeErr := base64.StdEncoding.DecodeString(match[2])
	if decodeErr != nil {
		return "", nil, errors.Wrap(errors.KindValidation, "receipt.parse_image",
			"malformed base64 image payload", decodeErr)
	}
	return mimeType, data, nil
}
