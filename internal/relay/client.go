package relay

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"

	"sentinel-server-go/internal/platform/errors"
)

// Client posts shaped messages to a webhook URL. It is stateless and safe for
// concurrent use.
type Client struct {
	http *http.Client
}

// NewClient builds a relay client. A nil httpClient falls back to the default.
func NewClient(httpClient *http.Client) *Client {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Client{http: httpClient}
}

// PostMessage delivers a JSON message payload. Non-2xx upstream responses are
// reported as transport errors.
func (c *Client) PostMessage(ctx context.Context, url string, msg Message) error {
	if url == "" {
		return errors.New(errors.KindConfig, "relay.post_message", "webhook url not configured")
	}

	body, err := msg.Encode()
	if err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_message", "encode payload", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_message", "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.do(req, "relay.post_message")
}

// PostFile delivers a binary attachment alongside a message, using the
// channel's multipart upload convention: a "file" part plus a "payload_json"
// part carrying the embeds.
func (c *Client) PostFile(
	ctx context.Context,
	url string,
	filename string,
	mimeType string,
	data []byte,
	msg Message,
) error {
	if url == "" {
		return errors.New(errors.KindConfig, "relay.post_file", "webhook url not configured")
	}

	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	header := textproto.MIMEHeader{}
	header.Set("Content-Disposition",
		fmt.Sprintf(`form-data; name="file"; filename=%q`, filename))
	header.Set("Content-Type", mimeType)
	part, err := writer.CreatePart(header)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_file", "create file part", err)
	}
	if _, err := part.Write(data); err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_file", "write file part", err)
	}

	payload, err := msg.Encode()
	if err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_file", "encode payload", err)
	}
	if err := writer.WriteField("payload_json", string(payload)); err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_file", "write payload part", err)
	}
	if err := writer.Close(); err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_file", "finalize form", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, &buf)
	if err != nil {
		return errors.Wrap(errors.KindTransport, "relay.post_file", "build request", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	return c.do(req, "relay.post_file")
}

func (c *Client) do(req *http.Request, op string) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return errors.Wrap(errors.KindTransport, op, "webhook request failed", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return errors.New(errors.KindTransport, op,
			fmt.Sprintf("webhook responded %d: %s", resp.StatusCode, string(detail)))
	}
	return nil
}
