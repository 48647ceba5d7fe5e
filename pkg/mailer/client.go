package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/nuqtalabs/loyalty-backend/pkg/config"
	pkgerrors "github.com/nuqtalabs/loyalty-backend/pkg/errors"
	"github.com/nuqtalabs/loyalty-backend/pkg/logger"
)

const sendPath = "/v3/mail/send"

var (
	errAPIKeyRequired = errors.New("mailer api key is required")
	errLoggerRequired = errors.New("mailer logger is required")
)

// Message is a single transactional email.
type Message struct {
	To       string
	ToName   string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender is the delivery surface consumed by the notification workers.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Client delivers transactional email through the SendGrid v3 API with
// centralized auth, logging, and error mapping.
type Client struct {
	httpClient *http.Client
	apiKey     string
	baseURL    string
	from       string
	logger     *logger.Logger
}

// NewClient initializes the mailer wrapper and validates the credentials.
func NewClient(ctx context.Context, cfg config.MailerConfig, logg *logger.Logger) (*Client, error) {
	if logg == nil {
		return nil, errLoggerRequired
	}
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, errAPIKeyRequired
	}
	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		return nil, errors.New("mailer base url is required")
	}
	from := strings.TrimSpace(cfg.DefaultFrom)
	if from == "" {
		return nil, errors.New("mailer from address is required")
	}

	c := &Client{
		httpClient: &http.Client{Timeout: cfg.SendTimeout},
		apiKey:     apiKey,
		baseURL:    baseURL,
		from:       from,
		logger:     logg,
	}

	logg.Info(ctx, "mailer client initialized")
	return c, nil
}

type sendRequest struct {
	Personalizations []personalization `json:"personalizations"`
	From             emailAddress      `json:"from"`
	Subject          string            `json:"subject"`
	Content          []content         `json:"content"`
}

type personalization struct {
	To []emailAddress `json:"to"`
}

type emailAddress struct {
	Email string `json:"email"`
	Name  string `json:"name,omitempty"`
}

type content struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

// Send delivers one message. Plain-text content is emitted before HTML as the
// API requires ascending specificity.
func (c *Client) Send(ctx context.Context, msg Message) error {
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "recipient address is required")
	}
	if strings.TrimSpace(msg.Subject) == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "subject is required")
	}

	body := sendRequest{
		Personalizations: []personalization{{To: []emailAddress{{Email: to, Name: msg.ToName}}}},
		From:             emailAddress{Email: c.from},
		Subject:          msg.Subject,
	}
	if msg.TextBody != "" {
		body.Content = append(body.Content, content{Type: "text/plain", Value: msg.TextBody})
	}
	if msg.HTMLBody != "" {
		body.Content = append(body.Content, content{Type: "text/html", Value: msg.HTMLBody})
	}
	if len(body.Content) == 0 {
		return pkgerrors.New(pkgerrors.CodeValidation, "message body is required")
	}

	payload, err := json.Marshal(body)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode mail payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+sendPath, bytes.NewReader(payload))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, err, "build mail request")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	c.log(ctx, "request", "send_mail", map[string]any{"to": to, "subject": msg.Subject})

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.log(ctx, "error", "send_mail", map[string]any{"error": err.Error()})
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mail send failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		detail := readErrorBody(resp.Body)
		c.log(ctx, "error", "send_mail", map[string]any{
			"error":  detail,
			"status": resp.StatusCode,
		})
		return mapMailerError(resp.StatusCode, detail)
	}

	c.log(ctx, "response", "send_mail", map[string]any{"status": resp.StatusCode})
	return nil
}

func (c *Client) log(ctx context.Context, phase, op string, fields map[string]any) {
	if c == nil || c.logger == nil {
		return
	}
	logFields := map[string]any{
		"operation": op,
		"phase":     phase,
	}
	for k, v := range fields {
		logFields[k] = c.redact(k, v)
	}
	ctx = c.logger.WithFields(ctx, logFields)
	switch phase {
	case "error":
		c.logger.Error(ctx, fmt.Sprintf("mailer %s", op), errors.New(fmt.Sprint(fields["error"])))
	default:
		c.logger.Info(ctx, fmt.Sprintf("mailer %s", phase))
	}
}

func (c *Client) redact(key string, value any) any {
	lower := strings.ToLower(key)
	for _, sensitive := range []string{"to", "email", "key", "secret", "token"} {
		if strings.Contains(lower, sensitive) {
			return "[REDACTED]"
		}
	}
	return value
}

func mapMailerError(status int, detail string) error {
	err := fmt.Errorf("mail api status %d: %s", status, detail)
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "mail send rejected")
	case status >= 400 && status < 500:
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "mail send rejected")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "mail send failed")
	}
}

func readErrorBody(r io.Reader) string {
	data, err := io.ReadAll(io.LimitReader(r, 2048))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}
