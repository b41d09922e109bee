// Package forms submits category inquiry forms and checks staff auth
// status. A successful submission yields the chat token that both the
// chat synchronizer and the ticket board key on.
package forms

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goatkit/goatdesk/internal/gateway"
)

// Form categories with dedicated endpoints. Anything else goes through
// the generic forms endpoint.
const (
	FormTele       = "tele"
	FormFordon     = "fordon"
	FormForsakring = "forsakring"
)

var (
	// ErrMissingSender is returned when the submission has no name.
	ErrMissingSender = errors.New("forms: sender name is required")
	// ErrMissingMessage is returned when the submission has no message.
	ErrMissingMessage = errors.New("forms: message is required")
)

// Submission is one customer inquiry.
type Submission struct {
	FormType string
	Sender   string
	Email    string
	Message  string
	Fields   map[string]string // category-specific extras
}

// AuthStatus reports whether the current session belongs to a staff
// user.
type AuthStatus struct {
	IsLoggedIn bool   `json:"isLoggedIn"`
	FirstName  string `json:"firstName"`
}

// Client is a thin typed caller for the form endpoints.
type Client struct {
	gw      *gateway.Client
	timeout time.Duration
}

// NewClient creates a forms client.
func NewClient(gw *gateway.Client) *Client {
	return &Client{gw: gw, timeout: 15 * time.Second}
}

// Submit validates locally, posts the inquiry and returns the chat
// token the server issued for it.
func (c *Client) Submit(ctx context.Context, sub Submission) (string, error) {
	if strings.TrimSpace(sub.Sender) == "" {
		return "", ErrMissingSender
	}
	if strings.TrimSpace(sub.Message) == "" {
		return "", ErrMissingMessage
	}

	body := map[string]string{
		"sender":   sub.Sender,
		"email":    sub.Email,
		"message":  sub.Message,
		"formType": sub.FormType,
	}
	for k, v := range sub.Fields {
		body[k] = v
	}

	resp, err := c.gw.Post(ctx, endpointFor(sub.FormType), body, c.timeout)
	if err != nil {
		return "", fmt.Errorf("failed to submit %s form: %w", sub.FormType, err)
	}

	var out struct {
		ChatToken string `json:"chatToken"`
	}
	if err := resp.Decode(&out); err != nil {
		return "", err
	}
	if out.ChatToken == "" {
		return "", fmt.Errorf("form submission returned no chat token")
	}
	return out.ChatToken, nil
}

// CheckAuth fetches the staff auth status for the current session.
func (c *Client) CheckAuth(ctx context.Context) (AuthStatus, error) {
	resp, err := c.gw.Get(ctx, "/api/chat/auth-status", nil, c.timeout)
	if err != nil {
		return AuthStatus{}, fmt.Errorf("failed to check auth status: %w", err)
	}

	var status AuthStatus
	if err := resp.Decode(&status); err != nil {
		return AuthStatus{}, err
	}
	return status, nil
}

func endpointFor(formType string) string {
	switch formType {
	case FormTele:
		return "/api/tele"
	case FormFordon:
		return "/api/fordon"
	case FormForsakring:
		return "/api/forsakring"
	default:
		return "/api/forms"
	}
}
