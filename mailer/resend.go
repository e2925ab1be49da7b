// Package mailer provides ready-made [authcore.Mailer] implementations.
package mailer

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"log"
	"net/http"
	"time"

	"github.com/mkarlsen/authcore"
)

// Resend delivers tokens through the Resend HTTP API
// (https://resend.com). The token is embedded in a link built from the
// configured URL templates.
type Resend struct {
	apiKey  string
	from    string
	client  *http.Client
	baseURL string

	// ConfirmURL and ResetURL are fmt templates with one %s verb that
	// receives the raw token.
	ConfirmURL string
	ResetURL   string
}

// NewResend creates a Resend mailer. apiKey and from must be non-empty.
func NewResend(apiKey, from string) (*Resend, error) {
	if apiKey == "" {
		return nil, errors.New("resend api key required")
	}
	if from == "" {
		return nil, errors.New("from address required")
	}

	return &Resend{
		apiKey: apiKey,
		from:   from,
		client: &http.Client{
			Timeout: 5 * time.Second,
		},
		baseURL: "https://api.resend.com",
	}, nil
}

type sendRequest struct {
	From    string   `json:"from"`
	To      []string `json:"to"`
	Subject string   `json:"subject"`
	HTML    string   `json:"html"`
}

// Send implements [authcore.Mailer].
func (m *Resend) Send(ctx context.Context, account authcore.Account, kind authcore.TokenKind, rawToken string) error {
	var subject, link string
	switch kind {
	case authcore.KindReset:
		subject = "Reset your password"
		link = fmt.Sprintf(m.ResetURL, rawToken)
	default:
		subject = "Confirm your email"
		link = fmt.Sprintf(m.ConfirmURL, rawToken)
	}

	body := sendRequest{
		From:    m.from,
		To:      []string{account.Email},
		Subject: subject,
		HTML: `<p>Hi ` + html.EscapeString(account.Name) + `,</p>` +
			`<p><a href="` + html.EscapeString(link) + `">` + subject + `</a></p>`,
	}

	b, err := json.Marshal(body)
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL+"/emails", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+m.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := m.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		buf.ReadFrom(resp.Body)
		return errors.New("resend: " + resp.Status + ": " + buf.String())
	}

	return nil
}

// Log is a development [authcore.Mailer] that writes the token to the
// standard logger instead of sending mail.
type Log struct{}

// Send implements [authcore.Mailer].
func (Log) Send(_ context.Context, account authcore.Account, kind authcore.TokenKind, rawToken string) error {
	log.Printf("mailer: %s token for %s: %s", kind, account.Email, rawToken)
	return nil
}
