package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

const twilioAPIBase = "https://api.twilio.com"

// TwilioSender posts outbound SMS to the Twilio Messages REST endpoint.
type TwilioSender struct {
	sid     string
	token   string
	from    string
	baseURL string
	client  *http.Client
}

func NewTwilioSender(sid, token, from string) *TwilioSender {
	return &TwilioSender{
		sid:     sid,
		token:   token,
		from:    from,
		baseURL: twilioAPIBase,
		client:  &http.Client{},
	}
}

func (s *TwilioSender) SendSMS(ctx context.Context, to, body string) error {
	if s.sid == "" || s.token == "" || s.from == "" {
		return errors.New("twilio credentials not configured, set TWILIO_ACCOUNT_SID, TWILIO_AUTH_TOKEN and TWILIO_FROM_NUMBER")
	}

	form := url.Values{}
	form.Set("To", to)
	form.Set("From", s.from)
	form.Set("Body", body)

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json", s.baseURL, s.sid)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("build twilio request: %w", err)
	}
	req.SetBasicAuth(s.sid, s.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := s.client.Do(req)
	if err != nil {
		return fmt.Errorf("twilio request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusMultipleChoices {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("twilio responded %d: %s", resp.StatusCode, strings.TrimSpace(string(detail)))
	}
	return nil
}
