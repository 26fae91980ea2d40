package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// CallStatus is the provider's status vocabulary for an outbound call.
type CallStatus string

const (
	StatusQueued     CallStatus = "queued"
	StatusInitiated  CallStatus = "initiated"
	StatusRinging    CallStatus = "ringing"
	StatusInProgress CallStatus = "in-progress"
	StatusAnswered   CallStatus = "answered"
	StatusCompleted  CallStatus = "completed"
	StatusBusy       CallStatus = "busy"
	StatusFailed     CallStatus = "failed"
	StatusNoAnswer   CallStatus = "no-answer"
	StatusCanceled   CallStatus = "canceled"
)

// Terminal reports whether no further status transition is expected.
func (s CallStatus) Terminal() bool {
	switch s {
	case StatusAnswered, StatusCompleted, StatusBusy, StatusFailed,
		StatusNoAnswer, StatusCanceled:
		return true
	}
	return false
}

// CallRequest describes an outbound call to place.
type CallRequest struct {
	// To is the destination phone number in E.164 form.
	To string

	// From is the caller number owned by the account.
	From string

	// Script is the announcement read to the callee, rendered as a
	// provider voice-markup document.
	Script string
}

// Call is the provider's record of an outbound call.
type Call struct {
	SID       string     `json:"sid"`
	To        string     `json:"to"`
	From      string     `json:"from"`
	Status    CallStatus `json:"status"`
	Duration  string     `json:"duration,omitempty"`
	Direction string     `json:"direction,omitempty"`
	Price     string     `json:"price,omitempty"`
	PriceUnit string     `json:"price_unit,omitempty"`
}

// Error is a provider API error.
type Error struct {
	Code       int    `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

func (e *Error) Error() string {
	return fmt.Sprintf("telephony: %s (code=%d, http_status=%d)", e.Message, e.Code, e.HTTPStatus)
}

// CallService provides outbound call operations.
type CallService struct {
	client *Client
}

func newCallService(c *Client) *CallService {
	return &CallService{client: c}
}

// markup escapes text for the provider's XML voice document.
func markup(text string) string {
	r := strings.NewReplacer(
		"&", "&amp;", "<", "&lt;", ">", "&gt;",
	)
	return r.Replace(text)
}

// VoiceDocument renders a spoken announcement as the provider's TwiML-style
// call script.
func VoiceDocument(lines ...string) string {
	var sb strings.Builder
	sb.WriteString("<Response>")
	for i, line := range lines {
		if i > 0 {
			sb.WriteString(`<Pause length="2"/>`)
		}
		sb.WriteString("<Say>")
		sb.WriteString(markup(line))
		sb.WriteString("</Say>")
	}
	sb.WriteString("</Response>")
	return sb.String()
}

// Create places an outbound call and returns the provider's record.
func (s *CallService) Create(ctx context.Context, req *CallRequest) (*Call, error) {
	form := url.Values{}
	form.Set("To", req.To)
	form.Set("From", req.From)
	form.Set("Twiml", req.Script)

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls.json",
		s.client.config.baseURL, s.client.config.accountSID)
	var call Call
	if err := s.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// Get fetches the current record for a call.
func (s *CallService) Get(ctx context.Context, sid string) (*Call, error) {
	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json",
		s.client.config.baseURL, s.client.config.accountSID, sid)
	var call Call
	if err := s.do(ctx, http.MethodGet, endpoint, nil, &call); err != nil {
		return nil, err
	}
	return &call, nil
}

// Hangup ends an in-progress call by driving it to completed.
func (s *CallService) Hangup(ctx context.Context, sid string) (*Call, error) {
	form := url.Values{}
	form.Set("Status", string(StatusCompleted))

	endpoint := fmt.Sprintf("%s/Accounts/%s/Calls/%s.json",
		s.client.config.baseURL, s.client.config.accountSID, sid)
	var call Call
	if err := s.do(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()), &call); err != nil {
		return nil, err
	}
	return &call, nil
}

func (s *CallService) do(ctx context.Context, method, endpoint string, body io.Reader, out any) error {
	httpReq, err := http.NewRequestWithContext(ctx, method, endpoint, body)
	if err != nil {
		return fmt.Errorf("telephony: create request: %w", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}
	httpReq.SetBasicAuth(s.client.config.accountSID, s.client.config.authToken)

	resp, err := s.client.config.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("telephony: send request: %w", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("telephony: read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		apiErr := &Error{HTTPStatus: resp.StatusCode}
		if err := json.Unmarshal(data, apiErr); err != nil || apiErr.Message == "" {
			apiErr.Message = strings.TrimSpace(string(data))
		}
		return apiErr
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("telephony: decode response: %w", err)
	}
	return nil
}
