package email

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dukerupert/loyalty/internal/notify"
)

func testMessage() notify.Message {
	return notify.Message{
		To:      "sara@example.com",
		Subject: "حصلت على نقاط إضافية!",
		HTML:    "<p>hello</p>",
		Text:    "hello",
		Tag:     "purchase",
	}
}

func TestSend(t *testing.T) {
	var received postmarkEmail
	var gotToken string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotToken = r.Header.Get("X-Postmark-Server-Token")
		if err := json.NewDecoder(r.Body).Decode(&received); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{"MessageID": "test-id"}`))
	}))
	defer server.Close()

	client := NewClient("test-token", "loyalty@example.com", WithEndpoint(server.URL))

	if err := client.Send(context.Background(), testMessage()); err != nil {
		t.Fatalf("send: %v", err)
	}

	if gotToken != "test-token" {
		t.Errorf("server token = %q, want %q", gotToken, "test-token")
	}
	if received.To != "sara@example.com" {
		t.Errorf("To = %q, want %q", received.To, "sara@example.com")
	}
	if received.From != "loyalty@example.com" {
		t.Errorf("From = %q, want %q", received.From, "loyalty@example.com")
	}
	if received.Subject != "حصلت على نقاط إضافية!" {
		t.Errorf("Subject = %q", received.Subject)
	}
	if received.HtmlBody != "<p>hello</p>" || received.TextBody != "hello" {
		t.Errorf("bodies = %q / %q", received.HtmlBody, received.TextBody)
	}
	if received.Tag != "purchase" {
		t.Errorf("Tag = %q, want purchase", received.Tag)
	}
}

func TestSendNotConfigured(t *testing.T) {
	client := NewClient("", "loyalty@example.com")

	if err := client.Send(context.Background(), testMessage()); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("err = %v, want ErrNotConfigured", err)
	}
}

func TestSendNoRecipient(t *testing.T) {
	client := NewClient("token", "loyalty@example.com")
	msg := testMessage()
	msg.To = ""

	if err := client.Send(context.Background(), msg); !errors.Is(err, ErrNoRecipient) {
		t.Fatalf("err = %v, want ErrNoRecipient", err)
	}
}

func TestSendAPIError(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		inactive bool
	}{
		{"inactive recipient", `{"ErrorCode":406,"Message":"You tried to send to a recipient that has been marked as inactive."}`, true},
		{"invalid sender", `{"ErrorCode":400,"Message":"Sender signature not defined"}`, false},
		{"empty body", ``, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(http.StatusUnprocessableEntity)
				w.Write([]byte(tt.body))
			}))
			defer server.Close()

			client := NewClient("test-token", "loyalty@example.com", WithEndpoint(server.URL))
			err := client.Send(context.Background(), testMessage())

			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				t.Fatalf("err = %v, want *APIError", err)
			}
			if apiErr.Status != http.StatusUnprocessableEntity {
				t.Errorf("status = %d", apiErr.Status)
			}
			if got := errors.Is(err, ErrInactiveRecipient); got != tt.inactive {
				t.Errorf("inactive = %v, want %v", got, tt.inactive)
			}
		})
	}
}

func TestSendHonorsContext(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
	}))
	defer server.Close()

	client := NewClient("test-token", "loyalty@example.com")
	client.httpClient = &http.Client{Transport: &rewriteTransport{base: http.DefaultTransport, target: server.URL}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := client.Send(ctx, testMessage()); err == nil {
		t.Fatal("expected timeout error")
	}
}

func TestConfigured(t *testing.T) {
	c1 := NewClient("token", "from@test.com")
	if !c1.Configured() {
		t.Error("expected Configured() = true")
	}

	c2 := NewClient("", "from@test.com")
	if c2.Configured() {
		t.Error("expected Configured() = false")
	}
}

// rewriteTransport redirects all requests to a test server URL.
type rewriteTransport struct {
	base   http.RoundTripper
	target string
}

func (t *rewriteTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req.URL.Scheme = "http"
	req.URL.Host = t.target[len("http://"):]
	return t.base.RoundTrip(req)
}

var _ notify.Transport = (*Client)(nil)
