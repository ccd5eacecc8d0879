package notify

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
)

const testToken = "123456:TEST"

// fakeBotAPI serves the two Bot API methods the notifier uses
type fakeBotAPI struct {
	mu       sync.Mutex
	messages []string
	chatIDs  []string
	failSend bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	switch {
	case strings.HasSuffix(r.URL.Path, "/getMe"):
		w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"Library","username":"library_bot"}}`))
	case strings.HasSuffix(r.URL.Path, "/sendMessage"):
		if f.failSend {
			w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
			return
		}
		if err := r.ParseForm(); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		f.mu.Lock()
		f.messages = append(f.messages, r.PostForm.Get("text"))
		f.chatIDs = append(f.chatIDs, r.PostForm.Get("chat_id"))
		f.mu.Unlock()
		w.Write([]byte(`{"ok":true,"result":{"message_id":10,"date":0,"chat":{"id":42,"type":"private"}}}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func newTestNotifier(t *testing.T, fake *fakeBotAPI) *TelegramNotifier {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	n, err := NewTelegramNotifierWithEndpoint(testToken, server.URL+"/bot%s/%s", 42, zap.NewNop())
	if err != nil {
		t.Fatalf("Failed to create notifier: %v", err)
	}
	return n
}

func TestTelegramNotifier_Notify(t *testing.T) {
	fake := &fakeBotAPI{}
	n := newTestNotifier(t, fake)

	if err := n.Notify(context.Background(), "✅ No fine! Thank you for returning on time."); err != nil {
		t.Fatalf("Notify failed: %v", err)
	}

	if len(fake.messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(fake.messages))
	}
	if fake.messages[0] != "✅ No fine! Thank you for returning on time." {
		t.Errorf("Unexpected text %q", fake.messages[0])
	}
	if fake.chatIDs[0] != "42" {
		t.Errorf("Expected chat_id 42, got %q", fake.chatIDs[0])
	}
}

func TestTelegramNotifier_SendError(t *testing.T) {
	fake := &fakeBotAPI{failSend: true}
	n := newTestNotifier(t, fake)

	if err := n.Notify(context.Background(), "hello"); err == nil {
		t.Fatal("Expected error when the Bot API rejects the message")
	}
}

func TestTelegramNotifier_CanceledContext(t *testing.T) {
	fake := &fakeBotAPI{}
	n := newTestNotifier(t, fake)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := n.Notify(ctx, "hello"); err == nil {
		t.Fatal("Expected error for canceled context")
	}
	if len(fake.messages) != 0 {
		t.Errorf("Expected no message to be sent, got %d", len(fake.messages))
	}
}

func TestNewTelegramNotifier_BadToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"ok":false,"error_code":401,"description":"Unauthorized"}`))
	}))
	defer server.Close()

	if _, err := NewTelegramNotifierWithEndpoint("bad", server.URL+"/bot%s/%s", 42, zap.NewNop()); err == nil {
		t.Fatal("Expected error for rejected token")
	}
}

func TestNop_Notify(t *testing.T) {
	if err := (Nop{}).Notify(context.Background(), "ignored"); err != nil {
		t.Fatalf("Nop returned error: %v", err)
	}
}
