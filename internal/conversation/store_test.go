package conversation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/clausebit/companion/internal/backend"
	"github.com/clausebit/companion/internal/clock"
	"github.com/clausebit/companion/internal/model"
	"github.com/clausebit/companion/pkg/logger"
)

var epoch = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

type fakeBackend struct {
	mu sync.Mutex

	recent     []model.RawConversation
	recentErr  error
	history    map[string]*model.HistoryResponse
	historyErr error
	reply      string
	chatErr    error

	recentCalls int
	chatCalls   []model.ChatRequest
	// chatHook runs inside Chat before it returns.
	chatHook func()
}

func (f *fakeBackend) RecentConversations(ctx context.Context, userID string) ([]model.RawConversation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.recentCalls++
	return f.recent, f.recentErr
}

func (f *fakeBackend) History(ctx context.Context, userID, sessionID string) (*model.HistoryResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.historyErr != nil {
		return nil, f.historyErr
	}
	resp, ok := f.history[sessionID]
	if !ok {
		return &model.HistoryResponse{}, nil
	}
	return resp, nil
}

func (f *fakeBackend) Chat(ctx context.Context, req *model.ChatRequest) (string, error) {
	f.mu.Lock()
	f.chatCalls = append(f.chatCalls, *req)
	hook := f.chatHook
	reply, err := f.reply, f.chatErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return reply, err
}

func raw(items ...string) []json.RawMessage {
	out := make([]json.RawMessage, len(items))
	for i, item := range items {
		out[i] = json.RawMessage(item)
	}
	return out
}

func newTestStore(b *fakeBackend) (*Store, *clock.FakeClock) {
	c := clock.Fake(epoch)
	s := NewStore(b, "user_1", Options{
		Clock:            c,
		Location:         time.UTC,
		ListRefreshDelay: 500 * time.Millisecond,
	}, logger.NewNop())
	return s, c
}

func TestNewStore_StartsWithGreeting(t *testing.T) {
	s, _ := newTestStore(&fakeBackend{})
	tr := s.Current()

	if tr.SessionID == "" {
		t.Fatal("SessionID is empty")
	}
	if len(tr.Messages) != 1 || tr.Messages[0].Content != Greeting || tr.Messages[0].Role != model.RoleAssistant {
		t.Fatalf("Messages = %+v, want greeting only", tr.Messages)
	}
}

func TestStartNewChat(t *testing.T) {
	s, _ := newTestStore(&fakeBackend{reply: "ok"})
	before := s.Current().SessionID

	if _, err := s.SendMessage(context.Background(), "hello"); err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}

	tr := s.StartNewChat()
	if tr.SessionID == before {
		t.Errorf("StartNewChat() SessionID = %q, want a new id", tr.SessionID)
	}
	if len(tr.Messages) != 1 || tr.Messages[0].Role != model.RoleAssistant || tr.Messages[0].Content != Greeting {
		t.Errorf("StartNewChat() Messages = %+v, want one greeting", tr.Messages)
	}
}

func TestStartNewChat_NeverReusesID(t *testing.T) {
	s := NewStore(&fakeBackend{}, "u", Options{
		Clock:        clock.Fake(epoch),
		NewSessionID: func() string { return "fixed" },
	}, logger.NewNop())

	first := s.Current().SessionID
	second := s.StartNewChat().SessionID
	if first == second {
		t.Errorf("session id reused: %q", first)
	}
}

func TestListConversations(t *testing.T) {
	b := &fakeBackend{recent: []model.RawConversation{
		{SessionID: "s1", Title: "Cookie policy", Timestamp: json.RawMessage(`{"_seconds": 1700000000}`)},
		{SessionID: "s2", Timestamp: json.RawMessage(`"2023-11-14T22:13:20Z"`)},
		{Timestamp: json.RawMessage(`"nonsense"`)},
	}}
	s, _ := newTestStore(b)

	list := s.ListConversations(context.Background())
	want := []model.ConversationSummary{
		{ID: "s1", SessionID: "s1", Title: "Cookie policy", Time: "10:13:20 PM"},
		{ID: "s2", SessionID: "s2", Title: "Chat 2", Time: "10:13:20 PM"},
		{ID: "", SessionID: "", Title: "New Chat", Time: UnknownTime},
	}
	if len(list) != len(want) {
		t.Fatalf("len = %d, want %d", len(list), len(want))
	}
	for i := range want {
		if list[i] != want[i] {
			t.Errorf("list[%d] = %+v, want %+v", i, list[i], want[i])
		}
	}
}

func TestListConversations_FailureKeepsPreviousList(t *testing.T) {
	b := &fakeBackend{recent: []model.RawConversation{{SessionID: "s1", Title: "Kept"}}}
	s, _ := newTestStore(b)
	s.ListConversations(context.Background())

	b.recentErr = &backend.StatusError{Endpoint: backend.EndpointRecent, StatusCode: 502}
	list := s.ListConversations(context.Background())
	if len(list) != 1 || list[0].Title != "Kept" {
		t.Errorf("ListConversations() after failure = %+v, want previous list", list)
	}
}

func TestListConversations_EmptyBackend(t *testing.T) {
	s, _ := newTestStore(&fakeBackend{})
	if list := s.ListConversations(context.Background()); len(list) != 0 {
		t.Errorf("ListConversations() = %+v, want empty", list)
	}
}

func TestLoadConversation(t *testing.T) {
	b := &fakeBackend{history: map[string]*model.HistoryResponse{
		"s1": {Messages: raw(
			`{"role": "user", "content": "What do they sell?", "timestamp": {"_seconds": 1700000000}}`,
			`{"content": "no role"}`,
			`{"role": "assistant", "content": "Your data.", "timestamp": "garbage"}`,
			`"not an object"`,
			`{"role": "system", "content": "hidden"}`,
			`{"role": "user", "content": "Really?", "timestamp": 1700000060000}`,
		)},
	}}
	s, _ := newTestStore(b)

	msgs := s.LoadConversation(context.Background(), "s1")
	want := []model.Message{
		{ID: 1, Role: model.RoleUser, Content: "What do they sell?", Timestamp: "10:13 PM", Provenance: model.ProvenanceConfirmed},
		{ID: 2, Role: model.RoleAssistant, Content: "Your data.", Timestamp: "12:00 PM", Provenance: model.ProvenanceConfirmed},
		{ID: 3, Role: model.RoleUser, Content: "Really?", Timestamp: "10:14 PM", Provenance: model.ProvenanceConfirmed},
	}
	if len(msgs) != len(want) {
		t.Fatalf("len = %d, want %d: %+v", len(msgs), len(want), msgs)
	}
	for i := range want {
		if msgs[i] != want[i] {
			t.Errorf("msgs[%d] = %+v, want %+v", i, msgs[i], want[i])
		}
	}
	if got := s.Current().SessionID; got != "s1" {
		t.Errorf("current session = %q, want s1", got)
	}
}

func TestLoadConversation_RoundTrip(t *testing.T) {
	b := &fakeBackend{history: map[string]*model.HistoryResponse{
		"s1": {Messages: raw(
			`{"role": "user", "content": "a", "timestamp": "2024-01-01T10:00:00Z"}`,
			`{"role": "assistant", "content": "b"}`,
			`{"role": "user", "content": "c", "timestamp": {"_seconds": 1704103200}}`,
		)},
	}}
	s, _ := newTestStore(b)

	first := s.LoadConversation(context.Background(), "s1")
	second := s.LoadConversation(context.Background(), "s1")
	if len(first) != len(second) {
		t.Fatalf("reload length %d != %d", len(second), len(first))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("reload[%d] = %+v, want %+v", i, second[i], first[i])
		}
	}
}

func TestLoadConversation_Failures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"status", &backend.StatusError{Endpoint: backend.EndpointHistory, StatusCode: 404}, loadStatusApology},
		{"transport", errors.New("connection refused"), loadErrorApology},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, _ := newTestStore(&fakeBackend{historyErr: tt.err})
			msgs := s.LoadConversation(context.Background(), "s9")
			if len(msgs) != 1 {
				t.Fatalf("len = %d, want 1", len(msgs))
			}
			if msgs[0].Content != tt.want || msgs[0].Role != model.RoleAssistant || msgs[0].Provenance != model.ProvenanceSynthetic {
				t.Errorf("msgs[0] = %+v", msgs[0])
			}
		})
	}
}

func TestSendMessage_EmptyContent(t *testing.T) {
	b := &fakeBackend{reply: "never"}
	s, _ := newTestStore(b)

	for _, text := range []string{"", "   ", "\n\t"} {
		tr, err := s.SendMessage(context.Background(), text)
		if !errors.Is(err, ErrEmptyMessage) {
			t.Errorf("SendMessage(%q) error = %v, want ErrEmptyMessage", text, err)
		}
		if len(tr.Messages) != 1 {
			t.Errorf("SendMessage(%q) appended messages: %+v", text, tr.Messages)
		}
	}
	if len(b.chatCalls) != 0 {
		t.Errorf("chat called %d times, want 0", len(b.chatCalls))
	}
}

func TestSendMessage_Success(t *testing.T) {
	b := &fakeBackend{reply: "Hi there"}
	s, c := newTestStore(b)
	session := s.Current().SessionID

	var sawOptimistic bool
	b.chatHook = func() {
		tr := s.Current()
		last := tr.Messages[len(tr.Messages)-1]
		sawOptimistic = last.Role == model.RoleUser && last.Provenance == model.ProvenanceOptimistic && tr.Typing
	}

	tr, err := s.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if !sawOptimistic {
		t.Error("user message was not appended optimistically before the chat call")
	}
	if tr.Typing {
		t.Error("Typing = true after send completed")
	}
	if tr.SessionID != session {
		t.Errorf("SessionID changed from %q to %q", session, tr.SessionID)
	}
	if len(tr.Messages) != 3 {
		t.Fatalf("len = %d, want 3", len(tr.Messages))
	}
	user, reply := tr.Messages[1], tr.Messages[2]
	if user.ID != 2 || user.Role != model.RoleUser || user.Provenance != model.ProvenanceConfirmed {
		t.Errorf("user message = %+v", user)
	}
	if reply.ID != 3 || reply.Content != "Hi there" || reply.Provenance != model.ProvenanceConfirmed {
		t.Errorf("reply = %+v", reply)
	}
	if got := b.chatCalls[0]; got.Question != "hello" || got.SessionID != session || got.UserID != "user_1" {
		t.Errorf("chat request = %+v", got)
	}

	if b.recentCalls != 0 {
		t.Fatalf("list reloaded before the refresh delay")
	}
	c.Advance(500 * time.Millisecond)
	if b.recentCalls != 1 {
		t.Errorf("recentCalls = %d after refresh delay, want 1", b.recentCalls)
	}
}

func TestSendMessage_Failure(t *testing.T) {
	b := &fakeBackend{chatErr: &backend.StatusError{Endpoint: backend.EndpointChat, StatusCode: 503}}
	s, c := newTestStore(b)

	tr, err := s.SendMessage(context.Background(), "hello")
	if err != nil {
		t.Fatalf("SendMessage() error = %v", err)
	}
	if tr.Typing {
		t.Error("Typing = true after failed send")
	}
	if len(tr.Messages) != 3 {
		t.Fatalf("len = %d, want 3", len(tr.Messages))
	}
	last := tr.Messages[2]
	if last.Role != model.RoleAssistant || last.Provenance != model.ProvenanceSynthetic {
		t.Errorf("last = %+v, want synthetic assistant message", last)
	}
	if !strings.Contains(last.Content, "status: 503") {
		t.Errorf("error message %q does not carry the error detail", last.Content)
	}

	c.Advance(time.Second)
	if b.recentCalls != 0 {
		t.Errorf("list reloaded after failed send")
	}
}

func TestSendMessage_DropsReplyAfterNewChat(t *testing.T) {
	b := &fakeBackend{reply: "late"}
	s, _ := newTestStore(b)
	b.chatHook = func() { s.StartNewChat() }

	tr, _ := s.SendMessage(context.Background(), "hello")
	if len(tr.Messages) != 1 || tr.Messages[0].Content != Greeting {
		t.Errorf("Messages = %+v, want only the new chat greeting", tr.Messages)
	}
}

func TestSendMessage_Serialized(t *testing.T) {
	b := &fakeBackend{reply: "ok"}
	s, _ := newTestStore(b)

	var (
		inFlight, maxInFlight int
		mu                    sync.Mutex
	)
	b.chatHook = func() {
		mu.Lock()
		inFlight++
		if inFlight > maxInFlight {
			maxInFlight = inFlight
		}
		mu.Unlock()
		time.Sleep(5 * time.Millisecond)
		mu.Lock()
		inFlight--
		mu.Unlock()
	}

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.SendMessage(context.Background(), fmt.Sprintf("msg %d", i))
		}(i)
	}
	wg.Wait()

	if maxInFlight != 1 {
		t.Errorf("max concurrent chat calls = %d, want 1", maxInFlight)
	}
	tr := s.Current()
	if len(tr.Messages) != 9 {
		t.Fatalf("len = %d, want 9", len(tr.Messages))
	}
	for i := 1; i < len(tr.Messages); i += 2 {
		if tr.Messages[i].Role != model.RoleUser || tr.Messages[i+1].Role != model.RoleAssistant {
			t.Errorf("messages %d,%d not a user/assistant pair", i, i+1)
		}
	}
	for i, m := range tr.Messages {
		if m.ID != i+1 {
			t.Errorf("Messages[%d].ID = %d, want %d", i, m.ID, i+1)
		}
	}
}

func TestScenario_FirstChat(t *testing.T) {
	b := &fakeBackend{reply: "Hello! Paste a link."}
	s, _ := newTestStore(b)

	if list := s.ListConversations(context.Background()); len(list) != 0 {
		t.Fatalf("initial list = %+v, want empty", list)
	}

	tr := s.Current()
	session := tr.SessionID

	tr, _ = s.SendMessage(context.Background(), "hello")
	// A new chat opens with the assistant greeting; the exchange follows it.
	if len(tr.Messages) != 3 || tr.Messages[0].Content != Greeting {
		t.Fatalf("transcript = %+v, want greeting plus 2 messages", tr.Messages)
	}
	exchange := tr.Messages[1:]
	if len(exchange) != 2 {
		t.Fatalf("exchange = %+v, want 2 messages", exchange)
	}
	if exchange[0].Role != model.RoleUser || exchange[0].Content != "hello" {
		t.Errorf("exchange[0] = %+v", exchange[0])
	}
	if exchange[1].Role != model.RoleAssistant {
		t.Errorf("exchange[1] = %+v", exchange[1])
	}
	if tr.SessionID != session {
		t.Errorf("session changed during exchange")
	}
}

func TestManager(t *testing.T) {
	m := NewManager(&fakeBackend{}, Options{Clock: clock.Fake(epoch)}, logger.NewNop())

	a := m.Get("alice")
	if m.Get("alice") != a {
		t.Error("Get() returned a different store for the same user")
	}
	guest := m.Get("")
	if guest.UserID() != "guest" {
		t.Errorf("Get(\"\").UserID() = %q, want guest", guest.UserID())
	}
	if m.Len() != 2 {
		t.Errorf("Len() = %d, want 2", m.Len())
	}
}
