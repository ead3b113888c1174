package notify

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/kv"
)

type fakeChannel struct {
	name  string
	err   error
	texts []string
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Configured() bool { return true }
func (f *fakeChannel) Send(_ context.Context, text string) error {
	f.texts = append(f.texts, text)
	return f.err
}

func TestTelegramSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/botTOKEN/sendMessage", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	tg := &Telegram{BotToken: "TOKEN", ChatID: "42", APIBase: srv.URL}
	require.NoError(t, tg.Send(context.Background(), "hello"))
	assert.Equal(t, map[string]string{"chat_id": "42", "text": "hello"}, got)
}

func TestTelegramUnconfiguredIsNoop(t *testing.T) {
	tg := &Telegram{}
	assert.False(t, tg.Configured())
	assert.NoError(t, tg.Send(context.Background(), "hello"))
}

func TestTelegramErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad chat", http.StatusBadRequest)
	}))
	defer srv.Close()

	err := (&Telegram{BotToken: "T", ChatID: "1", APIBase: srv.URL}).Send(context.Background(), "x")
	var se *SendError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, http.StatusBadRequest, se.StatusCode)
	assert.Equal(t, "bad chat", se.Body)
}

func TestTwilioSendTo(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/2010-04-01/Accounts/AC1/Messages.json", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "AC1", user)
		assert.Equal(t, "secret", pass)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "+15550001", r.PostForm.Get("From"))
		assert.Equal(t, "+15550002", r.PostForm.Get("To"))
		assert.Equal(t, "Approved", r.PostForm.Get("Body"))
		w.WriteHeader(http.StatusCreated)
	}))
	defer srv.Close()

	tw := &Twilio{AccountSID: "AC1", AuthToken: "secret", From: "+15550001", APIBase: srv.URL}
	require.NoError(t, tw.SendTo(context.Background(), "+15550002", "Approved"))
	assert.NoError(t, tw.Send(context.Background(), "no default recipient"))
}

func TestNextAttemptBackoff(t *testing.T) {
	assert.Equal(t, 5*time.Second, nextAttempt(0))
	assert.Equal(t, 10*time.Second, nextAttempt(1))
	assert.Equal(t, 160*time.Second, nextAttempt(5))
	assert.Equal(t, 5*time.Minute, nextAttempt(6))
	assert.Equal(t, 5*time.Minute, nextAttempt(100))
}

func TestDispatcherQueuesFailuresAndOutboxRetries(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemoryStore().WithClock(func() time.Time { return now })

	ok := &fakeChannel{name: "ok"}
	flaky := &fakeChannel{name: "flaky", err: errors.New("503")}
	outbox := NewOutbox(store, ok, flaky)
	d := NewDispatcher(DispatcherOptions{Store: store, Outbox: outbox, Now: func() time.Time { return now }}, ok, flaky)

	d.Notify(ctx, "hello")
	assert.Equal(t, []string{"hello"}, ok.texts)

	recs, err := outbox.List(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "flaky", recs[0].Channel)
	assert.Equal(t, OutboxStatusPending, recs[0].Status)
	assert.Equal(t, now.Add(5*time.Second), recs[0].NextAttemptAt)

	n, err := outbox.ProcessDue(ctx, now, 10)
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	n, err = outbox.ProcessDue(ctx, now.Add(5*time.Second), 10)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	recs, _ = outbox.List(ctx)
	assert.Equal(t, 2, recs[0].AttemptCount)
	assert.Equal(t, now.Add(15*time.Second), recs[0].NextAttemptAt)

	flaky.err = nil
	_, err = outbox.ProcessDue(ctx, now.Add(15*time.Second), 10)
	require.NoError(t, err)
	recs, _ = outbox.List(ctx)
	assert.Equal(t, OutboxStatusSent, recs[0].Status)
}

func TestOutboxGivesUp(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	flaky := &fakeChannel{name: "flaky", err: errors.New("down")}
	outbox := NewOutbox(kv.NewMemoryStore(), flaky)
	outbox.MaxAttempts = 2

	_, err := outbox.Enqueue(ctx, "flaky", "x", nil, now)
	require.NoError(t, err)
	_, err = outbox.ProcessDue(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	recs, _ := outbox.List(ctx)
	assert.Equal(t, OutboxStatusFailed, recs[0].Status)

	_, err = outbox.Enqueue(ctx, "gone", "x", nil, now.Add(time.Second))
	require.NoError(t, err)
	_, err = outbox.ProcessDue(ctx, now.Add(time.Minute), 10)
	require.NoError(t, err)
	recs, _ = outbox.List(ctx)
	assert.Equal(t, "unknown channel: gone", recs[1].LastError)
}

func TestMuteSuppressesBackgroundOnly(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := kv.NewMemoryStore().WithClock(func() time.Time { return now })
	ch := &fakeChannel{name: "c"}
	d := NewDispatcher(DispatcherOptions{Store: store, Now: func() time.Time { return now }}, ch)

	until, err := d.Mute(ctx, 30*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, now.Add(30*time.Minute), until)
	assert.True(t, d.Muted(ctx))

	d.NotifyBackground(ctx, "briefing")
	d.Notify(ctx, "approval needed")
	assert.Equal(t, []string{"approval needed"}, ch.texts)

	now = now.Add(31 * time.Minute)
	assert.False(t, d.Muted(ctx))
	d.NotifyBackground(ctx, "briefing")
	assert.Equal(t, []string{"approval needed", "briefing"}, ch.texts)
}

func TestHubBroadcast(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	require.Eventually(t, func() bool { return hub.Clients() == 1 }, time.Second, 10*time.Millisecond)
	require.NoError(t, hub.Send(context.Background(), "executed"))

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var ev Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "notification", ev.Type)
	assert.Equal(t, "executed", ev.Text)
}

func TestHubSendDoesNotWaitOnStalledClient(t *testing.T) {
	hub := NewHub(nil)
	srv := httptest.NewServer(hub)
	defer srv.Close()
	defer hub.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	var conns []*websocket.Conn
	for i := 0; i < 2; i++ {
		conn, _, err := websocket.DefaultDialer.Dial(url, nil)
		require.NoError(t, err)
		defer conn.Close()
		conns = append(conns, conn)
	}
	require.Eventually(t, func() bool { return hub.Clients() == 2 }, time.Second, 10*time.Millisecond)

	// Hold one server-side writer to simulate a client whose socket is backed up.
	var stalled *hubClient
	hub.mu.Lock()
	for _, c := range hub.clients {
		stalled = c
		break
	}
	hub.mu.Unlock()
	stalled.wmu.Lock()

	received := make(chan string, 2)
	for _, conn := range conns {
		go func(conn *websocket.Conn) {
			_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
			var ev Event
			if err := conn.ReadJSON(&ev); err == nil {
				received <- ev.Text
			}
		}(conn)
	}

	sent := make(chan error, 1)
	go func() { sent <- hub.Send(context.Background(), "approval needed") }()

	select {
	case text := <-received:
		assert.Equal(t, "approval needed", text)
	case <-time.After(2 * time.Second):
		t.Fatal("healthy client did not receive while another was stalled")
	}
	assert.Equal(t, 2, hub.Clients())
	select {
	case <-sent:
		t.Fatal("send returned before the stalled write finished")
	default:
	}

	stalled.wmu.Unlock()
	require.NoError(t, <-sent)
	assert.Equal(t, "approval needed", <-received)
}
