package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/creditwager/creditwager-api/internal/domain/ledger"
	"github.com/creditwager/creditwager-api/internal/middleware"
)

func waitEvent(t *testing.T, ch <-chan []byte) ledger.BalanceEvent {
	t.Helper()
	select {
	case msg := <-ch:
		var e ledger.BalanceEvent
		require.NoError(t, json.Unmarshal(msg, &e))
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for balance event")
	}
	return ledger.BalanceEvent{}
}

func waitConnections(t *testing.T, h *Hub, n int) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for h.ConnectionCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("expected %d connections, got %d", n, h.ConnectionCount())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestHub_DeliversOnlyToOwner(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	alice, bob := uuid.New(), uuid.New()
	a := &Connection{UserID: alice, Send: make(chan []byte, 4)}
	b := &Connection{UserID: bob, Send: make(chan []byte, 4)}
	hub.Register(a)
	hub.Register(b)
	waitConnections(t, hub, 2)

	hub.PublishBalance(context.Background(), ledger.BalanceEvent{Type: ledger.EventBalanceChanged, UserID: alice, Balance: 70, Kind: ledger.KindBet})

	e := waitEvent(t, a.Send)
	assert.Equal(t, int64(70), e.Balance)
	assert.Equal(t, ledger.KindBet, e.Kind)
	assert.Empty(t, b.Send)
}

func TestHub_RemoteEnvelopes(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	userID := uuid.New()
	c := &Connection{UserID: userID, Send: make(chan []byte, 4)}
	hub.Register(c)
	waitConnections(t, hub, 1)

	own, _ := json.Marshal(envelope{Instance: hub.instanceID, Event: ledger.BalanceEvent{UserID: userID, Balance: 1}})
	hub.handleRemote(string(own))
	assert.Empty(t, c.Send, "own events are delivered before publishing")

	other, _ := json.Marshal(envelope{Instance: "other", Event: ledger.BalanceEvent{UserID: userID, Balance: 2}})
	hub.handleRemote(string(other))
	assert.Equal(t, int64(2), waitEvent(t, c.Send).Balance)

	hub.handleRemote("not json")
	assert.Empty(t, c.Send)
}

func TestHub_DropsWhenBufferFull(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	userID := uuid.New()
	c := &Connection{UserID: userID, Send: make(chan []byte, 1)}
	hub.Register(c)
	waitConnections(t, hub, 1)

	hub.PublishBalance(context.Background(), ledger.BalanceEvent{UserID: userID, Balance: 1})
	hub.PublishBalance(context.Background(), ledger.BalanceEvent{UserID: userID, Balance: 2})

	assert.Equal(t, int64(1), waitEvent(t, c.Send).Balance)
	assert.Empty(t, c.Send)
}

type fixedBalance int64

func (f fixedBalance) GetBalance(context.Context, uuid.UUID) (int64, error) { return int64(f), nil }

func TestBalanceStream_EndToEnd(t *testing.T) {
	hub := NewHub(nil)
	go hub.Run()
	defer hub.Shutdown()

	userID := uuid.New()
	h := NewHandler(hub, fixedBalance(100), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Balance(w, r.WithContext(middleware.WithUser(r.Context(), userID, "player")))
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	var snapshot ledger.BalanceEvent
	require.NoError(t, conn.ReadJSON(&snapshot))
	assert.Equal(t, EventSnapshot, snapshot.Type)
	assert.Equal(t, int64(100), snapshot.Balance)

	waitConnections(t, hub, 1)
	hub.PublishBalance(context.Background(), ledger.BalanceEvent{Type: ledger.EventBalanceChanged, UserID: userID, Balance: 70, EntryID: uuid.New(), Kind: ledger.KindBet})

	var changed ledger.BalanceEvent
	require.NoError(t, conn.ReadJSON(&changed))
	assert.Equal(t, ledger.EventBalanceChanged, changed.Type)
	assert.Equal(t, int64(70), changed.Balance)
}

func TestCheckOrigin(t *testing.T) {
	tests := []struct {
		name    string
		allowed []string
		origin  string
		want    bool
	}{
		{"no origin header", nil, "", true},
		{"empty list denies browsers", nil, "https://evil.example", false},
		{"listed origin", []string{"https://app.example"}, "https://app.example", true},
		{"unlisted origin", []string{"https://app.example"}, "https://evil.example", false},
		{"wildcard", []string{"*"}, "https://any.example", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/ws/balance", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, checkOrigin(tt.allowed)(r))
		})
	}
}

func TestBalanceStream_RejectsForeignOrigin(t *testing.T) {
	h := NewHandler(NewHub(nil), fixedBalance(0), nil)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h.Balance(w, r.WithContext(middleware.WithUser(r.Context(), uuid.New(), "player")))
	}))
	defer srv.Close()

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestBalanceStream_RequiresUser(t *testing.T) {
	h := NewHandler(NewHub(nil), fixedBalance(0), nil)
	rr := httptest.NewRecorder()
	h.Balance(rr, httptest.NewRequest(http.MethodGet, "/ws/balance", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}
