package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"chatline/internal/config"
	"chatline/internal/domain"
	"chatline/internal/hub"
	"chatline/internal/store/memstore"
)

func testRouter(store *memstore.Store) http.Handler {
	cfg := &config.Config{Mode: "release", Secret: testSecret}
	return SetupRouter(context.Background(), cfg, hub.New(store), store)
}

func TestHealth_NoAuthRequired(t *testing.T) {
	req := require.New(t)
	r := testRouter(memstore.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/health", nil))
	req.Equal(http.StatusOK, w.Code)
}

func TestMessages_RequiresAuth(t *testing.T) {
	req := require.New(t)
	r := testRouter(memstore.New())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/rooms/r1/messages", nil))
	req.Equal(http.StatusUnauthorized, w.Code)
}

func TestMessages_ReturnsRoomHistory(t *testing.T) {
	req := require.New(t)
	store := memstore.New()
	req.NoError(store.SaveMessage(context.Background(), &domain.Message{
		ID: "m1", RoomID: "r1", SenderID: "alice", Content: "hi",
		Type: domain.MessageText, SentAt: time.Now().UTC(),
	}))
	r := testRouter(store)

	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodGet, "/api/rooms/r1/messages?limit=10", nil)
	httpReq.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, testClaims()))
	r.ServeHTTP(w, httpReq)

	req.Equal(http.StatusOK, w.Code)
	var msgs []domain.Message
	req.NoError(json.Unmarshal(w.Body.Bytes(), &msgs))
	req.Len(msgs, 1)
	req.Equal("hi", msgs[0].Content)
}

func TestMessages_BadLimitRejected(t *testing.T) {
	req := require.New(t)
	r := testRouter(memstore.New())

	w := httptest.NewRecorder()
	httpReq := httptest.NewRequest(http.MethodGet, "/api/rooms/r1/messages?limit=nope", nil)
	httpReq.Header.Set("Authorization", "Bearer "+signToken(t, testSecret, testClaims()))
	r.ServeHTTP(w, httpReq)
	req.Equal(http.StatusBadRequest, w.Code)
}
