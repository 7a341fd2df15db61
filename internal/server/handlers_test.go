package server

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hikaru/kioku/pkg/chat"
	"github.com/hikaru/kioku/pkg/memory"
	"github.com/hikaru/kioku/pkg/oracle"
)

const testToken = "test-token-123"

// queueOracle replays scripted responses, keeping the last one once the
// queue is exhausted.
type queueOracle struct {
	responses []string
}

func (q *queueOracle) Complete(_ context.Context, _ []oracle.Message) (string, error) {
	if len(q.responses) == 0 {
		return "", fmt.Errorf("queue oracle: empty")
	}
	response := q.responses[0]
	if len(q.responses) > 1 {
		q.responses = q.responses[1:]
	}
	return response, nil
}

func (q *queueOracle) Provider() string { return "queue" }

type testHarness struct {
	srv      *Server
	handler  http.Handler
	memStore *memory.SQLiteStore
}

func newTestServer(t *testing.T, o oracle.Oracle) *testHarness {
	t.Helper()

	db, err := memory.OpenDatabase(filepath.Join(t.TempDir(), "kioku.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	memStore, err := memory.NewSQLiteStore(db, zerolog.Nop())
	require.NoError(t, err)

	engine, err := memory.NewEngine(memory.EngineConfig{
		Store:  memStore,
		Oracle: o,
		Logger: zerolog.Nop(),
	})
	require.NoError(t, err)

	chatStore, err := chat.NewStore(db, zerolog.Nop())
	require.NoError(t, err)

	chatService, err := chat.NewService(o, engine, chatStore, zerolog.Nop())
	require.NoError(t, err)

	srv, err := NewServer(Config{
		Port:        8420,
		AuthToken:   testToken,
		Engine:      engine,
		ChatService: chatService,
		ChatStore:   chatStore,
		Logger:      zerolog.Nop(),
	})
	require.NoError(t, err)

	return &testHarness{srv: srv, handler: srv.Routes(), memStore: memStore}
}

func (h *testHarness) do(t *testing.T, method, path string, body any, authorize bool, owner string) *httptest.ResponseRecorder {
	t.Helper()

	var payload *bytes.Buffer
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		payload = bytes.NewBuffer(raw)
	} else {
		payload = bytes.NewBuffer(nil)
	}

	req := httptest.NewRequest(method, path, payload)
	if authorize {
		req.Header.Set("Authorization", "Bearer "+testToken)
	}
	if owner != "" {
		req.Header.Set("X-Kioku-Owner", owner)
	}

	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)
	return rec
}

func (h *testHarness) seed(t *testing.T, owner, text string, tier memory.Tier, importance float64) *memory.Record {
	t.Helper()
	record, err := h.memStore.Insert(context.Background(), memory.InsertParams{
		Owner:          owner,
		StructuredText: text,
		Tier:           tier,
		Importance:     importance,
	})
	require.NoError(t, err)
	return record
}

func TestServer_RejectsMissingToken(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/api/memories", nil, false, "alice")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RejectsWrongToken(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	req := httptest.NewRequest(http.MethodGet, "/api/memories", nil)
	req.Header.Set("Authorization", "Bearer wrong-token")
	req.Header.Set("X-Kioku-Owner", "alice")
	rec := httptest.NewRecorder()
	h.handler.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_RejectsMissingOwner(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/api/memories", nil, true, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_HealthzIsPublic(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/healthz", nil, false, "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServer_Chat(t *testing.T) {
	o := &queueOracle{responses: []string{
		"Hello Alice!",
		`["The user lives in Tokyo"]`,
		`{"type": "core_context", "category": "residence", "importance_score": 0.8}`,
	}}
	h := newTestServer(t, o)

	rec := h.do(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "I live in Tokyo"}, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var reply struct {
		ConversationID string           `json:"conversation_id"`
		Content        string           `json:"reply"`
		Memories       []*memory.Record `json:"memories"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))
	assert.NotEmpty(t, reply.ConversationID)
	assert.Equal(t, "Hello Alice!", reply.Content)
	require.Len(t, reply.Memories, 1)
	assert.Equal(t, "The user lives in Tokyo", reply.Memories[0].StructuredText)
}

func TestServer_ChatEmptyIngestYieldsEmptyArray(t *testing.T) {
	o := &queueOracle{responses: []string{
		"Sure thing.",
		"no facts in that",
	}}
	h := newTestServer(t, o)

	rec := h.do(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "tell me a joke"}, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"memories":[]`)
}

func TestServer_ChatRejectsEmptyMessage(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "  "}, true, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListMemories(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	h.seed(t, "alice", "The user lives in Tokyo", memory.TierCoreContext, 0.9)
	h.seed(t, "alice", "The user visited Kyoto", memory.TierArchive, 0.3)
	h.seed(t, "bob", "Someone else entirely", memory.TierCoreContext, 0.5)

	rec := h.do(t, http.MethodGet, "/api/memories", nil, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Memories []*memory.Record `json:"memories"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 2, body.Total)
	require.Len(t, body.Memories, 2)
	assert.Equal(t, "The user lives in Tokyo", body.Memories[0].StructuredText)
}

func TestServer_ListMemoriesByTier(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	h.seed(t, "alice", "core fact", memory.TierCoreContext, 0.9)
	h.seed(t, "alice", "archived fact", memory.TierArchive, 0.3)

	rec := h.do(t, http.MethodGet, "/api/memories?type=archive", nil, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Memories []*memory.Record `json:"memories"`
		Total    int              `json:"total"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, 1, body.Total)
	require.Len(t, body.Memories, 1)
	assert.Equal(t, memory.TierArchive, body.Memories[0].Tier)
}

func TestServer_ListMemoriesBadTier(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/api/memories?type=ephemeral", nil, true, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListMemoriesBadPaging(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/api/memories?limit=abc", nil, true, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = h.do(t, http.MethodGet, "/api/memories?offset=-1", nil, true, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_ListMemoriesEmptyIsArray(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/api/memories", nil, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"memories":[]`)
}

func TestServer_SearchMemories(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	h.seed(t, "alice", "The user lives in Tokyo", memory.TierCoreContext, 0.9)
	h.seed(t, "alice", "The user collects vintage cameras", memory.TierArchive, 0.3)

	rec := h.do(t, http.MethodPost, "/api/memories/search",
		map[string]any{"query": "The user lives in Tokyo"}, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Results []memory.SearchResult `json:"results"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Results, 2)
	assert.Equal(t, "The user lives in Tokyo", body.Results[0].Record.StructuredText)
	assert.Equal(t, 1.0, body.Results[0].Relevance)
}

func TestServer_SearchRequiresQuery(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodPost, "/api/memories/search",
		map[string]any{"query": "   "}, true, "alice")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_DeleteMemory(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	record := h.seed(t, "alice", "The user owns a cat", memory.TierCoreContext, 0.5)

	rec := h.do(t, http.MethodDelete, "/api/memories/"+record.ID, nil, true, "alice")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/memories/"+record.ID, nil, true, "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_DeleteMemoryScopedToOwner(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	record := h.seed(t, "alice", "The user owns a dog", memory.TierCoreContext, 0.5)

	rec := h.do(t, http.MethodDelete, "/api/memories/"+record.ID, nil, true, "bob")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RecordAccess(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	record := h.seed(t, "alice", "The user drinks matcha", memory.TierArchive, 0.4)

	rec := h.do(t, http.MethodPost, "/api/memories/"+record.ID+"/access", nil, true, "alice")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	got, err := h.memStore.Get(context.Background(), "alice", record.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 1, got.AccessCount)
}

func TestServer_RecordAccessScopedToOwner(t *testing.T) {
	h := newTestServer(t, &queueOracle{})
	record := h.seed(t, "alice", "The user drinks coffee", memory.TierArchive, 0.4)

	rec := h.do(t, http.MethodPost, "/api/memories/"+record.ID+"/access", nil, true, "bob")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_ConversationLifecycle(t *testing.T) {
	o := &queueOracle{responses: []string{
		"Hi!",
		"no facts",
	}}
	h := newTestServer(t, o)

	rec := h.do(t, http.MethodPost, "/api/chat",
		map[string]string{"message": "hello there"}, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	var reply struct {
		ConversationID string `json:"conversation_id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &reply))

	rec = h.do(t, http.MethodGet, "/api/conversations", nil, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), reply.ConversationID)

	rec = h.do(t, http.MethodGet, "/api/conversations/"+reply.ConversationID+"/messages", nil, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "hello there")

	rec = h.do(t, http.MethodGet, "/api/conversations/"+reply.ConversationID+"/messages", nil, true, "bob")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/conversations/"+reply.ConversationID, nil, true, "alice")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/conversations/"+reply.ConversationID, nil, true, "alice")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServer_RoutesAreInstrumented(t *testing.T) {
	h := newTestServer(t, &queueOracle{})

	rec := h.do(t, http.MethodGet, "/api/memories", nil, true, "alice")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = h.do(t, http.MethodDelete, "/api/memories/nope", nil, true, "alice")
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = h.do(t, http.MethodGet, "/metrics", nil, false, "")
	require.Equal(t, http.StatusOK, rec.Code)

	body := rec.Body.String()
	assert.Contains(t, body, `http_requests_total{route="memories.list",status="2xx"}`)
	assert.Contains(t, body, `http_requests_total{route="memories.delete",status="4xx"}`)
}

func TestNewServer_Validation(t *testing.T) {
	_, err := NewServer(Config{})
	assert.Error(t, err)

	_, err = NewServer(Config{Port: 8420})
	assert.Error(t, err)
}
