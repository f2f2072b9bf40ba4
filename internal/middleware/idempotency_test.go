package middleware

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sunward-travel/agent-ledger/internal/auth"
	"github.com/sunward-travel/agent-ledger/internal/domain"
	"github.com/sunward-travel/agent-ledger/internal/repository"
)

type memIdempotencyRepo struct {
	entries map[string]*repository.IdempotencyCacheEntry
}

func newMemIdempotencyRepo() *memIdempotencyRepo {
	return &memIdempotencyRepo{entries: make(map[string]*repository.IdempotencyCacheEntry)}
}

func (m *memIdempotencyRepo) Get(_ context.Context, key string, actorID uuid.UUID) (*repository.IdempotencyCacheEntry, error) {
	return m.entries[key+":"+actorID.String()], nil
}

func (m *memIdempotencyRepo) Set(_ context.Context, entry *repository.IdempotencyCacheEntry) error {
	m.entries[entry.Key+":"+entry.ActorID.String()] = entry
	return nil
}

func idempotentRequest(t *testing.T, actor domain.Actor, key, body string) *http.Request {
	t.Helper()
	r := httptest.NewRequest(http.MethodPost, "/api/v1/accounts", strings.NewReader(body))
	if key != "" {
		r.Header.Set("Idempotency-Key", key)
	}
	return r.WithContext(auth.ContextWithActor(r.Context(), actor))
}

func TestIdempotency_ReplaysCachedResponse(t *testing.T) {
	repo := newMemIdempotencyRepo()
	actor := domain.Actor{ID: uuid.New(), Type: domain.ActorTypeAdmin}

	calls := 0
	h := Idempotency(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
		fmt.Fprintf(w, `{"call":%d}`, calls)
	}))

	key := uuid.NewString()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, actor, key, `{"amount":100}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"call":1}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, actor, key, `{"amount":100}`))
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, `{"call":1}`, rec.Body.String(), "second call replays, not re-executes")
	assert.Equal(t, "true", rec.Header().Get("X-Idempotent-Replayed"))
	assert.Equal(t, 1, calls)
}

func TestIdempotency_SameKeyDifferentBodyConflicts(t *testing.T) {
	repo := newMemIdempotencyRepo()
	actor := domain.Actor{ID: uuid.New(), Type: domain.ActorTypeAdmin}

	h := Idempotency(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusCreated)
	}))

	key := uuid.NewString()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, actor, key, `{"amount":100}`))
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, actor, key, `{"amount":999}`))
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestIdempotency_KeysScopedPerActor(t *testing.T) {
	repo := newMemIdempotencyRepo()
	first := domain.Actor{ID: uuid.New(), Type: domain.ActorTypeAdmin}
	second := domain.Actor{ID: uuid.New(), Type: domain.ActorTypeAdmin}

	calls := 0
	h := Idempotency(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusCreated)
	}))

	key := uuid.NewString()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, first, key, `{}`))
	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, second, key, `{}`))

	assert.Equal(t, 2, calls, "one actor's key never shadows another's")
}

func TestIdempotency_MissingKeyRejected(t *testing.T) {
	repo := newMemIdempotencyRepo()
	actor := domain.Actor{ID: uuid.New(), Type: domain.ActorTypeAdmin}

	h := Idempotency(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without a key")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, idempotentRequest(t, actor, "", `{}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestIdempotency_GetPassesThrough(t *testing.T) {
	repo := newMemIdempotencyRepo()

	called := false
	h := Idempotency(repo)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/price-modifications", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, r)
	assert.True(t, called)
}
