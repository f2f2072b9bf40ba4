package handler

import (
	"net/http"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/auth"
	"github.com/sunward-travel/agent-ledger/internal/domain"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
)

func actorFrom(r *http.Request) (domain.Actor, *AppError) {
	actor, ok := auth.ActorFromContext(r.Context())
	if !ok {
		return domain.Actor{}, ErrMissingToken
	}
	return actor, nil
}

func adminFrom(r *http.Request) (domain.Actor, *AppError) {
	actor, appErr := actorFrom(r)
	if appErr != nil {
		return domain.Actor{}, appErr
	}
	if !actor.IsAdmin() {
		return domain.Actor{}, ErrActorNotAllowed
	}
	return actor, nil
}

// agentScopeFromPath resolves the {agentID} path segment. Admins may address
// any agent; agent actors only themselves.
func agentScopeFromPath(r *http.Request) (uuid.UUID, domain.Actor, *AppError) {
	actor, appErr := actorFrom(r)
	if appErr != nil {
		return uuid.Nil, domain.Actor{}, appErr
	}

	agentID, err := uuid.Parse(r.PathValue("agentID"))
	if err != nil {
		return uuid.Nil, domain.Actor{}, ErrResourceNotFound
	}

	if !actor.IsAdmin() && !actor.OwnsAgent(agentID) {
		return uuid.Nil, domain.Actor{}, ErrResourceNotFound
	}

	return agentID, actor, nil
}

func pathID(r *http.Request, segment string) (uuid.UUID, *AppError) {
	id, err := uuid.Parse(r.PathValue(segment))
	if err != nil {
		return uuid.Nil, ErrResourceNotFound
	}
	return id, nil
}

func parsePaging(r *http.Request) (limit, offset int) {
	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	if page < 1 {
		page = 1
	}
	size, _ := strconv.Atoi(r.URL.Query().Get("page_size"))
	if size < 1 {
		size = defaultPageSize
	}
	if size > maxPageSize {
		size = maxPageSize
	}
	return size, (page - 1) * size
}

func parseTimeParam(r *http.Request, name string) (*time.Time, *AppError) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, ErrInvalidRequest
	}
	return &t, nil
}
