package auth

import (
	"context"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

type actorKey struct{}

func ContextWithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(domain.Actor)
	return actor, ok
}
