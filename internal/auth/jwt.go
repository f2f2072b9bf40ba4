package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/sunward-travel/agent-ledger/internal/domain"
)

type tokenClaims struct {
	jwt.RegisteredClaims
	ActorID   string `json:"actor_id"`
	ActorType string `json:"actor_type"`
	ActorName string `json:"actor_name"`
	AgentID   string `json:"agent_id,omitempty"`
}

// GenerateToken issues a bearer token for an actor resolved by the identity
// subsystem. Agent actors carry the agent they act for; admin tokens do not.
func GenerateToken(actor domain.Actor, secret string, expiry time.Duration) (string, error) {
	now := time.Now()
	claims := tokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		ActorID:   actor.ID.String(),
		ActorType: string(actor.Type),
		ActorName: actor.Name,
	}
	if actor.AgentID != nil {
		claims.AgentID = actor.AgentID.String()
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	if err != nil {
		return "", fmt.Errorf("GenerateToken: %w", err)
	}
	return signed, nil
}

func ValidateToken(tokenString string, secret string) (*domain.Actor, error) {
	token, err := jwt.ParseWithClaims(tokenString, &tokenClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: %w", err)
	}

	tc, ok := token.Claims.(*tokenClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("ValidateToken: invalid token claims")
	}

	actorID, err := uuid.Parse(tc.ActorID)
	if err != nil {
		return nil, fmt.Errorf("ValidateToken: invalid actor_id in token: %w", err)
	}

	actorType := domain.ActorType(tc.ActorType)
	switch actorType {
	case domain.ActorTypeAdmin, domain.ActorTypeAgent, domain.ActorTypeSystem:
	default:
		return nil, fmt.Errorf("ValidateToken: unknown actor_type %q", tc.ActorType)
	}

	actor := &domain.Actor{
		ID:   actorID,
		Type: actorType,
		Name: tc.ActorName,
	}

	if actorType == domain.ActorTypeAgent {
		if tc.AgentID == "" {
			return nil, fmt.Errorf("ValidateToken: agent token missing agent_id")
		}
		agentID, err := uuid.Parse(tc.AgentID)
		if err != nil {
			return nil, fmt.Errorf("ValidateToken: invalid agent_id in token: %w", err)
		}
		actor.AgentID = &agentID
	}

	return actor, nil
}
