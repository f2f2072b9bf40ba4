package domain

import (
	"fmt"

	"github.com/google/uuid"
)

type ActorType string

const (
	ActorTypeAdmin  ActorType = "admin"
	ActorTypeAgent  ActorType = "agent"
	ActorTypeSystem ActorType = "system"
)

// Actor identifies who performs an operation. It is threaded explicitly
// through every call; nothing reads the current actor from ambient state.
// AgentID is set only for agent actors and names the agent they act for.
type Actor struct {
	ID      uuid.UUID
	Type    ActorType
	Name    string
	AgentID *uuid.UUID
}

func (a Actor) IsAdmin() bool { return a.Type == ActorTypeAdmin }

func (a Actor) OwnsAgent(agentID uuid.UUID) bool {
	return a.Type == ActorTypeAgent && a.AgentID != nil && *a.AgentID == agentID
}

// Ref is the stable "type:id" string stored in created_by columns.
func (a Actor) Ref() string {
	return fmt.Sprintf("%s:%s", a.Type, a.ID)
}
