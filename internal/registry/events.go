package registry

import (
	"github.com/zjrosen/modreg/internal/pubsub"
	"github.com/zjrosen/modreg/internal/scope"
)

// Namespace lifecycle event types.
const (
	// EventPublished: a freshly built namespace became current.
	EventPublished pubsub.EventType = "published"
	// EventRestored: a previous snapshot was reinstated without a rebuild.
	EventRestored pubsub.EventType = "restored"
	// EventRetired: a namespace stopped being current.
	EventRetired pubsub.EventType = "retired"
	// EventRemoved: a scope was evicted and is ABSENT again.
	EventRemoved pubsub.EventType = "removed"
)

// Event describes one namespace lifecycle transition.
type Event struct {
	Scope       scope.ID
	NamespaceID string
	Generation  uint64
}
