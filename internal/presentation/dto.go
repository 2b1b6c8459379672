package presentation

import (
	"time"

	"github.com/zjrosen/modreg/internal/deploy"
	"github.com/zjrosen/modreg/internal/infrastructure/sqlite"
	"github.com/zjrosen/modreg/internal/namespace"
	"github.com/zjrosen/modreg/internal/pubsub"
	"github.com/zjrosen/modreg/internal/registry"
	"github.com/zjrosen/modreg/internal/resolver"
	"github.com/zjrosen/modreg/internal/scope"
)

// ResolutionDTO represents a module or resource lookup for presentation.
type ResolutionDTO struct {
	Scope      string `json:"scope"`
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	Found      bool   `json:"found"`
	Owner      string `json:"owner,omitempty"`
	Artifact   string `json:"artifact,omitempty"`
	Namespace  string `json:"namespace,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
	Size       int    `json:"size"`
}

// FromModuleResolution converts a module resolution.
func FromModuleResolution(id scope.ID, name string, res resolver.Resolution, found bool) ResolutionDTO {
	dto := ResolutionDTO{Scope: id.String(), Name: name, Kind: "module", Found: found}
	if !found {
		return dto
	}
	dto.Owner = res.Owner.String()
	dto.Artifact = res.Artifact
	dto.Namespace = res.Namespace
	dto.Generation = res.Generation
	dto.Size = len(res.Data)
	return dto
}

// FromResourceResolution converts a resource lookup.
func FromResourceResolution(id scope.ID, name string, data []byte, found bool) ResolutionDTO {
	return ResolutionDTO{Scope: id.String(), Name: name, Kind: "resource", Found: found, Size: len(data)}
}

// DeploymentDTO represents a stored artifact mapping.
type DeploymentDTO struct {
	Scope      string    `json:"scope"`
	ETag       string    `json:"etag"`
	Artifacts  int       `json:"artifacts"`
	DeployedAt time.Time `json:"deployed_at"`
}

// FromDeployments converts stored deployments.
func FromDeployments(deployments []sqlite.Deployment) []DeploymentDTO {
	out := make([]DeploymentDTO, len(deployments))
	for i, d := range deployments {
		out[i] = DeploymentDTO{
			Scope:      d.Scope.String(),
			ETag:       d.ETag,
			Artifacts:  d.ArtifactCount,
			DeployedAt: d.DeployedAt.UTC(),
		}
	}
	return out
}

// DeployResultDTO represents the outcome of a deploy or undeploy.
type DeployResultDTO struct {
	Scope      string `json:"scope"`
	Changed    bool   `json:"changed"`
	Mode       string `json:"mode"`
	Namespace  string `json:"namespace,omitempty"`
	Generation uint64 `json:"generation,omitempty"`
}

// FromDeployResult converts a deploy result.
func FromDeployResult(res deploy.Result, mode string) DeployResultDTO {
	dto := DeployResultDTO{Scope: res.Scope.String(), Changed: res.Changed, Mode: mode}
	if res.Namespace != nil {
		dto.Namespace = res.Namespace.ID()
		dto.Generation = res.Namespace.Generation()
	}
	return dto
}

// NamespaceDTO summarises a built namespace.
type NamespaceDTO struct {
	Scope      string    `json:"scope"`
	Parent     string    `json:"parent,omitempty"`
	Namespace  string    `json:"namespace"`
	Generation uint64    `json:"generation"`
	ETag       string    `json:"etag"`
	BuiltAt    time.Time `json:"built_at"`
	Modules    []string  `json:"modules"`
	Resources  []string  `json:"resources"`
}

// FromNamespace converts a namespace snapshot.
func FromNamespace(ns *namespace.Namespace) NamespaceDTO {
	dto := NamespaceDTO{
		Scope:      ns.Scope().String(),
		Namespace:  ns.ID(),
		Generation: ns.Generation(),
		ETag:       ns.ETag(),
		BuiltAt:    ns.BuiltAt().UTC(),
		Modules:    ns.Modules(),
		Resources:  ns.Resources(),
	}
	if parent, ok := ns.Parent(); ok {
		dto.Parent = parent.String()
	}
	return dto
}

// EventDTO represents a registry lifecycle event.
type EventDTO struct {
	Type       string    `json:"type"`
	Scope      string    `json:"scope"`
	Namespace  string    `json:"namespace,omitempty"`
	Generation uint64    `json:"generation,omitempty"`
	Time       time.Time `json:"time"`
}

// FromEvent converts a registry event.
func FromEvent(ev pubsub.Event[registry.Event]) EventDTO {
	return EventDTO{
		Type:       string(ev.Type),
		Scope:      ev.Payload.Scope.String(),
		Namespace:  ev.Payload.NamespaceID,
		Generation: ev.Payload.Generation,
		Time:       ev.Timestamp.UTC(),
	}
}
