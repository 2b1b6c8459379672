package sqlite

import (
	"time"

	"github.com/zjrosen/modreg/internal/artifact"
	"github.com/zjrosen/modreg/internal/scope"
)

// artifactModel is one row of the artifacts table. Content holds the
// compressed bytes.
type artifactModel struct {
	ScopeKind     string
	ScopeInstance string
	Position      int
	Name          string
	FileName      string
	Type          string
	Version       string
	Digest        string
	Size          int64
	Content       []byte
	CreatedAt     int64
}

const artifactColumns = `scope_kind, scope_instance, position, name, file_name, type, version, digest, size, content, created_at`

func scanArtifact(scanner interface{ Scan(...any) error }) (*artifactModel, error) {
	var m artifactModel
	err := scanner.Scan(
		&m.ScopeKind, &m.ScopeInstance, &m.Position, &m.Name, &m.FileName,
		&m.Type, &m.Version, &m.Digest, &m.Size, &m.Content, &m.CreatedAt,
	)
	return &m, err
}

func toArtifactModel(id scope.ID, position int, a artifact.Artifact, now time.Time) artifactModel {
	return artifactModel{
		ScopeKind:     string(id.Kind),
		ScopeInstance: id.Instance,
		Position:      position,
		Name:          a.Name,
		FileName:      a.FileName,
		Type:          string(a.Type),
		Version:       a.Version,
		Digest:        artifact.Digest(a.Content),
		Size:          int64(len(a.Content)),
		Content:       compress(a.Content),
		CreatedAt:     now.Unix(),
	}
}

// Deployment summarises the artifact mapping currently stored for a scope.
type Deployment struct {
	Scope         scope.ID
	ETag          string
	ArtifactCount int
	DeployedAt    time.Time
}

func scanDeployment(scanner interface{ Scan(...any) error }) (Deployment, error) {
	var (
		kind, instance string
		d              Deployment
		deployedAt     int64
	)
	if err := scanner.Scan(&kind, &instance, &d.ETag, &d.ArtifactCount, &deployedAt); err != nil {
		return Deployment{}, err
	}
	d.Scope = scope.New(scope.Kind(kind), instance)
	d.DeployedAt = time.Unix(deployedAt, 0)
	return d, nil
}
