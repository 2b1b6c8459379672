package testutil

import "github.com/zjrosen/modreg/internal/scope"

// Standard scopes used by the preset fixture.
var (
	Process1 = scope.New("process", "1")
	Process2 = scope.New("process", "2")
	TenantA  = scope.New("tenant", "a")
)

// WithStandardArtifacts loads the shared fixture:
//
//	global      GlobalResource1 (module Shared, module GlobalClass1), banner.txt
//	process/1   LocalResource1  (module LocalClass1, module Shared)
//	process/2   nothing
//	tenant/a    TenantResource  (module TenantClass)
func (s *MemSource) WithStandardArtifacts() *MemSource {
	s.Set(scope.Global,
		Module("Shared", "shared from global", Version("g1")),
		Module("GlobalClass1", "global class", Version("g1")),
		Resource("banner.txt", "global banner", Version("g1")),
	)
	s.Set(Process1,
		Module("LocalClass1", "local class", FileName("LocalResource1.mod"), Version("p1")),
		Module("Shared", "shared from process 1", Version("p1")),
	)
	s.Set(TenantA,
		Module("TenantClass", "tenant class", FileName("TenantResource.mod"), Version("t1")),
	)
	return s
}
