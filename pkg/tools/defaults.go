package tools

import "tuxpilot/pkg/proto"

// DefaultRegistry assembles the standard tool set for a run against the
// given system profile.
func DefaultRegistry(profile proto.SystemProfile, maxSearchResults int) *Registry {
	r := NewRegistry()
	r.Register(NewClockTool())
	r.Register(NewCalculatorTool())
	r.Register(NewWebSearchTool(maxSearchResults))
	r.Register(NewWikiTool(maxSearchResults))
	r.Register(NewManpageTool())
	r.Register(NewPackageLookupTool(profile))
	return r
}
