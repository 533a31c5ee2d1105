package memory

import "context"

// Template is a quest template unlocked through the knowledge graph.
type Template struct {
	ID      string
	Title   string
	Kind    string // BASE or CHAIN
	Prereqs int    // number of prerequisite nodes
}

// GraphPort is the knowledge-graph memory. Best effort: callers log failures
// and continue.
type GraphPort interface {
	RecordEvent(ctx context.Context, userID, eventType string, metadata map[string]any) error
	AddRelationship(ctx context.Context, userID, relType, nodeID string) error
	ListUnlockableTemplates(ctx context.Context, userID string) ([]Template, error)
}

// VectorPort is the free-text memory. Best effort as well.
type VectorPort interface {
	AddMemory(ctx context.Context, userID, text string) error
	SearchMemories(ctx context.Context, userID, query string, limit int) ([]string, error)
}

// NopGraph is used when no graph database is configured.
type NopGraph struct{}

func (NopGraph) RecordEvent(context.Context, string, string, map[string]any) error { return nil }
func (NopGraph) AddRelationship(context.Context, string, string, string) error     { return nil }
func (NopGraph) ListUnlockableTemplates(context.Context, string) ([]Template, error) {
	return nil, nil
}

// NopVector is used when no redis is configured.
type NopVector struct{}

func (NopVector) AddMemory(context.Context, string, string) error { return nil }
func (NopVector) SearchMemories(context.Context, string, string, int) ([]string, error) {
	return nil, nil
}
