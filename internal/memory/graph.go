package memory

import (
	"context"
	"fmt"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/chris/questd/internal/logger"
)

// Neo4jGraph implements GraphPort against a neo4j instance.
type Neo4jGraph struct {
	driver   neo4j.DriverWithContext
	database string
	log      *logger.Logger
}

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

// NewNeo4jGraph connects and verifies connectivity. An empty URI returns
// (nil, nil) so callers can fall back to the nop adapter.
func NewNeo4jGraph(cfg Neo4jConfig, log *logger.Logger) (*Neo4jGraph, error) {
	if cfg.URI == "" {
		return nil, nil
	}
	auth := neo4j.BasicAuth(cfg.User, cfg.Password, "")
	driver, err := neo4j.NewDriverWithContext(cfg.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("graph: init driver: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("graph: verify connectivity: %w", err)
	}

	return &Neo4jGraph{
		driver:   driver,
		database: cfg.Database,
		log:      log.With("component", "graph"),
	}, nil
}

func (g *Neo4jGraph) Close(ctx context.Context) error {
	return g.driver.Close(ctx)
}

func (g *Neo4jGraph) session(ctx context.Context) neo4j.SessionWithContext {
	return g.driver.NewSession(ctx, neo4j.SessionConfig{DatabaseName: g.database})
}

// RecordEvent appends an event node linked to the user. Events are never
// updated or deleted.
func (g *Neo4jGraph) RecordEvent(ctx context.Context, userID, eventType string, metadata map[string]any) error {
	sess := g.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, `
			MERGE (u:User {id: $user})
			CREATE (e:Event {type: $type, meta: $meta, at: datetime()})
			CREATE (u)-[:EMITTED]->(e)`,
			map[string]any{"user": userID, "type": eventType, "meta": fmt.Sprint(metadata)})
	})
	if err != nil {
		return fmt.Errorf("graph: record event: %w", err)
	}
	return nil
}

// AddRelationship links the user to a graph node, e.g. a COMPLETED edge to a
// quest template.
func (g *Neo4jGraph) AddRelationship(ctx context.Context, userID, relType, nodeID string) error {
	if relType != "COMPLETED" && relType != "STARTED" {
		return fmt.Errorf("graph: unsupported relationship %q", relType)
	}
	sess := g.session(ctx)
	defer sess.Close(ctx)

	_, err := sess.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx, fmt.Sprintf(`
			MERGE (u:User {id: $user})
			MERGE (n:Template {id: $node})
			MERGE (u)-[:%s]->(n)`, relType),
			map[string]any{"user": userID, "node": nodeID})
	})
	if err != nil {
		return fmt.Errorf("graph: add relationship: %w", err)
	}
	return nil
}

// ListUnlockableTemplates returns templates whose prerequisites the user has
// all completed and which the user has not completed yet.
func (g *Neo4jGraph) ListUnlockableTemplates(ctx context.Context, userID string) ([]Template, error) {
	sess := g.session(ctx)
	defer sess.Close(ctx)

	records, err := sess.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, `
			MATCH (t:Template)
			WHERE NOT (:User {id: $user})-[:COMPLETED]->(t)
			AND NOT EXISTS {
				MATCH (t)-[:REQUIRES]->(p:Template)
				WHERE NOT (:User {id: $user})-[:COMPLETED]->(p)
			}
			OPTIONAL MATCH (t)-[:REQUIRES]->(pre:Template)
			RETURN t.id AS id, t.title AS title, t.kind AS kind, count(pre) AS prereqs`,
			map[string]any{"user": userID})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		return nil, fmt.Errorf("graph: list unlockables: %w", err)
	}

	var out []Template
	for _, rec := range records.([]*neo4j.Record) {
		t := Template{}
		if v, ok := rec.Get("id"); ok {
			t.ID, _ = v.(string)
		}
		if v, ok := rec.Get("title"); ok {
			t.Title, _ = v.(string)
		}
		if v, ok := rec.Get("kind"); ok {
			t.Kind, _ = v.(string)
		}
		if v, ok := rec.Get("prereqs"); ok {
			if n, ok := v.(int64); ok {
				t.Prereqs = int(n)
			}
		}
		out = append(out, t)
	}
	return out, nil
}
