package txgraph

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

var ErrMissingURI = errors.New("txgraph: neo4j uri is required")

// Exporter publishes a wallet's transaction graph for investigators.
type Exporter interface {
	Export(ctx context.Context, subject string, g Graph) error
}

// Options configures the Neo4j exporter.
type Options struct {
	URI      string
	Username string
	Password string
	Database string
}

// Neo4jExporter writes (:Wallet)-[:SENT {count}]->(:Wallet) relationships.
type Neo4jExporter struct {
	driver   neo4j.DriverWithContext
	database string
}

// NewNeo4jExporter connects to Neo4j (or any Bolt-compatible endpoint).
func NewNeo4jExporter(ctx context.Context, opts Options) (*Neo4jExporter, error) {
	if opts.URI == "" {
		return nil, ErrMissingURI
	}

	auth := neo4j.NoAuth()
	if opts.Username != "" {
		auth = neo4j.BasicAuth(opts.Username, opts.Password, "")
	}

	driver, err := neo4j.NewDriverWithContext(opts.URI, auth)
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("verify graph connectivity: %w", err)
	}
	return &Neo4jExporter{driver: driver, database: opts.Database}, nil
}

const exportCypher = `
MERGE (s:Wallet {address: $subject})
SET s.flaggedAt = $flaggedAt
WITH s
UNWIND $edges AS e
MERGE (a:Wallet {address: e.from})
MERGE (b:Wallet {address: e.to})
MERGE (a)-[r:SENT]->(b)
SET r.count = e.weight`

// Export upserts every edge of g in one write transaction.
func (x *Neo4jExporter) Export(ctx context.Context, subject string, g Graph) error {
	session := x.driver.NewSession(ctx, neo4j.SessionConfig{
		DatabaseName: x.database,
		AccessMode:   neo4j.AccessModeWrite,
	})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, exportCypher, exportParams(subject, g, time.Now().UTC()))
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return fmt.Errorf("export graph for %s: %w", subject, err)
	}
	return nil
}

// Close releases the driver.
func (x *Neo4jExporter) Close(ctx context.Context) error {
	return x.driver.Close(ctx)
}

func exportParams(subject string, g Graph, at time.Time) map[string]any {
	edges := g.Edges()
	rows := make([]map[string]any, 0, len(edges))
	for _, e := range edges {
		rows = append(rows, map[string]any{"from": e.From, "to": e.To, "weight": int64(e.Weight)})
	}
	return map[string]any{
		"subject":   subject,
		"flaggedAt": at.Format(time.RFC3339),
		"edges":     rows,
	}
}

// MemoryExporter records exports in memory.
type MemoryExporter struct {
	mu      sync.Mutex
	exports map[string][]Edge
}

// NewMemoryExporter creates an empty in-memory exporter.
func NewMemoryExporter() *MemoryExporter {
	return &MemoryExporter{exports: make(map[string][]Edge)}
}

func (m *MemoryExporter) Export(_ context.Context, subject string, g Graph) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.exports[subject] = g.Edges()
	return nil
}

// Exported returns the edges last exported for subject.
func (m *MemoryExporter) Exported(subject string) ([]Edge, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	edges, ok := m.exports[subject]
	return edges, ok
}
