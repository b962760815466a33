package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"locus/internal/builder"
	locuserrors "locus/internal/errors"
	"locus/internal/kg"
	"locus/internal/retrieval"
)

// Meta table keys. A saved snapshot always writes metaCreatedAt, so its
// presence is the snapshot-exists check.
const (
	metaBuildID     = "build_id"
	metaCreatedAt   = "created_at"
	metaConfigHash  = "config_hash"
	metaReport      = "report"
	metaBM25K1      = "bm25_k1"
	metaBM25B       = "bm25_b"
	metaBM25AvgLen  = "bm25_avg_doc_length"
	metaEntityCount = "entity_count"
	metaEdgeCount   = "relationship_count"
)

// Snapshot bundles everything one build produces: the graph, the lexical
// index, and the report describing the build. ConfigHash records which
// configuration produced it so freshness checks can detect drift.
type Snapshot struct {
	Graph      *kg.Graph
	Index      *retrieval.BM25
	Report     *builder.Report
	ConfigHash string

	// CreatedAt is stamped by SaveSnapshot and populated on load.
	CreatedAt time.Time
}

// Info summarizes a stored snapshot without loading the payload rows.
type Info struct {
	BuildID       string    `json:"buildId"`
	CreatedAt     time.Time `json:"createdAt"`
	ConfigHash    string    `json:"configHash"`
	Entities      int       `json:"entities"`
	Relationships int       `json:"relationships"`
}

// SaveSnapshot replaces the stored snapshot wholesale inside one
// transaction. Readers holding the previous snapshot in memory are
// unaffected; the next LoadSnapshot sees the new one.
func (db *DB) SaveSnapshot(snap *Snapshot) error {
	if snap == nil || snap.Graph == nil || snap.Index == nil {
		return fmt.Errorf("snapshot must carry a graph and an index")
	}
	idxSnap, err := snap.Index.Snapshot()
	if err != nil {
		return err
	}

	createdAt := time.Now().UTC()
	err = db.WithTx(func(tx *sql.Tx) error {
		for _, table := range []string{"meta", "entities", "relationships", "bm25_docs", "bm25_terms"} {
			if _, err := tx.Exec("DELETE FROM " + table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}

		if err := insertEntities(tx, snap.Graph); err != nil {
			return err
		}
		if err := insertRelationships(tx, snap.Graph); err != nil {
			return err
		}
		if err := insertIndex(tx, idxSnap); err != nil {
			return err
		}
		return insertMeta(tx, snap, idxSnap, createdAt)
	})
	if err != nil {
		return err
	}

	snap.CreatedAt = createdAt
	db.logger.Info("snapshot saved", map[string]interface{}{
		"entities":      snap.Graph.Len(),
		"relationships": snap.Graph.EdgeLen(),
		"documents":     len(idxSnap.Documents),
		"path":          db.dbPath,
	})
	return nil
}

func insertEntities(tx *sql.Tx, g *kg.Graph) error {
	for _, id := range g.EntityIDs() {
		e, _ := g.Entity(id)
		payload, err := json.Marshal(e)
		if err != nil {
			return fmt.Errorf("failed to encode entity %s: %w", id, err)
		}
		_, err = tx.Exec(`
			INSERT INTO entities (id, kind, name, path, start_line, end_line, payload)
			VALUES (?, ?, ?, ?, ?, ?, ?)
		`, e.ID, string(e.Kind), e.Name, e.Path, e.StartLine, e.EndLine, compress(payload))
		if err != nil {
			return fmt.Errorf("failed to insert entity %s: %w", id, err)
		}
	}
	return nil
}

func insertRelationships(tx *sql.Tx, g *kg.Graph) error {
	for _, id := range g.RelationshipIDs() {
		r, _ := g.Relationship(id)
		var metadata interface{}
		if len(r.Metadata) > 0 {
			encoded, err := json.Marshal(r.Metadata)
			if err != nil {
				return fmt.Errorf("failed to encode relationship %s: %w", id, err)
			}
			metadata = string(encoded)
		}
		_, err := tx.Exec(`
			INSERT INTO relationships (id, kind, source_id, target_id, confidence, metadata)
			VALUES (?, ?, ?, ?, ?, ?)
		`, r.ID, string(r.Kind), r.SourceID, r.TargetID, r.Confidence, metadata)
		if err != nil {
			return fmt.Errorf("failed to insert relationship %s: %w", id, err)
		}
	}
	return nil
}

func insertIndex(tx *sql.Tx, idxSnap *retrieval.IndexSnapshot) error {
	for id, text := range idxSnap.Documents {
		_, err := tx.Exec(`
			INSERT INTO bm25_docs (entity_id, length, text)
			VALUES (?, ?, ?)
		`, id, idxSnap.DocLengths[id], compress([]byte(text)))
		if err != nil {
			return fmt.Errorf("failed to insert document %s: %w", id, err)
		}
	}
	for term, df := range idxSnap.DocFrequency {
		_, err := tx.Exec(`
			INSERT INTO bm25_terms (term, doc_frequency, idf)
			VALUES (?, ?, ?)
		`, term, df, idxSnap.IDF[term])
		if err != nil {
			return fmt.Errorf("failed to insert term %q: %w", term, err)
		}
	}
	return nil
}

func insertMeta(tx *sql.Tx, snap *Snapshot, idxSnap *retrieval.IndexSnapshot, createdAt time.Time) error {
	meta := map[string]string{
		metaCreatedAt:   createdAt.Format(time.RFC3339Nano),
		metaConfigHash:  snap.ConfigHash,
		metaBM25K1:      formatFloat(idxSnap.K1),
		metaBM25B:       formatFloat(idxSnap.B),
		metaBM25AvgLen:  formatFloat(idxSnap.AvgDocLength),
		metaEntityCount: strconv.Itoa(snap.Graph.Len()),
		metaEdgeCount:   strconv.Itoa(snap.Graph.EdgeLen()),
	}
	if snap.Report != nil {
		encoded, err := json.Marshal(snap.Report)
		if err != nil {
			return fmt.Errorf("failed to encode build report: %w", err)
		}
		meta[metaReport] = string(encoded)
		meta[metaBuildID] = snap.Report.BuildID
	}
	for key, value := range meta {
		if _, err := tx.Exec("INSERT INTO meta (key, value) VALUES (?, ?)", key, value); err != nil {
			return fmt.Errorf("failed to insert meta %s: %w", key, err)
		}
	}
	return nil
}

// LoadSnapshot reads the stored snapshot back into memory. It returns a
// SNAPSHOT_MISSING error when nothing has been saved yet and
// SNAPSHOT_CORRUPT when the stored rows cannot be decoded.
func (db *DB) LoadSnapshot() (*Snapshot, error) {
	meta, err := db.readMeta()
	if err != nil {
		return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, err)
	}
	if _, ok := meta[metaCreatedAt]; !ok {
		return nil, locuserrors.NewSnapshotMissing(db.dbPath)
	}

	snap := &Snapshot{ConfigHash: meta[metaConfigHash]}

	createdAt, err := time.Parse(time.RFC3339Nano, meta[metaCreatedAt])
	if err != nil {
		return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, fmt.Errorf("invalid created_at: %w", err))
	}
	snap.CreatedAt = createdAt

	if reportJSON, ok := meta[metaReport]; ok {
		var report builder.Report
		if err := json.Unmarshal([]byte(reportJSON), &report); err != nil {
			return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, fmt.Errorf("invalid report: %w", err))
		}
		snap.Report = &report
	}

	graph, err := db.loadGraph()
	if err != nil {
		return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, err)
	}
	snap.Graph = graph

	index, err := db.loadIndex(meta)
	if err != nil {
		return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, err)
	}
	snap.Index = index

	db.logger.Debug("snapshot loaded", map[string]interface{}{
		"entities":      graph.Len(),
		"relationships": graph.EdgeLen(),
		"created_at":    meta[metaCreatedAt],
	})
	return snap, nil
}

// HasSnapshot reports whether a snapshot has been saved.
func (db *DB) HasSnapshot() (bool, error) {
	var value string
	err := db.QueryRow("SELECT value FROM meta WHERE key = ?", metaCreatedAt).Scan(&value)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// SnapshotInfo returns stored provenance without decompressing payloads.
func (db *DB) SnapshotInfo() (*Info, error) {
	meta, err := db.readMeta()
	if err != nil {
		return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, err)
	}
	createdAtText, ok := meta[metaCreatedAt]
	if !ok {
		return nil, locuserrors.NewSnapshotMissing(db.dbPath)
	}
	createdAt, err := time.Parse(time.RFC3339Nano, createdAtText)
	if err != nil {
		return nil, locuserrors.NewSnapshotCorrupt(db.dbPath, fmt.Errorf("invalid created_at: %w", err))
	}

	info := &Info{
		BuildID:    meta[metaBuildID],
		CreatedAt:  createdAt,
		ConfigHash: meta[metaConfigHash],
	}
	info.Entities, _ = strconv.Atoi(meta[metaEntityCount])
	info.Relationships, _ = strconv.Atoi(meta[metaEdgeCount])
	return info, nil
}

func (db *DB) readMeta() (map[string]string, error) {
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("failed to read meta: %w", err)
	}
	defer rows.Close()

	meta := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, fmt.Errorf("failed to scan meta row: %w", err)
		}
		meta[key] = value
	}
	return meta, rows.Err()
}

func (db *DB) loadGraph() (*kg.Graph, error) {
	g := kg.NewGraph()

	rows, err := db.Query("SELECT id, payload FROM entities ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var id string
		var payload []byte
		if err := rows.Scan(&id, &payload); err != nil {
			return nil, fmt.Errorf("failed to scan entity row: %w", err)
		}
		plain, err := decompress(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress entity %s: %w", id, err)
		}
		var e kg.Entity
		if err := json.Unmarshal(plain, &e); err != nil {
			return nil, fmt.Errorf("failed to decode entity %s: %w", id, err)
		}
		if err := g.AddEntity(&e); err != nil {
			return nil, fmt.Errorf("stored entity %s rejected: %w", id, err)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read entities: %w", err)
	}

	relRows, err := db.Query("SELECT id, kind, source_id, target_id, confidence, metadata FROM relationships ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}
	defer relRows.Close()
	for relRows.Next() {
		var id, kind, sourceID, targetID string
		var confidence float64
		var metadata sql.NullString
		if err := relRows.Scan(&id, &kind, &sourceID, &targetID, &confidence, &metadata); err != nil {
			return nil, fmt.Errorf("failed to scan relationship row: %w", err)
		}
		r := &kg.Relationship{
			ID:         id,
			Kind:       kg.RelationshipKind(kind),
			SourceID:   sourceID,
			TargetID:   targetID,
			Confidence: confidence,
		}
		if metadata.Valid {
			if err := json.Unmarshal([]byte(metadata.String), &r.Metadata); err != nil {
				return nil, fmt.Errorf("failed to decode relationship %s metadata: %w", id, err)
			}
		}
		if err := g.AddRelationship(r); err != nil {
			return nil, fmt.Errorf("stored relationship %s rejected: %w", id, err)
		}
	}
	if err := relRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read relationships: %w", err)
	}

	return g, nil
}

func (db *DB) loadIndex(meta map[string]string) (*retrieval.BM25, error) {
	idxSnap := &retrieval.IndexSnapshot{
		Documents:    make(map[string]string),
		DocLengths:   make(map[string]int),
		DocFrequency: make(map[string]int),
		IDF:          make(map[string]float64),
	}

	var err error
	if idxSnap.K1, err = parseFloat(meta[metaBM25K1]); err != nil {
		return nil, fmt.Errorf("invalid bm25_k1: %w", err)
	}
	if idxSnap.B, err = parseFloat(meta[metaBM25B]); err != nil {
		return nil, fmt.Errorf("invalid bm25_b: %w", err)
	}
	if idxSnap.AvgDocLength, err = parseFloat(meta[metaBM25AvgLen]); err != nil {
		return nil, fmt.Errorf("invalid bm25_avg_doc_length: %w", err)
	}

	docRows, err := db.Query("SELECT entity_id, length, text FROM bm25_docs")
	if err != nil {
		return nil, fmt.Errorf("failed to read bm25_docs: %w", err)
	}
	defer docRows.Close()
	for docRows.Next() {
		var id string
		var length int
		var text []byte
		if err := docRows.Scan(&id, &length, &text); err != nil {
			return nil, fmt.Errorf("failed to scan bm25 document row: %w", err)
		}
		plain, err := decompress(text)
		if err != nil {
			return nil, fmt.Errorf("failed to decompress bm25 document %s: %w", id, err)
		}
		idxSnap.Documents[id] = string(plain)
		idxSnap.DocLengths[id] = length
	}
	if err := docRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bm25_docs: %w", err)
	}

	termRows, err := db.Query("SELECT term, doc_frequency, idf FROM bm25_terms")
	if err != nil {
		return nil, fmt.Errorf("failed to read bm25_terms: %w", err)
	}
	defer termRows.Close()
	for termRows.Next() {
		var term string
		var df int
		var idf float64
		if err := termRows.Scan(&term, &df, &idf); err != nil {
			return nil, fmt.Errorf("failed to scan bm25 term row: %w", err)
		}
		idxSnap.DocFrequency[term] = df
		idxSnap.IDF[term] = idf
	}
	if err := termRows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read bm25_terms: %w", err)
	}

	return retrieval.Restore(idxSnap), nil
}

// formatFloat round-trips exactly: -1 precision emits the shortest decimal
// that parses back to the same float64.
func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func parseFloat(s string) (float64, error) {
	if s == "" {
		return 0, nil
	}
	return strconv.ParseFloat(s, 64)
}
