package pg

import (
	"context"
	"database/sql"
	"errors"
	"sort"
	"strconv"

	"github.com/lib/pq"

	"github.com/familyassistant/core/internal/store"
)

// DocumentStore is the Postgres-backed document/embedding store (§3.5, §4.8).
// The keyword half of HybridSearch follows the teacher's tsvector +
// plainto_tsquery pattern (see its team-task full-text search); the vector
// half is supplied by the caller (internal/ingest talks to Qdrant directly)
// and merged here with reciprocal rank fusion.
type DocumentStore struct {
	db *sql.DB
}

func NewDocumentStore(db *sql.DB) *DocumentStore {
	return &DocumentStore{db: db}
}

func (s *DocumentStore) InsertWithEmbeddings(ctx context.Context, doc *store.Document, embeddings []store.Embedding) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = store.Now()
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO documents (document_id, title, source_type, source_id, source_uri, file_path, doc_metadata, created_at)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
		 ON CONFLICT (document_id) DO UPDATE SET title = EXCLUDED.title, doc_metadata = EXCLUDED.doc_metadata`,
		doc.DocumentID, doc.Title, doc.SourceType, doc.SourceID, nilStr(doc.SourceURI), nilStr(doc.FilePath),
		jsonOrNull(doc.DocMetadata), doc.CreatedAt,
	)
	if err != nil {
		return err
	}

	for i := range embeddings {
		e := &embeddings[i]
		e.DocumentID = doc.DocumentID
		_, err = tx.ExecContext(ctx,
			`INSERT INTO document_embeddings (document_id, chunk_index, embedding_type, embedding_model, vector, content)
			 VALUES ($1,$2,$3,$4,$5,$6)`,
			e.DocumentID, e.ChunkIndex, e.EmbeddingType, e.EmbeddingModel, pq.Array(e.Vector), e.Content,
		)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (s *DocumentStore) Get(ctx context.Context, documentID string) (*store.Document, error) {
	var d store.Document
	var sourceURI, filePath *string
	var metadata []byte
	err := s.db.QueryRowContext(ctx,
		`SELECT document_id, title, source_type, source_id, source_uri, file_path, doc_metadata, created_at
		 FROM documents WHERE document_id = $1`, documentID,
	).Scan(&d.DocumentID, &d.Title, &d.SourceType, &d.SourceID, &sourceURI, &filePath, &metadata, &d.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, err
	}
	d.SourceURI = derefStr(sourceURI)
	d.FilePath = derefStr(filePath)
	if err := decodeJSONInto(metadata, &d.DocMetadata); err != nil {
		return nil, err
	}
	return &d, nil
}

// HybridSearch runs the tsvector keyword half of the search and fuses it
// with the caller-supplied vector hits via reciprocal rank fusion:
// score(doc) = sum over rankers of 1/(k + rank).
func (s *DocumentStore) HybridSearch(ctx context.Context, query string, vectorHits []store.SearchHit, k int, limit int) ([]store.SearchHit, error) {
	if k <= 0 {
		k = 60
	}
	if limit <= 0 {
		limit = 10
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT document_id, chunk_index, content,
		 ts_rank(to_tsvector('simple', content), plainto_tsquery('simple', $1)) AS rank
		 FROM document_embeddings
		 WHERE to_tsvector('simple', content) @@ plainto_tsquery('simple', $1)
		 ORDER BY rank DESC LIMIT $2`, query, limit*4)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	type scored struct {
		hit  store.SearchHit
		rank int
	}
	fused := map[string]*scored{}
	key := func(docID string, chunk int) string {
		return docID + ":" + strconv.Itoa(chunk)
	}

	rank := 1
	for rows.Next() {
		var docID, content string
		var chunk int
		var r float64
		if err := rows.Scan(&docID, &chunk, &content, &r); err != nil {
			return nil, err
		}
		fused[key(docID, chunk)] = &scored{
			hit:  store.SearchHit{DocumentID: docID, ChunkIndex: chunk, Content: content},
			rank: rank,
		}
		rank++
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	scores := map[string]float64{}
	for kk, v := range fused {
		scores[kk] += 1.0 / float64(k+v.rank)
	}
	for i, h := range vectorHits {
		kk := key(h.DocumentID, h.ChunkIndex)
		if _, ok := fused[kk]; !ok {
			fused[kk] = &scored{hit: h}
		}
		scores[kk] += 1.0 / float64(k+i+1)
	}

	out := make([]store.SearchHit, 0, len(fused))
	for kk, v := range fused {
		h := v.hit
		h.Score = scores[kk]
		out = append(out, h)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
