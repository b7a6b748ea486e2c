package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/Pinaire1/jujitsu-app/internal/models"
)

var ErrNotFound = errors.New("analysis not found")

// Store persists analysis results keyed by user and video. Re-analysing the
// same video replaces the earlier row and keeps its id.
type Store struct {
	db *sql.DB
}

func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

const upsertAnalysis = `
INSERT INTO video_analysis
    (id, user_id, video_id, video_path, video_digest, source, fallback_reason, partial, insights, analyzed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (user_id, video_id) DO UPDATE SET
    video_path      = EXCLUDED.video_path,
    video_digest    = EXCLUDED.video_digest,
    source          = EXCLUDED.source,
    fallback_reason = EXCLUDED.fallback_reason,
    partial         = EXCLUDED.partial,
    insights        = EXCLUDED.insights,
    analyzed_at     = EXCLUDED.analyzed_at
RETURNING id`

const selectAnalysis = `
SELECT id, user_id, video_id, video_path, video_digest, source, fallback_reason, partial, insights, analyzed_at
FROM video_analysis`

// Save upserts rec and sets rec.ID to the stored id.
func (s *Store) Save(ctx context.Context, rec *models.AnalysisRecord) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.AnalyzedAt.IsZero() {
		rec.AnalyzedAt = time.Now().UTC()
	}
	insights, err := json.Marshal(rec.Insights)
	if err != nil {
		return fmt.Errorf("encode insights: %w", err)
	}

	var id string
	err = s.db.QueryRowContext(ctx, upsertAnalysis,
		rec.ID, rec.UserID, rec.VideoID, rec.VideoPath, rec.VideoDigest,
		string(rec.Source), string(rec.FallbackReason), rec.Partial, insights, rec.AnalyzedAt,
	).Scan(&id)
	if err != nil {
		return fmt.Errorf("save analysis %s/%s: %w", rec.UserID, rec.VideoID, err)
	}
	rec.ID = id
	return nil
}

func (s *Store) Get(ctx context.Context, userID, videoID string) (*models.AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, selectAnalysis+` WHERE user_id = $1 AND video_id = $2`, userID, videoID)
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analysis %s/%s: %w", userID, videoID, err)
	}
	return rec, nil
}

// ListByUser returns the newest analyses first. limit <= 0 means 50.
func (s *Store) ListByUser(ctx context.Context, userID string, limit int) ([]*models.AnalysisRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, selectAnalysis+` WHERE user_id = $1 ORDER BY analyzed_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("list analyses for %s: %w", userID, err)
	}
	defer rows.Close()

	var out []*models.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("list analyses for %s: %w", userID, err)
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (s *Store) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (*models.AnalysisRecord, error) {
	var (
		rec      models.AnalysisRecord
		source   string
		reason   string
		insights []byte
	)
	if err := row.Scan(&rec.ID, &rec.UserID, &rec.VideoID, &rec.VideoPath, &rec.VideoDigest,
		&source, &reason, &rec.Partial, &insights, &rec.AnalyzedAt); err != nil {
		return nil, err
	}
	rec.Source = models.FeedbackSource(source)
	rec.FallbackReason = models.FallbackReason(reason)
	if err := json.Unmarshal(insights, &rec.Insights); err != nil {
		return nil, fmt.Errorf("decode insights: %w", err)
	}
	return &rec, nil
}
