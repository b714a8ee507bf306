package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kumii/tender-finder/internal/models"
)

// PrivateIDPrefix namespaces locally-minted ids away from upstream ocids.
const PrivateIDPrefix = "private-"

var ErrNotFound = errors.New("tender not found")

// Store persists user-entered private tenders.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

const selectCols = `id, title, description, buyer_name, province, category, status,
	opening_date, closing_date, documents, briefing, created_at`

// CreatePrivateTender stores the record and returns it with its assigned
// id and creation timestamp. Records without an id get a minted one;
// caller-supplied ids are prefixed if needed so they can never collide with
// upstream ocids.
func (s *Store) CreatePrivateTender(ctx context.Context, rec models.ProcurementRecord) (models.ProcurementRecord, error) {
	rec.ID = EnsurePrivateID(rec.ID)
	rec.IsPrivate = true
	now := time.Now().UTC()
	rec.CreatedAt = &now

	docsJSON, err := json.Marshal(rec.Documents)
	if err != nil {
		return rec, fmt.Errorf("encode documents: %w", err)
	}
	var briefingJSON []byte
	if rec.Briefing != nil {
		if briefingJSON, err = json.Marshal(rec.Briefing); err != nil {
			return rec, fmt.Errorf("encode briefing: %w", err)
		}
	}

	_, err = s.pool.Exec(ctx, `
		INSERT INTO private_tenders (id, title, description, buyer_name, province, category, status,
			opening_date, closing_date, documents, briefing, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, rec.ID, rec.Title, rec.Description, rec.BuyerName, rec.Province, rec.Category, rec.Status,
		rec.OpeningDate, rec.ClosingDate, docsJSON, briefingJSON, rec.CreatedAt)
	if err != nil {
		return rec, fmt.Errorf("insert private tender: %w", err)
	}

	return rec, nil
}

// ListPrivateTenders returns all private tenders, newest first.
func (s *Store) ListPrivateTenders(ctx context.Context) ([]models.ProcurementRecord, error) {
	rows, err := s.pool.Query(ctx, "SELECT "+selectCols+" FROM private_tenders ORDER BY created_at DESC")
	if err != nil {
		return nil, fmt.Errorf("query private tenders: %w", err)
	}
	defer rows.Close()

	var records []models.ProcurementRecord
	for rows.Next() {
		rec, err := scanPrivateTender(rows.Scan)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// DeletePrivateTender removes a tender by id.
func (s *Store) DeletePrivateTender(ctx context.Context, id string) error {
	tag, err := s.pool.Exec(ctx, "DELETE FROM private_tenders WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete private tender: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPrivateTender(scan func(dest ...any) error) (models.ProcurementRecord, error) {
	var rec models.ProcurementRecord
	var docsRaw, briefingRaw []byte
	var createdAt time.Time

	err := scan(&rec.ID, &rec.Title, &rec.Description, &rec.BuyerName, &rec.Province,
		&rec.Category, &rec.Status, &rec.OpeningDate, &rec.ClosingDate,
		&docsRaw, &briefingRaw, &createdAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return rec, ErrNotFound
		}
		return rec, fmt.Errorf("scan private tender: %w", err)
	}

	rec.IsPrivate = true
	rec.CreatedAt = &createdAt
	if len(docsRaw) > 0 {
		_ = json.Unmarshal(docsRaw, &rec.Documents)
	}
	if len(briefingRaw) > 0 {
		var briefing models.BriefingSession
		if json.Unmarshal(briefingRaw, &briefing) == nil {
			rec.Briefing = &briefing
		}
	}
	return rec, nil
}

// EnsurePrivateID mints a prefixed UUID when the id is empty, and prefixes
// a caller-supplied id that lacks the namespace.
func EnsurePrivateID(id string) string {
	id = strings.TrimSpace(id)
	if id == "" {
		return PrivateIDPrefix + uuid.New().String()
	}
	if !strings.HasPrefix(id, PrivateIDPrefix) {
		return PrivateIDPrefix + id
	}
	return id
}
