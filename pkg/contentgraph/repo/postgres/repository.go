package postgres

import (
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/tendant/content-graph/pkg/contentgraph"
)

//go:embed schema.sql
var schema string

// DBTX is an interface that allows us to use either a database connection or a transaction
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Repository implements contentgraph.Repository using PostgreSQL
type Repository struct {
	db DBTX
}

// New creates a new PostgreSQL repository
func New(db DBTX) *Repository {
	return &Repository{db: db}
}

// NewWithPool creates a new PostgreSQL repository with connection pool
func NewWithPool(pool *pgxpool.Pool) *Repository {
	return &Repository{db: pool}
}

var _ contentgraph.Repository = (*Repository)(nil)

// Migrate creates the tables and indexes if they do not exist.
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return handlePostgresError("migrate", err)
	}
	return nil
}

// handlePostgresError maps driver errors to contentgraph errors. The original
// error stays in the chain.
func handlePostgresError(operation string, err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "23505": // unique_violation
			return fmt.Errorf("%s: duplicate entry (%s): %w", operation, pgErr.ConstraintName, err)
		case "23503": // foreign_key_violation
			return fmt.Errorf("%s: referenced record not found: %w", operation, err)
		case "23502": // not_null_violation
			return fmt.Errorf("%s: required field %s is missing: %w", operation, pgErr.ColumnName, err)
		case "22P02": // invalid_text_representation
			return fmt.Errorf("%s: %w: %s", operation, contentgraph.ErrInvalidContent, pgErr.Message)
		case "42P01": // undefined_table
			return fmt.Errorf("%s: table does not exist - database migration required: %w", operation, err)
		default:
			return fmt.Errorf("database error in %s: %s (code: %s): %w", operation, pgErr.Message, pgErr.Code, err)
		}
	}
	return fmt.Errorf("database error in %s: %w", operation, err)
}

// Content operations

const contentColumns = `id, type, title, url, markdown, blocks, features, layer_id, creator_id, tags, created_at, updated_at`

func scanContent(row pgx.Row) (*contentgraph.Content, error) {
	var (
		content contentgraph.Content
		blocks  []byte
	)
	err := row.Scan(
		&content.ID, &content.Type, &content.Title, &content.URL, &content.Markdown,
		&blocks, &content.Features, &content.LayerID, &content.CreatorID, &content.Tags,
		&content.CreatedAt, &content.UpdatedAt)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(blocks, &content.Blocks); err != nil {
		return nil, fmt.Errorf("decode blocks of content %s: %w", content.ID, err)
	}
	return &content, nil
}

func (r *Repository) GetContent(ctx context.Context, id uuid.UUID) (*contentgraph.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM content WHERE id = $1`

	content, err := scanContent(r.db.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentgraph.ErrContentNotFound
		}
		return nil, handlePostgresError("get content", err)
	}
	return content, nil
}

func (r *Repository) SaveContent(ctx context.Context, content *contentgraph.Content) error {
	blocks := content.Blocks
	if blocks == nil {
		blocks = []contentgraph.Block{}
	}
	blocksJSON, err := json.Marshal(blocks)
	if err != nil {
		return fmt.Errorf("encode blocks of content %s: %w", content.ID, err)
	}

	query := `
		INSERT INTO content (` + contentColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		ON CONFLICT (id) DO UPDATE SET
			type = EXCLUDED.type, title = EXCLUDED.title, url = EXCLUDED.url,
			markdown = EXCLUDED.markdown, blocks = EXCLUDED.blocks,
			features = EXCLUDED.features, layer_id = EXCLUDED.layer_id,
			creator_id = EXCLUDED.creator_id, tags = EXCLUDED.tags,
			updated_at = EXCLUDED.updated_at`

	_, err = r.db.Exec(ctx, query,
		content.ID, content.Type, content.Title, content.URL, content.Markdown,
		blocksJSON, nonNilIDs(content.Features), content.LayerID, content.CreatorID,
		nonNilStrings(content.Tags), content.CreatedAt, content.UpdatedAt)
	return handlePostgresError("save content", err)
}

func (r *Repository) DeleteContent(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM content WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete content", err)
	}
	if tag.RowsAffected() == 0 {
		return contentgraph.ErrContentNotFound
	}
	return nil
}

func (r *Repository) ListContent(ctx context.Context, filter contentgraph.ContentFilter) ([]*contentgraph.Content, error) {
	query, args := buildListQuery(filter)
	return r.queryContents(ctx, "list content", query, args...)
}

// buildListQuery builds the filtered, newest-first content query.
func buildListQuery(filter contentgraph.ContentFilter) (string, []interface{}) {
	var (
		sb       strings.Builder
		args     []interface{}
		argIndex = 1
	)
	sb.WriteString(`SELECT ` + contentColumns + ` FROM content WHERE 1=1`)

	if filter.LayerID != nil {
		fmt.Fprintf(&sb, " AND layer_id = $%d", argIndex)
		args = append(args, *filter.LayerID)
		argIndex++
	}
	if filter.CreatorID != nil {
		fmt.Fprintf(&sb, " AND creator_id = $%d", argIndex)
		args = append(args, *filter.CreatorID)
		argIndex++
	}
	if filter.Tag != "" {
		fmt.Fprintf(&sb, " AND $%d = ANY(tags)", argIndex)
		args = append(args, filter.Tag)
		argIndex++
	}

	sb.WriteString(" ORDER BY created_at DESC, id")

	if filter.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT $%d", argIndex)
		args = append(args, filter.Limit)
		argIndex++
	}
	if filter.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET $%d", argIndex)
		args = append(args, filter.Offset)
	}
	return sb.String(), args
}

func (r *Repository) ListContentByFeature(ctx context.Context, featureID uuid.UUID) ([]*contentgraph.Content, error) {
	query := `SELECT ` + contentColumns + ` FROM content WHERE $1 = ANY(features)`
	return r.queryContents(ctx, "list content by feature", query, featureID)
}

func (r *Repository) queryContents(ctx context.Context, operation, query string, args ...interface{}) ([]*contentgraph.Content, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, handlePostgresError(operation, err)
	}
	defer rows.Close()

	var result []*contentgraph.Content
	for rows.Next() {
		content, err := scanContent(rows)
		if err != nil {
			return nil, handlePostgresError(operation, err)
		}
		result = append(result, content)
	}
	if err := rows.Err(); err != nil {
		return nil, handlePostgresError(operation, err)
	}
	return result, nil
}

// Feature operations

func (r *Repository) GetFeature(ctx context.Context, id uuid.UUID) (*contentgraph.Feature, error) {
	query := `SELECT id, title, contents, created_at, updated_at FROM feature WHERE id = $1`

	var feature contentgraph.Feature
	err := r.db.QueryRow(ctx, query, id).Scan(
		&feature.ID, &feature.Title, &feature.Contents, &feature.CreatedAt, &feature.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentgraph.ErrFeatureNotFound
		}
		return nil, handlePostgresError("get feature", err)
	}
	return &feature, nil
}

func (r *Repository) SaveFeature(ctx context.Context, feature *contentgraph.Feature) error {
	query := `
		INSERT INTO feature (id, title, contents, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title, contents = EXCLUDED.contents,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		feature.ID, feature.Title, nonNilIDs(feature.Contents), feature.CreatedAt, feature.UpdatedAt)
	return handlePostgresError("save feature", err)
}

func (r *Repository) DeleteFeature(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM feature WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete feature", err)
	}
	if tag.RowsAffected() == 0 {
		return contentgraph.ErrFeatureNotFound
	}
	return nil
}

// Image operations

func (r *Repository) GetImage(ctx context.Context, id uuid.UUID) (*contentgraph.Image, error) {
	query := `
		SELECT id, creator_id, content_id, state, file_name, file_url, uploaded_at, updated_at
		FROM image WHERE id = $1`

	var img contentgraph.Image
	err := r.db.QueryRow(ctx, query, id).Scan(
		&img.ID, &img.CreatorID, &img.ContentID, &img.State,
		&img.File.Name, &img.File.URL, &img.UploadedAt, &img.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, contentgraph.ErrImageNotFound
		}
		return nil, handlePostgresError("get image", err)
	}
	return &img, nil
}

func (r *Repository) SaveImage(ctx context.Context, img *contentgraph.Image) error {
	query := `
		INSERT INTO image (id, creator_id, content_id, state, file_name, file_url, uploaded_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO UPDATE SET
			content_id = EXCLUDED.content_id, state = EXCLUDED.state,
			file_name = EXCLUDED.file_name, file_url = EXCLUDED.file_url,
			updated_at = EXCLUDED.updated_at`

	_, err := r.db.Exec(ctx, query,
		img.ID, img.CreatorID, img.ContentID, img.State,
		img.File.Name, img.File.URL, img.UploadedAt, img.UpdatedAt)
	return handlePostgresError("save image", err)
}

func (r *Repository) DeleteImage(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM image WHERE id = $1`, id)
	if err != nil {
		return handlePostgresError("delete image", err)
	}
	if tag.RowsAffected() == 0 {
		return contentgraph.ErrImageNotFound
	}
	return nil
}

func nonNilIDs(ids []uuid.UUID) []uuid.UUID {
	if ids == nil {
		return []uuid.UUID{}
	}
	return ids
}

func nonNilStrings(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
