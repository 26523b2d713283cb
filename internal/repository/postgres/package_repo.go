package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/pkg-registry/internal/errs"
	"github.com/and161185/pkg-registry/internal/model"
)

// PackageRepo implements PackageRepository using PostgreSQL.
type PackageRepo struct{ db *DB }

// NewPackageRepo constructs a package repository.
func NewPackageRepo(db *DB) *PackageRepo { return &PackageRepo{db: db} }

const packageCols = `id, name, namespace_id, author_id, maintainers, description, license, copyright, tags, deprecated, downloads, versions, rev, created_at, updated_at`

func scanPackage(row pgx.Row) (*model.Package, error) {
	var (
		p                  model.Package
		id, nsID, authorID uuid.UUID
		maints             []string
		versions           []byte
	)
	err := row.Scan(&id, &p.Name, &nsID, &authorID, &maints, &p.Description, &p.License, &p.Copyright,
		&p.Tags, &p.Deprecated, &p.Downloads, &versions, &p.Rev, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	p.ID = model.PackageID(id)
	p.NamespaceID = model.NamespaceID(nsID)
	p.AuthorID = model.UserID(authorID)
	p.Maintainers = textToUserIDs(maints)
	if len(versions) > 0 {
		if err := json.Unmarshal(versions, &p.Versions); err != nil {
			return nil, fmt.Errorf("decode versions of %s: %w", p.Name, err)
		}
	}
	return &p, nil
}

func encodeVersions(vs []model.Version) ([]byte, error) {
	if vs == nil {
		vs = []model.Version{}
	}
	return json.Marshal(vs)
}

// Create inserts a package row with its initial version list.
func (r *PackageRepo) Create(ctx context.Context, p *model.Package) error {
	versions, err := encodeVersions(p.Versions)
	if err != nil {
		return err
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
	const q = `
INSERT INTO packages (id, name, namespace_id, author_id, maintainers, description, license, copyright, tags, deprecated, versions, rev)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 1)`
	_, err = r.db.Pool.Exec(ctx, q, uuid.UUID(p.ID), p.Name, uuid.UUID(p.NamespaceID), uuid.UUID(p.AuthorID),
		userIDsToText(p.Maintainers), p.Description, p.License, p.Copyright, p.Tags, p.Deprecated, versions)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	if err == nil {
		p.Rev = 1
	}
	return err
}

// GetByID selects a package by ID.
func (r *PackageRepo) GetByID(ctx context.Context, id model.PackageID) (*model.Package, error) {
	return scanPackage(r.db.Pool.QueryRow(ctx, `SELECT `+packageCols+` FROM packages WHERE id=$1`, uuid.UUID(id)))
}

// GetByName selects a package by namespace and name.
func (r *PackageRepo) GetByName(ctx context.Context, nsID model.NamespaceID, name string) (*model.Package, error) {
	return scanPackage(r.db.Pool.QueryRow(ctx,
		`SELECT `+packageCols+` FROM packages WHERE namespace_id=$1 AND name=$2`, uuid.UUID(nsID), name))
}

// ReplaceVersions writes the version list only if nobody changed the row since baseRev.
func (r *PackageRepo) ReplaceVersions(ctx context.Context, id model.PackageID, baseRev int64, versions []model.Version) (int64, error) {
	enc, err := encodeVersions(versions)
	if err != nil {
		return 0, err
	}
	const q = `
UPDATE packages SET versions = $3, rev = rev + 1, updated_at = now()
WHERE id = $1 AND rev = $2
RETURNING rev`
	var rev int64
	if err := r.db.Pool.QueryRow(ctx, q, uuid.UUID(id), baseRev, enc).Scan(&rev); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, errs.ErrVersionConflict
		}
		return 0, err
	}
	return rev, nil
}

// SetDeprecated updates the deprecation flag.
func (r *PackageRepo) SetDeprecated(ctx context.Context, id model.PackageID, deprecated bool) error {
	const q = `UPDATE packages SET deprecated = $2, updated_at = now() WHERE id = $1`
	tag, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), deprecated)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// AddMaintainer appends a maintainer without duplicating it.
func (r *PackageRepo) AddMaintainer(ctx context.Context, id model.PackageID, userID model.UserID) error {
	const q = `
UPDATE packages SET maintainers = array_append(maintainers, $2), updated_at = now()
WHERE id = $1 AND NOT ($2 = ANY(maintainers))`
	_, err := r.db.Pool.Exec(ctx, q, uuid.UUID(id), userID.String())
	return err
}

// IncrementDownloads bumps the download counter.
func (r *PackageRepo) IncrementDownloads(ctx context.Context, id model.PackageID) error {
	_, err := r.db.Pool.Exec(ctx, `UPDATE packages SET downloads = downloads + 1 WHERE id = $1`, uuid.UUID(id))
	return err
}

// Delete removes the package and every reference to it in one transaction.
func (r *PackageRepo) Delete(ctx context.Context, id model.PackageID) (int64, error) {
	var deleted int64
	ref := id.String()
	err := r.db.withTx(ctx, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `DELETE FROM packages WHERE id = $1`, uuid.UUID(id))
		if err != nil {
			return err
		}
		deleted = tag.RowsAffected()
		if deleted == 0 {
			return nil
		}
		if _, err := tx.Exec(ctx,
			`UPDATE namespaces SET packages = array_remove(packages, $1) WHERE $1 = ANY(packages)`, ref); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
UPDATE users
SET author_of = array_remove(author_of, $1),
    maintainer_of = array_remove(maintainer_of, $1),
    pending_requests = array_remove(pending_requests, $1)
WHERE $1 = ANY(author_of) OR $1 = ANY(maintainer_of) OR $1 = ANY(pending_requests)`, ref); err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `DELETE FROM upload_tokens WHERE package_id = $1`, uuid.UUID(id))
		return err
	})
	if err != nil {
		return 0, err
	}
	return deleted, nil
}

const summaryCols = `p.name, n.name, COALESCE(u.username, ''), p.description, p.tags, p.downloads, p.created_at, p.updated_at`

const summaryFrom = `
FROM packages p
JOIN namespaces n ON n.id = p.namespace_id
LEFT JOIN users u ON u.id = p.author_id`

const searchWhere = `
WHERE NOT p.deprecated
  AND ($1 = '' OR $1 = ANY(p.tags) OR p.name ILIKE $2 ESCAPE '\' OR p.description ILIKE $2 ESCAPE '\')`

// sortColumns whitelists the sortable fields.
var sortColumns = map[string]string{
	"name":      "p.name",
	"author":    "u.username",
	"createdat": "p.created_at",
	"updatedat": "p.updated_at",
	"downloads": "p.downloads",
}

// likePattern turns a user query into a substring ILIKE pattern.
func likePattern(q string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + r.Replace(q) + "%"
}

func scanSummaries(rows pgx.Rows) ([]model.PackageSummary, error) {
	defer rows.Close()
	out := []model.PackageSummary{}
	for rows.Next() {
		var s model.PackageSummary
		if err := rows.Scan(&s.Name, &s.Namespace, &s.Author, &s.Description, &s.Tags,
			&s.Downloads, &s.CreatedAt, &s.UpdatedAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// Search returns one page of matching non-deprecated packages and the page count.
func (r *PackageRepo) Search(ctx context.Context, q model.SearchQuery) (model.SearchResult, error) {
	col, ok := sortColumns[strings.ToLower(q.SortBy)]
	if !ok {
		col = sortColumns["name"]
	}
	dir := "ASC"
	if q.Desc {
		dir = "DESC"
	}
	page := q.Page
	if page < 0 {
		page = 0
	}
	term := strings.ToLower(strings.TrimSpace(q.Query))
	pattern := likePattern(term)

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*)`+summaryFrom+searchWhere, term, pattern).Scan(&total); err != nil {
		return model.SearchResult{}, err
	}

	sel := fmt.Sprintf(`SELECT %s%s%s ORDER BY %s %s, p.id LIMIT %d OFFSET $3`,
		summaryCols, summaryFrom, searchWhere, col, dir, model.PageSize)
	rows, err := r.db.Pool.Query(ctx, sel, term, pattern, page*model.PageSize)
	if err != nil {
		return model.SearchResult{}, err
	}
	pkgs, err := scanSummaries(rows)
	if err != nil {
		return model.SearchResult{}, err
	}
	return model.SearchResult{
		Packages:   pkgs,
		TotalPages: (total + model.PageSize - 1) / model.PageSize,
	}, nil
}

// List returns one page of all packages, oldest first.
func (r *PackageRepo) List(ctx context.Context, page int) ([]model.PackageSummary, error) {
	if page < 0 {
		page = 0
	}
	q := fmt.Sprintf(`SELECT %s%s ORDER BY p.created_at, p.id LIMIT %d OFFSET $1`, summaryCols, summaryFrom, model.PageSize)
	rows, err := r.db.Pool.Query(ctx, q, page*model.PageSize)
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}

// ListByUser returns the packages a user authored or maintains, most recently updated first.
func (r *PackageRepo) ListByUser(ctx context.Context, userID model.UserID) ([]model.PackageSummary, error) {
	q := fmt.Sprintf(`SELECT %s%s WHERE p.author_id = $1 OR $2 = ANY(p.maintainers) ORDER BY p.updated_at DESC, p.id`,
		summaryCols, summaryFrom)
	rows, err := r.db.Pool.Query(ctx, q, uuid.UUID(userID), userID.String())
	if err != nil {
		return nil, err
	}
	return scanSummaries(rows)
}
