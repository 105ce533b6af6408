package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/iliyamo/vkm-portal/internal/model"
)

const (
	DefaultModulePageSize = 20
	MaxModulePageSize     = 100
	// MaxModulePage keeps (page-1)*limit far from int overflow.
	MaxModulePage = 1_000_000
)

const moduleColumns = `id, name, short_description, description, content, study_credit, location,
	contact_id, level, learning_outcomes, module_tags, popularity_score, estimated_difficulty,
	available_spots, start_date`

// ModuleRepo is the read side of the module catalog.  The catalog is loaded
// by an external import job; this service never writes to it.
type ModuleRepo struct {
	db *sql.DB
}

func NewModuleRepo(db *sql.DB) *ModuleRepo {
	return &ModuleRepo{db: db}
}

func scanModule(row rowScanner) (model.Module, error) {
	var m model.Module
	err := row.Scan(&m.ID, &m.Name, &m.ShortDescription, &m.Description, &m.Content, &m.StudyCredit,
		&m.Location, &m.ContactID, &m.Level, &m.LearningOutcomes, &m.ModuleTags, &m.PopularityScore,
		&m.EstimatedDifficulty, &m.AvailableSpots, &m.StartDate)
	return m, err
}

// GetByID returns the module with the given id or ErrModuleNotFound.
func (r *ModuleRepo) GetByID(ctx context.Context, id uint64) (*model.Module, error) {
	if id == 0 {
		return nil, ErrInvalidID
	}
	m, err := scanModule(r.db.QueryRowContext(ctx, "SELECT "+moduleColumns+" FROM modules WHERE id = ?", id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrModuleNotFound
		}
		return nil, err
	}
	return &m, nil
}

// Exists reports whether the catalog holds a module with this id.
func (r *ModuleRepo) Exists(ctx context.Context, id uint64) (bool, error) {
	if id == 0 {
		return false, ErrInvalidID
	}
	var one int
	err := r.db.QueryRowContext(ctx, "SELECT 1 FROM modules WHERE id = ? LIMIT 1", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// GetByIDs loads the modules that exist among ids.  Missing ids are simply
// absent from the returned map.
func (r *ModuleRepo) GetByIDs(ctx context.Context, ids []uint64) (map[uint64]model.Module, error) {
	out := make(map[uint64]model.Module, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	q := "SELECT " + moduleColumns + " FROM modules WHERE id IN (?" + strings.Repeat(",?", len(ids)-1) + ")"
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return nil, err
		}
		out[m.ID] = m
	}
	return out, rows.Err()
}

// NormalizePage clamps page and limit to the catalog paging rules.
func NormalizePage(page, limit int) (int, int) {
	if page < 1 {
		page = 1
	}
	if page > MaxModulePage {
		page = MaxModulePage
	}
	if limit < 1 {
		limit = DefaultModulePageSize
	}
	if limit > MaxModulePageSize {
		limit = MaxModulePageSize
	}
	return page, limit
}

// escapeLike escapes the LIKE wildcards in s.
func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// List returns one page of modules matching f, ordered by id.
func (r *ModuleRepo) List(ctx context.Context, f model.ModuleFilter, page, limit int) (model.ModulePage, error) {
	page, limit = NormalizePage(page, limit)

	where := []string{}
	args := []any{}
	if s := strings.TrimSpace(f.Search); s != "" {
		where = append(where, "LOWER(name) LIKE ?")
		args = append(args, "%"+escapeLike(strings.ToLower(s))+"%")
	}
	if loc := strings.TrimSpace(f.Location); loc != "" {
		where = append(where, "location = ?")
		args = append(args, loc)
	}
	if f.Credits != nil {
		where = append(where, "study_credit = ?")
		args = append(args, *f.Credits)
	}
	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	out := model.ModulePage{Modules: []model.Module{}, Page: page, Limit: limit}
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM modules WHERE "+cond, args...).Scan(&out.Total); err != nil {
		return out, err
	}

	dataArgs := append(append([]any{}, args...), limit, (page-1)*limit)
	rows, err := r.db.QueryContext(ctx,
		"SELECT "+moduleColumns+" FROM modules WHERE "+cond+" ORDER BY id LIMIT ? OFFSET ?", dataArgs...)
	if err != nil {
		return out, err
	}
	defer rows.Close()
	for rows.Next() {
		m, err := scanModule(rows)
		if err != nil {
			return out, err
		}
		out.Modules = append(out.Modules, m)
	}
	return out, rows.Err()
}
