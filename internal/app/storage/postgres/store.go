package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/corpulate/platform/internal/app/domain/catalog"
	"github.com/corpulate/platform/internal/app/domain/registration"
	"github.com/corpulate/platform/internal/app/domain/user"
	"github.com/corpulate/platform/internal/app/storage"
	"github.com/lib/pq"
)

// Store implements the storage interfaces backed by PostgreSQL.
type Store struct {
	db *sql.DB
}

var _ storage.UserStore = (*Store)(nil)
var _ storage.PackageStore = (*Store)(nil)
var _ storage.AddOnStore = (*Store)(nil)
var _ storage.RequestStore = (*Store)(nil)

// New creates a Store using the provided database handle.
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// mapErr translates driver errors into the storage sentinels. Unique and
// foreign-key violations are the schema-level backstop for the service layer's
// pre-checks.
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505", "23503", "23514": // unique, foreign key, check
			return fmt.Errorf("%w: %s", storage.ErrConflict, pqErr.Code.Name())
		}
	}
	return err
}

// --- UserStore ---------------------------------------------------------------

func (s *Store) CreateUser(ctx context.Context, u user.User) (user.User, error) {
	now := time.Now().UTC()
	u.CreatedAt = now
	u.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO users (email, password, first_name, last_name, phone_number, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, u.Email, u.Password, u.FirstName, u.LastName, u.PhoneNumber, u.CreatedAt, u.UpdatedAt).Scan(&u.ID)
	if err != nil {
		return user.User{}, mapErr(err)
	}
	return u, nil
}

func (s *Store) GetUser(ctx context.Context, id int64) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password, first_name, last_name, phone_number, created_at, updated_at
		FROM users
		WHERE id = $1
	`, id))
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (user.User, error) {
	return s.scanUser(s.db.QueryRowContext(ctx, `
		SELECT id, email, password, first_name, last_name, phone_number, created_at, updated_at
		FROM users
		WHERE LOWER(email) = LOWER($1)
	`, email))
}

func (s *Store) scanUser(row *sql.Row) (user.User, error) {
	var u user.User
	if err := row.Scan(&u.ID, &u.Email, &u.Password, &u.FirstName, &u.LastName, &u.PhoneNumber, &u.CreatedAt, &u.UpdatedAt); err != nil {
		return user.User{}, mapErr(err)
	}
	return u, nil
}

// --- PackageStore ------------------------------------------------------------

var packageSortColumns = map[string]string{
	storage.SortByID:        "package_id",
	storage.SortByTitle:     "package_title",
	storage.SortByPrice:     "package_price",
	storage.SortByCreatedAt: "created_at",
}

func (s *Store) CreatePackage(ctx context.Context, p catalog.Package) (catalog.Package, error) {
	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO packages (package_title, package_description, package_price, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING package_id
	`, p.Title, p.Description, p.Price, p.CreatedAt, p.UpdatedAt).Scan(&p.ID)
	if err != nil {
		return catalog.Package{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) UpdatePackage(ctx context.Context, p catalog.Package) (catalog.Package, error) {
	p.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE packages
		SET package_title = $2, package_description = $3, package_price = $4, updated_at = $5
		WHERE package_id = $1
	`, p.ID, p.Title, p.Description, p.Price, p.UpdatedAt)
	if err != nil {
		return catalog.Package{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.Package{}, storage.ErrNotFound
	}
	return s.GetPackage(ctx, p.ID)
}

func (s *Store) GetPackage(ctx context.Context, id int64) (catalog.Package, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT package_id, package_title, package_description, package_price, created_at, updated_at
		FROM packages
		WHERE package_id = $1
	`, id)

	var p catalog.Package
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return catalog.Package{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) ListPackages(ctx context.Context, f storage.PackageFilter) ([]catalog.Package, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(package_title ILIKE %s OR package_description ILIKE %s)", p, p))
	}
	if f.MinPrice != nil {
		conds = append(conds, "package_price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, "package_price <= "+arg(*f.MaxPrice))
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM packages"+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	column, ok := packageSortColumns[f.SortBy]
	if !ok {
		column = "package_id"
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT package_id, package_title, package_description, package_price, created_at, updated_at
		FROM packages%s
		ORDER BY %s %s, package_id ASC
	`, where, column, direction)
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var result []catalog.Package
	for rows.Next() {
		var p catalog.Package
		if err := rows.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, p)
	}
	return result, total, rows.Err()
}

func (s *Store) DeletePackage(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM packages WHERE package_id = $1
	`, id)
	if err != nil {
		return mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) BulkUpdatePackages(ctx context.Context, ids []int64, upd catalog.PackageUpdate) (int64, error) {
	sets := []string{"updated_at = $2"}
	args := []interface{}{pq.Array(ids), time.Now().UTC()}
	if upd.Title != nil {
		args = append(args, *upd.Title)
		sets = append(sets, fmt.Sprintf("package_title = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, *upd.Description)
		sets = append(sets, fmt.Sprintf("package_description = $%d", len(args)))
	}
	if upd.Price != nil {
		args = append(args, *upd.Price)
		sets = append(sets, fmt.Sprintf("package_price = $%d", len(args)))
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE packages SET %s WHERE package_id = ANY($1)
	`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return 0, mapErr(err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) BulkDeletePackages(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM packages WHERE package_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return 0, mapErr(err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) FindPackageByTitle(ctx context.Context, title string, excludeID int64) (catalog.Package, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT package_id, package_title, package_description, package_price, created_at, updated_at
		FROM packages
		WHERE package_title = $1 AND package_id <> $2
	`, title, excludeID)

	var p catalog.Package
	if err := row.Scan(&p.ID, &p.Title, &p.Description, &p.Price, &p.CreatedAt, &p.UpdatedAt); err != nil {
		return catalog.Package{}, mapErr(err)
	}
	return p, nil
}

func (s *Store) CountPackages(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM packages`).Scan(&count); err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

// --- AddOnStore --------------------------------------------------------------

var addOnSortColumns = map[string]string{
	storage.SortByID:        "ad_id",
	storage.SortByTitle:     "ad_title",
	storage.SortByPrice:     "ad_price",
	storage.SortByCreatedAt: "created_at",
}

const addOnUsageExpr = "(SELECT COUNT(*) FROM request_adones ra WHERE ra.ad_id = adones.ad_id)"

func (s *Store) CreateAddOn(ctx context.Context, a catalog.AddOn) (catalog.AddOn, error) {
	now := time.Now().UTC()
	a.CreatedAt = now
	a.UpdatedAt = now

	err := s.db.QueryRowContext(ctx, `
		INSERT INTO adones (ad_title, ad_price, ad_description, ad_information, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ad_id
	`, a.Title, a.Price, a.Description, a.Information, a.CreatedAt, a.UpdatedAt).Scan(&a.ID)
	if err != nil {
		return catalog.AddOn{}, mapErr(err)
	}
	return a, nil
}

func (s *Store) UpdateAddOn(ctx context.Context, a catalog.AddOn) (catalog.AddOn, error) {
	a.UpdatedAt = time.Now().UTC()

	result, err := s.db.ExecContext(ctx, `
		UPDATE adones
		SET ad_title = $2, ad_price = $3, ad_description = $4, ad_information = $5, updated_at = $6
		WHERE ad_id = $1
	`, a.ID, a.Title, a.Price, a.Description, a.Information, a.UpdatedAt)
	if err != nil {
		return catalog.AddOn{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return catalog.AddOn{}, storage.ErrNotFound
	}
	return s.GetAddOn(ctx, a.ID)
}

func (s *Store) GetAddOn(ctx context.Context, id int64) (catalog.AddOn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ad_id, ad_title, ad_price, ad_description, ad_information, created_at, updated_at
		FROM adones
		WHERE ad_id = $1
	`, id)
	return scanAddOn(row)
}

func scanAddOn(row *sql.Row) (catalog.AddOn, error) {
	var a catalog.AddOn
	if err := row.Scan(&a.ID, &a.Title, &a.Price, &a.Description, &a.Information, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return catalog.AddOn{}, mapErr(err)
	}
	return a, nil
}

func (s *Store) ListAddOns(ctx context.Context, f storage.AddOnFilter) ([]catalog.AddOn, int, error) {
	var (
		conds []string
		args  []interface{}
	)
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if f.Search != "" {
		p := arg("%" + f.Search + "%")
		conds = append(conds, fmt.Sprintf("(ad_title ILIKE %s OR ad_description ILIKE %s OR ad_information ILIKE %s)", p, p, p))
	}
	if f.Category != "" {
		p := arg("%" + f.Category + "%")
		conds = append(conds, fmt.Sprintf("(ad_title ILIKE %s OR ad_description ILIKE %s)", p, p))
	}
	if f.MinPrice != nil {
		conds = append(conds, "ad_price >= "+arg(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		conds = append(conds, "ad_price <= "+arg(*f.MaxPrice))
	}
	if f.HasRequests != nil {
		if *f.HasRequests {
			conds = append(conds, "EXISTS (SELECT 1 FROM request_adones ra WHERE ra.ad_id = adones.ad_id)")
		} else {
			conds = append(conds, "NOT EXISTS (SELECT 1 FROM request_adones ra WHERE ra.ad_id = adones.ad_id)")
		}
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM adones"+where, args...).Scan(&total); err != nil {
		return nil, 0, mapErr(err)
	}

	column, ok := addOnSortColumns[f.SortBy]
	if !ok {
		if f.SortBy == storage.SortByUsage {
			column = addOnUsageExpr
		} else {
			column = "created_at"
		}
	}
	direction := "ASC"
	if f.SortDesc {
		direction = "DESC"
	}

	query := fmt.Sprintf(`
		SELECT ad_id, ad_title, ad_price, ad_description, ad_information, created_at, updated_at
		FROM adones%s
		ORDER BY %s %s, ad_id ASC
	`, where, column, direction)
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	if f.Offset > 0 {
		query += " OFFSET " + arg(f.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, mapErr(err)
	}
	defer rows.Close()

	var result []catalog.AddOn
	for rows.Next() {
		var a catalog.AddOn
		if err := rows.Scan(&a.ID, &a.Title, &a.Price, &a.Description, &a.Information, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, 0, err
		}
		result = append(result, a)
	}
	return result, total, rows.Err()
}

func (s *Store) DeleteAddOn(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM adones WHERE ad_id = $1
	`, id)
	if err != nil {
		return mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (s *Store) BulkUpdateAddOns(ctx context.Context, ids []int64, upd catalog.AddOnUpdate) (int64, error) {
	sets := []string{"updated_at = $2"}
	args := []interface{}{pq.Array(ids), time.Now().UTC()}
	if upd.Title != nil {
		args = append(args, *upd.Title)
		sets = append(sets, fmt.Sprintf("ad_title = $%d", len(args)))
	}
	if upd.Price != nil {
		args = append(args, *upd.Price)
		sets = append(sets, fmt.Sprintf("ad_price = $%d", len(args)))
	}
	if upd.Description != nil {
		args = append(args, *upd.Description)
		sets = append(sets, fmt.Sprintf("ad_description = $%d", len(args)))
	}
	if upd.Information != nil {
		args = append(args, *upd.Information)
		sets = append(sets, fmt.Sprintf("ad_information = $%d", len(args)))
	}

	result, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		UPDATE adones SET %s WHERE ad_id = ANY($1)
	`, strings.Join(sets, ", ")), args...)
	if err != nil {
		return 0, mapErr(err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) BulkDeleteAddOns(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		DELETE FROM adones WHERE ad_id = ANY($1)
	`, pq.Array(ids))
	if err != nil {
		return 0, mapErr(err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) TouchAddOns(ctx context.Context, ids []int64) (int64, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE adones SET updated_at = $2 WHERE ad_id = ANY($1)
	`, pq.Array(ids), time.Now().UTC())
	if err != nil {
		return 0, mapErr(err)
	}
	rows, _ := result.RowsAffected()
	return rows, nil
}

func (s *Store) GetAddOns(ctx context.Context, ids []int64) ([]catalog.AddOn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ad_id, ad_title, ad_price, ad_description, ad_information, created_at, updated_at
		FROM adones
		WHERE ad_id = ANY($1)
		ORDER BY ad_id
	`, pq.Array(ids))
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []catalog.AddOn
	for rows.Next() {
		var a catalog.AddOn
		if err := rows.Scan(&a.ID, &a.Title, &a.Price, &a.Description, &a.Information, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

func (s *Store) FindAddOnByTitleFold(ctx context.Context, title string, excludeID int64) (catalog.AddOn, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ad_id, ad_title, ad_price, ad_description, ad_information, created_at, updated_at
		FROM adones
		WHERE LOWER(ad_title) = LOWER($1) AND ad_id <> $2
	`, title, excludeID)
	return scanAddOn(row)
}

func (s *Store) DistinctAddOnTitles(ctx context.Context, limit int) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT DISTINCT ad_title FROM adones ORDER BY ad_title LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var titles []string
	for rows.Next() {
		var title string
		if err := rows.Scan(&title); err != nil {
			return nil, err
		}
		titles = append(titles, title)
	}
	return titles, rows.Err()
}

func (s *Store) AddOnPriceStats(ctx context.Context) (catalog.PriceStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(ad_price), 0),
		       COALESCE(AVG(ad_price), 0),
		       COALESCE(MIN(ad_price), 0),
		       COALESCE(MAX(ad_price), 0)
		FROM adones
	`)

	var stats catalog.PriceStats
	if err := row.Scan(&stats.Sum, &stats.Average, &stats.Min, &stats.Max); err != nil {
		return catalog.PriceStats{}, mapErr(err)
	}
	return stats, nil
}

func (s *Store) CountAddOns(ctx context.Context, since time.Time) (int, error) {
	var count int
	if since.IsZero() {
		if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM adones`).Scan(&count); err != nil {
			return 0, mapErr(err)
		}
		return count, nil
	}
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM adones WHERE created_at >= $1`, since).Scan(&count); err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func (s *Store) PriceHistogram(ctx context.Context, bounds []float64) ([]int, error) {
	counts := make([]int, len(bounds)+1)
	for i := range counts {
		var (
			cond string
			args []interface{}
		)
		switch {
		case i == 0:
			cond = "ad_price < $1"
			args = []interface{}{bounds[0]}
		case i == len(bounds):
			cond = "ad_price >= $1"
			args = []interface{}{bounds[len(bounds)-1]}
		default:
			cond = "ad_price >= $1 AND ad_price < $2"
			args = []interface{}{bounds[i-1], bounds[i]}
		}
		if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM adones WHERE "+cond, args...).Scan(&counts[i]); err != nil {
			return nil, mapErr(err)
		}
	}
	return counts, nil
}

func (s *Store) MostUsedAddOns(ctx context.Context, limit int) ([]catalog.AddOnUsage, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT a.ad_id, a.ad_title, a.ad_price, a.ad_description, a.ad_information, a.created_at, a.updated_at,
		       COUNT(ra.request_id) AS request_count
		FROM adones a
		LEFT JOIN request_adones ra ON ra.ad_id = a.ad_id
		GROUP BY a.ad_id
		ORDER BY request_count DESC, a.ad_id ASC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []catalog.AddOnUsage
	for rows.Next() {
		var u catalog.AddOnUsage
		if err := rows.Scan(&u.ID, &u.Title, &u.Price, &u.Description, &u.Information, &u.CreatedAt, &u.UpdatedAt, &u.RequestCount); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func (s *Store) RecentAddOns(ctx context.Context, limit int) ([]catalog.AddOn, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ad_id, ad_title, ad_price, ad_description, ad_information, created_at, updated_at
		FROM adones
		ORDER BY created_at DESC, ad_id DESC
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []catalog.AddOn
	for rows.Next() {
		var a catalog.AddOn
		if err := rows.Scan(&a.ID, &a.Title, &a.Price, &a.Description, &a.Information, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	return result, rows.Err()
}

// --- RequestStore ------------------------------------------------------------

func (s *Store) CreateRequest(ctx context.Context, req registration.Request) (registration.Request, error) {
	now := time.Now().UTC()
	req.CreatedAt = now
	req.UpdatedAt = now
	if req.Status == "" {
		req.Status = registration.StatusPending
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return registration.Request{}, err
	}
	defer tx.Rollback()

	err = tx.QueryRowContext(ctx, `
		INSERT INTO requests (name, company_name, status, user_id, package_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id
	`, req.Name, req.CompanyName, req.Status, req.UserID, req.PackageID, req.CreatedAt, req.UpdatedAt).Scan(&req.ID)
	if err != nil {
		return registration.Request{}, mapErr(err)
	}

	for _, adID := range req.AddOnIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO request_adones (request_id, ad_id) VALUES ($1, $2)
		`, req.ID, adID); err != nil {
			return registration.Request{}, mapErr(err)
		}
	}

	if err := tx.Commit(); err != nil {
		return registration.Request{}, mapErr(err)
	}
	return req, nil
}

func (s *Store) GetRequest(ctx context.Context, id int64) (registration.Request, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, company_name, status, user_id, package_id, created_at, updated_at
		FROM requests
		WHERE id = $1
	`, id)

	var req registration.Request
	if err := row.Scan(&req.ID, &req.Name, &req.CompanyName, &req.Status, &req.UserID, &req.PackageID, &req.CreatedAt, &req.UpdatedAt); err != nil {
		return registration.Request{}, mapErr(err)
	}

	if err := s.loadAddOnLinks(ctx, map[int64]*registration.Request{req.ID: &req}); err != nil {
		return registration.Request{}, err
	}
	return req, nil
}

func (s *Store) ListRequests(ctx context.Context, f storage.RequestFilter) ([]registration.Request, error) {
	var (
		conds []string
		args  []interface{}
	)
	if f.UserID != 0 {
		args = append(args, f.UserID)
		conds = append(conds, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.Status != "" {
		args = append(args, f.Status)
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, company_name, status, user_id, package_id, created_at, updated_at
		FROM requests`+where+`
		ORDER BY created_at DESC, id DESC
	`, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []registration.Request
	byID := make(map[int64]*registration.Request)
	for rows.Next() {
		var req registration.Request
		if err := rows.Scan(&req.ID, &req.Name, &req.CompanyName, &req.Status, &req.UserID, &req.PackageID, &req.CreatedAt, &req.UpdatedAt); err != nil {
			return nil, err
		}
		result = append(result, req)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range result {
		byID[result[i].ID] = &result[i]
	}
	if err := s.loadAddOnLinks(ctx, byID); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *Store) loadAddOnLinks(ctx context.Context, byID map[int64]*registration.Request) error {
	if len(byID) == 0 {
		return nil
	}
	ids := make([]int64, 0, len(byID))
	for id := range byID {
		ids = append(ids, id)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT request_id, ad_id FROM request_adones WHERE request_id = ANY($1) ORDER BY ad_id
	`, pq.Array(ids))
	if err != nil {
		return mapErr(err)
	}
	defer rows.Close()

	for rows.Next() {
		var requestID, adID int64
		if err := rows.Scan(&requestID, &adID); err != nil {
			return err
		}
		if req, ok := byID[requestID]; ok {
			req.AddOnIDs = append(req.AddOnIDs, adID)
		}
	}
	return rows.Err()
}

func (s *Store) UpdateRequestStatus(ctx context.Context, id int64, status registration.Status) (registration.Request, error) {
	result, err := s.db.ExecContext(ctx, `
		UPDATE requests SET status = $2, updated_at = $3 WHERE id = $1
	`, id, status, time.Now().UTC())
	if err != nil {
		return registration.Request{}, mapErr(err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return registration.Request{}, storage.ErrNotFound
	}
	return s.GetRequest(ctx, id)
}

func (s *Store) CountRequests(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM requests`).Scan(&count); err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func (s *Store) CountWithAddOns(ctx context.Context) (int, error) {
	var count int
	if err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(DISTINCT request_id) FROM request_adones
	`).Scan(&count); err != nil {
		return 0, mapErr(err)
	}
	return count, nil
}

func (s *Store) CountsByPackage(ctx context.Context, ids []int64) (map[int64]registration.StatusCounts, error) {
	query := `
		SELECT package_id,
		       COUNT(*),
		       COUNT(*) FILTER (WHERE status = 'pending'),
		       COUNT(*) FILTER (WHERE status = 'completed'),
		       COUNT(*) FILTER (WHERE status = 'rejected')
		FROM requests
	`
	var args []interface{}
	if len(ids) > 0 {
		query += " WHERE package_id = ANY($1)"
		args = append(args, pq.Array(ids))
	}
	query += " GROUP BY package_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	result := make(map[int64]registration.StatusCounts)
	for rows.Next() {
		var (
			id     int64
			counts registration.StatusCounts
		)
		if err := rows.Scan(&id, &counts.Total, &counts.Pending, &counts.Completed, &counts.Rejected); err != nil {
			return nil, err
		}
		result[id] = counts
	}
	return result, rows.Err()
}

func (s *Store) CountsByAddOn(ctx context.Context, ids []int64) (map[int64]int, error) {
	query := `SELECT ad_id, COUNT(*) FROM request_adones`
	var args []interface{}
	if len(ids) > 0 {
		query += " WHERE ad_id = ANY($1)"
		args = append(args, pq.Array(ids))
	}
	query += " GROUP BY ad_id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	result := make(map[int64]int)
	for rows.Next() {
		var (
			id    int64
			count int
		)
		if err := rows.Scan(&id, &count); err != nil {
			return nil, err
		}
		result[id] = count
	}
	return result, rows.Err()
}

func (s *Store) RecentByPackage(ctx context.Context, packageID int64, limit int) ([]registration.Summary, error) {
	return s.recentSummaries(ctx, `
		SELECT id, name, company_name, status, created_at
		FROM requests
		WHERE package_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2
	`, packageID, limit)
}

func (s *Store) RecentByAddOn(ctx context.Context, addOnID int64, limit int) ([]registration.Summary, error) {
	return s.recentSummaries(ctx, `
		SELECT r.id, r.name, r.company_name, r.status, r.created_at
		FROM requests r
		JOIN request_adones ra ON ra.request_id = r.id
		WHERE ra.ad_id = $1
		ORDER BY r.created_at DESC, r.id DESC
		LIMIT $2
	`, addOnID, limit)
}

func (s *Store) recentSummaries(ctx context.Context, query string, args ...interface{}) ([]registration.Summary, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, mapErr(err)
	}
	defer rows.Close()

	var result []registration.Summary
	for rows.Next() {
		var sum registration.Summary
		if err := rows.Scan(&sum.ID, &sum.Name, &sum.CompanyName, &sum.Status, &sum.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, sum)
	}
	return result, rows.Err()
}
