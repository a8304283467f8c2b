// Package gateway is the sole path to persisted state. Every entity
// that carries a tenant id is read and written through an Entity
// descriptor, which composes the ambient tenant predicate into each
// query and stamps the tenant onto each insert. Business code cannot
// forget the filter because it never builds the WHERE clause itself.
//
// Rows belonging to another tenant are reported as not found, never as
// an authorization failure, so foreign ids cannot be probed for
// existence. Entities with no tenant affiliation (identity records
// addressed by global unique key) must be declared with
// NewGlobalEntity; that is the only bypass and it is explicit at
// construction time.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/psicare/platform/internal/tenancy"
)

// ErrNotFound is returned when a lookup matches no row visible to the
// current tenant. Absent and foreign-tenant rows are indistinguishable.
var ErrNotFound = errors.New("gateway: not found")

const tenantColumn = "tenant_id"

// DB is the querying surface the gateway needs. Satisfied by
// *pgxpool.Pool, pgx.Tx and pgxmock pools.
type DB interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Filter is an equality filter over columns. Nil values match IS NULL.
type Filter map[string]any

// ListOptions shape FindMany results.
type ListOptions struct {
	OrderBy string
	Desc    bool
	Limit   int
	Offset  int
}

// Entity is a typed gateway over one table. T must carry db struct
// tags matching the declared columns.
type Entity[T any] struct {
	db           DB
	table        string
	columns      []string
	tenantScoped bool
}

// NewEntity declares a tenant-scoped entity. columns must include
// tenant_id.
func NewEntity[T any](db DB, table string, columns []string) *Entity[T] {
	if db == nil {
		panic("gateway: db required")
	}
	return &Entity[T]{db: db, table: table, columns: columns, tenantScoped: true}
}

// NewGlobalEntity declares an entity outside tenant scoping. Reserve
// this for identity records looked up before a tenant is known.
func NewGlobalEntity[T any](db DB, table string, columns []string) *Entity[T] {
	if db == nil {
		panic("gateway: db required")
	}
	return &Entity[T]{db: db, table: table, columns: columns}
}

// FindOne returns the single row matching the filter within the
// current tenant, or ErrNotFound.
func (e *Entity[T]) FindOne(ctx context.Context, f Filter) (*T, error) {
	where, args, err := e.buildWhere(ctx, f, nil, 0)
	if err != nil {
		return nil, err
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s LIMIT 1", strings.Join(e.columns, ", "), e.table, where)
	rows, err := e.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: query %s: %w", e.table, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gateway: scan %s: %w", e.table, err)
	}
	return &row, nil
}

// FindMany returns all rows matching the filter within the current
// tenant.
func (e *Entity[T]) FindMany(ctx context.Context, f Filter, opt *ListOptions) ([]T, error) {
	return e.FindManyWhere(ctx, "", nil, f, opt)
}

// FindManyWhere runs a read with an extra SQL condition (placeholders
// $1..$n matching extraArgs) on top of the equality filter. The tenant
// predicate is still appended mechanically; cond cannot widen the
// scope.
func (e *Entity[T]) FindManyWhere(ctx context.Context, cond string, extraArgs []any, f Filter, opt *ListOptions) ([]T, error) {
	where, args, err := e.buildWhere(ctx, f, extraArgs, 0)
	if err != nil {
		return nil, err
	}
	if cond != "" {
		if where == "" {
			where = " WHERE (" + cond + ")"
		} else {
			where += " AND (" + cond + ")"
		}
	}
	q := fmt.Sprintf("SELECT %s FROM %s%s%s", strings.Join(e.columns, ", "), e.table, where, buildSuffix(opt))
	rows, err := e.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: query %s: %w", e.table, err)
	}
	out, err := pgx.CollectRows(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("gateway: scan %s: %w", e.table, err)
	}
	return out, nil
}

// ExistsWhere reports whether any row matches the condition and filter
// within the current tenant.
func (e *Entity[T]) ExistsWhere(ctx context.Context, cond string, extraArgs []any, f Filter) (bool, error) {
	where, args, err := e.buildWhere(ctx, f, extraArgs, 0)
	if err != nil {
		return false, err
	}
	if cond != "" {
		if where == "" {
			where = " WHERE (" + cond + ")"
		} else {
			where += " AND (" + cond + ")"
		}
	}
	q := fmt.Sprintf("SELECT 1 FROM %s%s LIMIT 1", e.table, where)
	rows, err := e.db.Query(ctx, q, args...)
	if err != nil {
		return false, fmt.Errorf("gateway: query %s: %w", e.table, err)
	}
	found := rows.Next()
	rows.Close()
	if err := rows.Err(); err != nil {
		return false, fmt.Errorf("gateway: query %s: %w", e.table, err)
	}
	return found, nil
}

// Create inserts a row from column values and returns it. For
// tenant-scoped entities the tenant id is taken from context; a
// caller-supplied value that disagrees is rejected.
func (e *Entity[T]) Create(ctx context.Context, values map[string]any) (*T, error) {
	vals := make(map[string]any, len(values)+1)
	for k, v := range values {
		vals[k] = v
	}
	if e.tenantScoped {
		tenantID, err := tenancy.RequireTenantID(ctx)
		if err != nil {
			return nil, err
		}
		if supplied, ok := vals[tenantColumn]; ok {
			if s, _ := supplied.(string); s != "" && s != tenantID {
				return nil, tenancy.ErrTenantMismatch
			}
		}
		vals[tenantColumn] = tenantID
	}

	cols := sortedKeys(vals)
	placeholders := make([]string, len(cols))
	args := make([]any, len(cols))
	for i, c := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = vals[c]
	}
	q := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) RETURNING %s",
		e.table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(e.columns, ", "))
	rows, err := e.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: insert %s: %w", e.table, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		return nil, fmt.Errorf("gateway: insert %s: %w", e.table, err)
	}
	return &row, nil
}

// Update applies the set clause to rows matching the filter within the
// current tenant and returns the updated row. The tenant column cannot
// be reassigned.
func (e *Entity[T]) Update(ctx context.Context, f Filter, set map[string]any) (*T, error) {
	if _, ok := set[tenantColumn]; ok {
		return nil, tenancy.ErrTenantMismatch
	}
	cols := sortedKeys(set)
	assigns := make([]string, len(cols))
	args := make([]any, 0, len(cols)+len(f)+1)
	for i, c := range cols {
		assigns[i] = fmt.Sprintf("%s = $%d", c, i+1)
		args = append(args, set[c])
	}
	where, whereArgs, err := e.buildWhere(ctx, f, nil, len(cols))
	if err != nil {
		return nil, err
	}
	args = append(args, whereArgs...)
	q := fmt.Sprintf("UPDATE %s SET %s%s RETURNING %s",
		e.table, strings.Join(assigns, ", "), where, strings.Join(e.columns, ", "))
	rows, err := e.db.Query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("gateway: update %s: %w", e.table, err)
	}
	row, err := pgx.CollectOneRow(rows, pgx.RowToStructByName[T])
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("gateway: update %s: %w", e.table, err)
	}
	return &row, nil
}

// Delete removes rows matching the filter within the current tenant
// and reports how many were removed.
func (e *Entity[T]) Delete(ctx context.Context, f Filter) (int64, error) {
	where, args, err := e.buildWhere(ctx, f, nil, 0)
	if err != nil {
		return 0, err
	}
	q := fmt.Sprintf("DELETE FROM %s%s", e.table, where)
	tag, err := e.db.Exec(ctx, q, args...)
	if err != nil {
		return 0, fmt.Errorf("gateway: delete %s: %w", e.table, err)
	}
	return tag.RowsAffected(), nil
}

// buildWhere renders the equality filter plus the mechanical tenant
// predicate. extraArgs are positional arguments already consumed by a
// caller-supplied condition and therefore occupy the first
// placeholders; argOffset shifts numbering past SET clauses.
func (e *Entity[T]) buildWhere(ctx context.Context, f Filter, extraArgs []any, argOffset int) (string, []any, error) {
	var clauses []string
	args := make([]any, 0, len(extraArgs)+len(f)+1)
	args = append(args, extraArgs...)
	n := argOffset + len(extraArgs)

	for _, k := range sortedKeys(f) {
		v := f[k]
		if v == nil {
			clauses = append(clauses, k+" IS NULL")
			continue
		}
		n++
		clauses = append(clauses, fmt.Sprintf("%s = $%d", k, n))
		args = append(args, v)
	}

	if e.tenantScoped {
		tenantID, err := tenancy.RequireTenantID(ctx)
		if err != nil {
			return "", nil, err
		}
		n++
		clauses = append(clauses, fmt.Sprintf("%s = $%d", tenantColumn, n))
		args = append(args, tenantID)
	}

	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

func buildSuffix(opt *ListOptions) string {
	if opt == nil {
		return ""
	}
	var sb strings.Builder
	if opt.OrderBy != "" {
		sb.WriteString(" ORDER BY " + opt.OrderBy)
		if opt.Desc {
			sb.WriteString(" DESC")
		}
	}
	if opt.Limit > 0 {
		fmt.Fprintf(&sb, " LIMIT %d", opt.Limit)
	}
	if opt.Offset > 0 {
		fmt.Fprintf(&sb, " OFFSET %d", opt.Offset)
	}
	return sb.String()
}

func sortedKeys[M ~map[string]any](m M) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
