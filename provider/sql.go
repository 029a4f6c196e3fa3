package provider

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"github.com/huykn/dataquery/types"
)

var _ DataProvider = (*SQL)(nil)

// QueryLogger receives one debug line per statement.
type QueryLogger interface {
	Debug(msg string, args ...any)
}

// SQLOption configures a SQL provider.
type SQLOption func(*SQL)

// WithTable sets the table holding the records (default "records").
func WithTable(name string) SQLOption {
	return func(s *SQL) {
		s.table = name
	}
}

// WithSQLIdentifierField sets the identifier field of a resource (default "id").
func WithSQLIdentifierField(resource, field string) SQLOption {
	return func(s *SQL) {
		s.idFields[resource] = field
	}
}

// WithQueryLogger logs every statement with its duration.
func WithQueryLogger(l QueryLogger) SQLOption {
	return func(s *SQL) {
		s.logger = l
	}
}

// SQL is a data provider storing each record as a JSON document in a single
// table keyed by (resource, id). Statements use "?" placeholders; the
// table is created on first use. It is tested against SQLite.
type SQL struct {
	db       *sql.DB
	table    string
	idFields map[string]string
	handlers map[string]CustomHandler
	logger   QueryLogger
}

// NewSQL creates a provider over db and ensures its table exists.
func NewSQL(ctx context.Context, db *sql.DB, opts ...SQLOption) (*SQL, error) {
	s := &SQL{
		db:       db,
		table:    "records",
		idFields: make(map[string]string),
		handlers: make(map[string]CustomHandler),
	}
	for _, opt := range opts {
		opt(s)
	}

	schema := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	seq INTEGER PRIMARY KEY AUTOINCREMENT,
	resource TEXT NOT NULL,
	id TEXT NOT NULL,
	body TEXT NOT NULL,
	UNIQUE (resource, id)
)`, s.table)
	if _, err := s.exec(ctx, s.db, schema); err != nil {
		return nil, errors.Wrapf(err, "failed to create table %s", s.table)
	}
	return s, nil
}

// HandleCustom registers a handler for custom requests to method + url.
// Handlers must be registered before the provider is shared.
func (s *SQL) HandleCustom(method, url string, h CustomHandler) {
	s.handlers[customRoute(method, url)] = h
}

func (s *SQL) idField(resource string) string {
	if f, ok := s.idFields[resource]; ok && f != "" {
		return f
	}
	return "id"
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func (s *SQL) exec(ctx context.Context, db execer, query string, args ...any) (sql.Result, error) {
	start := time.Now()
	res, err := db.ExecContext(ctx, query, args...)
	s.log(query, args, start, err)
	if err != nil {
		return nil, s.classify(ctx, err)
	}
	return res, nil
}

// query runs a statement returning (id, body) rows and decodes the bodies.
func (s *SQL) query(ctx context.Context, db execer, query string, args ...any) (map[types.ID]types.Record, []types.Record, error) {
	start := time.Now()
	rows, err := db.QueryContext(ctx, query, args...)
	s.log(query, args, start, err)
	if err != nil {
		return nil, nil, s.classify(ctx, err)
	}
	defer rows.Close()

	byID := make(map[types.ID]types.Record)
	var ordered []types.Record
	for rows.Next() {
		var id, body string
		if err := rows.Scan(&id, &body); err != nil {
			return nil, nil, s.classify(ctx, err)
		}
		var rec types.Record
		if err := json.Unmarshal([]byte(body), &rec); err != nil {
			return nil, nil, types.NewTransportError(err, "corrupt record %s", id)
		}
		byID[types.ID(id)] = rec
		ordered = append(ordered, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, s.classify(ctx, err)
	}
	return byID, ordered, nil
}

func (s *SQL) log(query string, args []any, start time.Time, err error) {
	if s.logger == nil {
		return
	}
	if err != nil {
		s.logger.Debug("sql: statement failed", "query", query, "args", args, "duration", time.Since(start), "error", err)
		return
	}
	s.logger.Debug("sql: statement", "query", query, "args", args, "duration", time.Since(start))
}

func (s *SQL) classify(ctx context.Context, err error) error {
	if cerr := ctxErr(ctx); cerr != nil {
		return cerr
	}
	return types.NewTransportError(err, "database error")
}

func (s *SQL) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return s.classify(ctx, err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return s.classify(ctx, err)
	}
	return nil
}

func (s *SQL) selectIDs(ctx context.Context, db execer, resource string, ids []types.ID) (map[types.ID]types.Record, error) {
	if len(ids) == 0 {
		return map[types.ID]types.Record{}, nil
	}
	args := make([]any, 0, len(ids)+1)
	args = append(args, resource)
	marks := make([]byte, 0, 2*len(ids))
	for i, id := range ids {
		if i > 0 {
			marks = append(marks, ',')
		}
		marks = append(marks, '?')
		args = append(args, string(id))
	}
	q := fmt.Sprintf("SELECT id, body FROM %s WHERE resource = ? AND id IN (%s)", s.table, marks)
	byID, _, err := s.query(ctx, db, q, args...)
	return byID, err
}

// GetList loads the resource, then filters, sorts and paginates like Memory.
func (s *SQL) GetList(ctx context.Context, resource string, params types.ListParams) (*types.ListResult, error) {
	q := fmt.Sprintf("SELECT id, body FROM %s WHERE resource = ? ORDER BY seq", s.table)
	_, all, err := s.query(ctx, s.db, q, resource)
	if err != nil {
		return nil, err
	}

	matched := make([]types.Record, 0, len(all))
	for _, rec := range all {
		ok, err := matchAll(rec, params.Filters)
		if err != nil {
			return nil, err
		}
		if ok {
			matched = append(matched, rec)
		}
	}
	sortRecords(matched, params.Sort)

	total := len(matched)
	if params.Pagination != nil {
		p := params.Pagination.Normalize()
		if p.Mode != types.PaginationOff {
			start := min((p.Current-1)*p.PageSize, total)
			end := min(start+p.PageSize, total)
			matched = matched[start:end]
		}
	}
	return &types.ListResult{Data: matched, Total: total}, nil
}

// GetOne returns a single record.
func (s *SQL) GetOne(ctx context.Context, resource string, id types.ID, _ types.Meta) (types.Record, error) {
	byID, err := s.selectIDs(ctx, s.db, resource, []types.ID{id})
	if err != nil {
		return nil, err
	}
	rec, ok := byID[id]
	if !ok {
		return nil, types.NewNotFoundError("%s %s not found", resource, id)
	}
	return rec, nil
}

// GetMany returns records in the requested order. Any missing id fails the
// whole call.
func (s *SQL) GetMany(ctx context.Context, resource string, ids []types.ID, _ types.Meta) ([]types.Record, error) {
	byID, err := s.selectIDs(ctx, s.db, resource, ids)
	if err != nil {
		return nil, err
	}
	out := make([]types.Record, 0, len(ids))
	for _, id := range ids {
		rec, ok := byID[id]
		if !ok {
			return nil, types.NewNotFoundError("%s %s not found", resource, id)
		}
		out = append(out, copyRecord(rec))
	}
	return out, nil
}

// Create stores a record, generating an id when the payload has none.
func (s *SQL) Create(ctx context.Context, resource string, payload types.Record, _ types.Meta) (types.Record, error) {
	if len(payload) == 0 {
		return nil, types.NewValidationError("empty %s payload", resource)
	}

	field := s.idField(resource)
	rec := copyRecord(payload)
	id := types.IDOf(rec[field])
	if id == "" {
		id = types.ID(uuid.NewString())
		rec[field] = id.String()
	}
	body, err := json.Marshal(rec)
	if err != nil {
		return nil, types.NewValidationError("invalid %s payload: %v", resource, err)
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.selectIDs(ctx, tx, resource, []types.ID{id})
		if err != nil {
			return err
		}
		if _, ok := existing[id]; ok {
			return types.NewConflictError("%s %s already exists", resource, id)
		}
		q := fmt.Sprintf("INSERT INTO %s (resource, id, body) VALUES (?, ?, ?)", s.table)
		_, err = s.exec(ctx, tx, q, resource, string(id), string(body))
		return err
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// Update merges payload into an existing record.
func (s *SQL) Update(ctx context.Context, resource string, id types.ID, payload types.Record, _ types.Meta) (types.Record, error) {
	field := s.idField(resource)

	var rec types.Record
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.selectIDs(ctx, tx, resource, []types.ID{id})
		if err != nil {
			return err
		}
		current, ok := existing[id]
		if !ok {
			return types.NewNotFoundError("%s %s not found", resource, id)
		}
		for k, v := range payload {
			if k == field {
				continue
			}
			current[k] = v
		}
		body, err := json.Marshal(current)
		if err != nil {
			return types.NewValidationError("invalid %s payload: %v", resource, err)
		}
		q := fmt.Sprintf("UPDATE %s SET body = ? WHERE resource = ? AND id = ?", s.table)
		if _, err := s.exec(ctx, tx, q, string(body), resource, string(id)); err != nil {
			return err
		}
		rec = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// DeleteOne removes a record.
func (s *SQL) DeleteOne(ctx context.Context, resource string, id types.ID, meta types.Meta) error {
	return s.DeleteMany(ctx, resource, []types.ID{id}, meta)
}

// DeleteMany removes records. Nothing is removed when any id is missing.
func (s *SQL) DeleteMany(ctx context.Context, resource string, ids []types.ID, _ types.Meta) error {
	return s.inTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.selectIDs(ctx, tx, resource, ids)
		if err != nil {
			return err
		}
		q := fmt.Sprintf("DELETE FROM %s WHERE resource = ? AND id = ?", s.table)
		for _, id := range ids {
			if _, ok := existing[id]; !ok {
				return types.NewNotFoundError("%s %s not found", resource, id)
			}
			if _, err := s.exec(ctx, tx, q, resource, string(id)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Custom dispatches to a handler registered with HandleCustom.
func (s *SQL) Custom(ctx context.Context, req types.CustomRequest) (*types.CustomResponse, error) {
	h, ok := s.handlers[customRoute(req.Method, req.URL)]
	if !ok {
		return nil, types.NewNotFoundError("no handler for %s %s", req.Method, req.URL)
	}
	return h(ctx, req)
}
