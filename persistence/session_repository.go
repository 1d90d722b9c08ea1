package persistence

import (
	"context"
	"errors"
	"strings"
	"time"

	. "github.com/Masterminds/squirrel"
	"github.com/deluan/rest"
	"github.com/pocketbase/dbx"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// sessionRow flattens a session for storage. Team ids travel as a
// comma-joined list in a single column.
type sessionRow struct {
	ID        string     `db:"id"`
	Name      string     `db:"name"`
	Status    string     `db:"status"`
	StartTime time.Time  `db:"start_time"`
	EndTime   *time.Time `db:"end_time"`
	TeamIDs   string     `db:"team_ids"`
	CreatedAt time.Time  `db:"created_at"`
	UpdatedAt time.Time  `db:"updated_at"`
}

func toSessionRow(s *model.Session) sessionRow {
	return sessionRow{
		ID:        s.ID,
		Name:      s.Name,
		Status:    string(s.Status),
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		TeamIDs:   strings.Join(s.TeamIDs, ","),
		CreatedAt: s.CreatedAt,
		UpdatedAt: s.UpdatedAt,
	}
}

func (row sessionRow) toModel() *model.Session {
	s := &model.Session{
		ID:        row.ID,
		Name:      row.Name,
		Status:    model.SessionStatus(row.Status),
		StartTime: row.StartTime,
		EndTime:   row.EndTime,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
	if row.TeamIDs != "" {
		s.TeamIDs = strings.Split(row.TeamIDs, ",")
	}
	return s
}

type sessionRepository struct {
	sqlRepository
}

func NewSessionRepository(ctx context.Context, db dbx.Builder) model.SessionRepository {
	r := &sessionRepository{}
	r.ctx = ctx
	r.db = db
	r.tableName = "game_session"
	return r
}

func (r *sessionRepository) Exists(id string) (bool, error) {
	return r.exists(Eq{"id": id})
}

func (r *sessionRepository) Get(id string) (*model.Session, error) {
	sq := r.newSelect().Columns("*").Where(Eq{"id": id})
	var row sessionRow
	if err := r.queryOne(sq, &row); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

// GetCurrent returns the most recent session that has not ended.
func (r *sessionRepository) GetCurrent() (*model.Session, error) {
	sq := r.newSelect().Columns("*").
		Where(NotEq{"status": string(model.SessionEnded)}).
		OrderBy("created_at desc").Limit(1)
	var row sessionRow
	if err := r.queryOne(sq, &row); err != nil {
		return nil, err
	}
	return row.toModel(), nil
}

func (r *sessionRepository) GetAll() (model.Sessions, error) {
	sq := r.newSelect().Columns("*").OrderBy("created_at desc")
	var rows []sessionRow
	if err := r.queryAll(sq, &rows); err != nil {
		return nil, err
	}
	res := make(model.Sessions, len(rows))
	for i := range rows {
		res[i] = *rows[i].toModel()
	}
	return res, nil
}

func (r *sessionRepository) Save(session *model.Session) (string, error) {
	now := time.Now()
	session.CreatedAt = now
	session.UpdatedAt = now
	row := toSessionRow(session)
	sq := StatementBuilder.Insert(r.tableName).
		Columns("id", "name", "status", "start_time", "end_time", "team_ids", "created_at", "updated_at").
		Values(row.ID, row.Name, row.Status, row.StartTime, row.EndTime, row.TeamIDs, row.CreatedAt, row.UpdatedAt)
	if _, err := r.executeSQL(sq); err != nil {
		return "", err
	}
	return session.ID, nil
}

func (r *sessionRepository) Update(id string, session *model.Session, cols ...string) error {
	session.UpdatedAt = time.Now()
	row := toSessionRow(session)
	values := map[string]any{
		"name":       row.Name,
		"status":     row.Status,
		"start_time": row.StartTime,
		"end_time":   row.EndTime,
		"team_ids":   row.TeamIDs,
		"updated_at": row.UpdatedAt,
	}
	if len(cols) > 0 {
		filtered := map[string]any{"updated_at": row.UpdatedAt}
		for _, c := range cols {
			if v, ok := values[c]; ok {
				filtered[c] = v
			}
		}
		values = filtered
	}
	sq := StatementBuilder.Update(r.tableName).SetMap(values).Where(Eq{"id": id})
	n, err := r.executeSQL(sq)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}

// --- rest.Repository / rest.Persistable, used by the admin resource ---

func (r *sessionRepository) EntityName() string {
	return "game_session"
}

func (r *sessionRepository) NewInstance() interface{} {
	return &model.Session{}
}

func (r *sessionRepository) Read(id string) (interface{}, error) {
	s, err := r.Get(id)
	if errors.Is(err, model.ErrNotFound) {
		return nil, rest.ErrNotFound
	}
	return s, err
}

func (r *sessionRepository) ReadAll(options ...rest.QueryOptions) (interface{}, error) {
	return r.GetAll()
}

func (r *sessionRepository) Count(options ...rest.QueryOptions) (int64, error) {
	return r.count(r.newSelect())
}

var _ model.SessionRepository = (*sessionRepository)(nil)
var _ rest.Repository = (*sessionRepository)(nil)
