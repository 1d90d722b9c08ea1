package persistence

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	. "github.com/Masterminds/squirrel"
	"github.com/pocketbase/dbx"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// sqlRepository is the shared base for all SQL-backed repositories. It
// bridges squirrel builders to dbx by rewriting positional placeholders
// into named params.
type sqlRepository struct {
	ctx       context.Context
	db        dbx.Builder
	tableName string
}

func (r *sqlRepository) newSelect() SelectBuilder {
	return StatementBuilder.Select().From(r.tableName)
}

func (r *sqlRepository) toSQL(sq Sqlizer) (string, dbx.Params, error) {
	query, args, err := sq.ToSql()
	if err != nil {
		return "", nil, err
	}
	params := dbx.Params{}
	for i, arg := range args {
		p := fmt.Sprintf("p%d", i)
		query = strings.Replace(query, "?", "{:"+p+"}", 1)
		params[p] = arg
	}
	return query, params, nil
}

func (r *sqlRepository) queryOne(sq Sqlizer, response any) error {
	query, params, err := r.toSQL(sq)
	if err != nil {
		return err
	}
	err = r.db.NewQuery(query).Bind(params).WithContext(r.ctx).One(response)
	if errors.Is(err, sql.ErrNoRows) {
		return model.ErrNotFound
	}
	return err
}

func (r *sqlRepository) queryAll(sq Sqlizer, response any) error {
	query, params, err := r.toSQL(sq)
	if err != nil {
		return err
	}
	return r.db.NewQuery(query).Bind(params).WithContext(r.ctx).All(response)
}

func (r *sqlRepository) executeSQL(sq Sqlizer) (int64, error) {
	query, params, err := r.toSQL(sq)
	if err != nil {
		return 0, err
	}
	res, err := r.db.NewQuery(query).Bind(params).WithContext(r.ctx).Execute()
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (r *sqlRepository) exists(cond Sqlizer) (bool, error) {
	sq := StatementBuilder.Select("count(*) as count").From(r.tableName).Where(cond)
	var c struct {
		Count int64 `db:"count"`
	}
	err := r.queryOne(sq, &c)
	return c.Count > 0, err
}

func (r *sqlRepository) count(sq SelectBuilder) (int64, error) {
	sq = sq.RemoveColumns().Columns("count(*) as count")
	var c struct {
		Count int64 `db:"count"`
	}
	err := r.queryOne(sq, &c)
	return c.Count, err
}

func (r *sqlRepository) delete(cond Sqlizer) error {
	sq := StatementBuilder.Delete(r.tableName).Where(cond)
	n, err := r.executeSQL(sq)
	if err != nil {
		return err
	}
	if n == 0 {
		return model.ErrNotFound
	}
	return nil
}
