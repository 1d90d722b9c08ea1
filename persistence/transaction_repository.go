package persistence

import (
	"context"
	"errors"

	. "github.com/Masterminds/squirrel"
	"github.com/deluan/rest"
	"github.com/pocketbase/dbx"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

type transactionRepository struct {
	sqlRepository
}

func NewTransactionRepository(ctx context.Context, db dbx.Builder) model.TransactionRepository {
	r := &transactionRepository{}
	r.ctx = ctx
	r.db = db
	r.tableName = "transaction_log"
	return r
}

func (r *transactionRepository) Save(tx *model.Transaction) error {
	sq := StatementBuilder.Insert(r.tableName).
		Columns("id", "session_id", "token_id", "team_id", "device_id", "points", "memory_type", "timestamp").
		Values(tx.ID, tx.SessionID, tx.TokenID, tx.TeamID, tx.DeviceID, tx.Points, tx.MemoryType, tx.Timestamp)
	_, err := r.executeSQL(sq)
	return err
}

func (r *transactionRepository) Delete(id string) error {
	return r.delete(Eq{"id": id})
}

// GetBySession returns the session's transactions in scan order.
func (r *transactionRepository) GetBySession(sessionID string) (model.Transactions, error) {
	sq := r.newSelect().Columns("*").
		Where(Eq{"session_id": sessionID}).
		OrderBy("timestamp asc")
	res := model.Transactions{}
	err := r.queryAll(sq, &res)
	return res, err
}

func (r *transactionRepository) DeleteBySession(sessionID string) error {
	err := r.delete(Eq{"session_id": sessionID})
	if errors.Is(err, model.ErrNotFound) {
		return nil
	}
	return err
}

// --- rest.Repository, read-only admin resource ---

func (r *transactionRepository) EntityName() string {
	return "transaction_log"
}

func (r *transactionRepository) NewInstance() interface{} {
	return &model.Transaction{}
}

func (r *transactionRepository) Read(id string) (interface{}, error) {
	sq := r.newSelect().Columns("*").Where(Eq{"id": id})
	var res model.Transaction
	err := r.queryOne(sq, &res)
	if errors.Is(err, model.ErrNotFound) {
		return nil, rest.ErrNotFound
	}
	return &res, err
}

func (r *transactionRepository) ReadAll(options ...rest.QueryOptions) (interface{}, error) {
	sq := r.newSelect().Columns("*").OrderBy("timestamp desc")
	res := model.Transactions{}
	err := r.queryAll(sq, &res)
	return res, err
}

func (r *transactionRepository) Count(options ...rest.QueryOptions) (int64, error) {
	return r.count(r.newSelect())
}

var _ model.TransactionRepository = (*transactionRepository)(nil)
var _ rest.Repository = (*transactionRepository)(nil)
