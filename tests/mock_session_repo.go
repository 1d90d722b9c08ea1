package tests

import (
	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// MockSessionRepo is an in-memory model.SessionRepository. Set Error to
// force every method to fail with it.
type MockSessionRepo struct {
	model.SessionRepository

	Sessions map[string]*model.Session
	Error    error
}

func NewMockSessionRepo() *MockSessionRepo {
	return &MockSessionRepo{Sessions: make(map[string]*model.Session)}
}

func (m *MockSessionRepo) Exists(id string) (bool, error) {
	if m.Error != nil {
		return false, m.Error
	}
	_, ok := m.Sessions[id]
	return ok, nil
}

func (m *MockSessionRepo) Get(id string) (*model.Session, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	if s, ok := m.Sessions[id]; ok {
		cp := *s
		return &cp, nil
	}
	return nil, model.ErrNotFound
}

func (m *MockSessionRepo) GetCurrent() (*model.Session, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	for _, s := range m.Sessions {
		if s.Status != model.SessionEnded {
			cp := *s
			return &cp, nil
		}
	}
	return nil, model.ErrNotFound
}

func (m *MockSessionRepo) GetAll() (model.Sessions, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	all := make(model.Sessions, 0, len(m.Sessions))
	for _, s := range m.Sessions {
		all = append(all, *s)
	}
	return all, nil
}

func (m *MockSessionRepo) Save(session *model.Session) (string, error) {
	if m.Error != nil {
		return "", m.Error
	}
	cp := *session
	m.Sessions[session.ID] = &cp
	return session.ID, nil
}

func (m *MockSessionRepo) Update(id string, session *model.Session, cols ...string) error {
	if m.Error != nil {
		return m.Error
	}
	if _, ok := m.Sessions[id]; !ok {
		return model.ErrNotFound
	}
	cp := *session
	cp.ID = id
	m.Sessions[id] = &cp
	return nil
}

// MockTransactionRepo is an in-memory model.TransactionRepository.
type MockTransactionRepo struct {
	model.TransactionRepository

	Transactions model.Transactions
	Error        error
}

func (m *MockTransactionRepo) Save(tx *model.Transaction) error {
	if m.Error != nil {
		return m.Error
	}
	m.Transactions = append(m.Transactions, *tx)
	return nil
}

func (m *MockTransactionRepo) Delete(id string) error {
	if m.Error != nil {
		return m.Error
	}
	for i, tx := range m.Transactions {
		if tx.ID == id {
			m.Transactions = append(m.Transactions[:i], m.Transactions[i+1:]...)
			return nil
		}
	}
	return model.ErrNotFound
}

func (m *MockTransactionRepo) GetBySession(sessionID string) (model.Transactions, error) {
	if m.Error != nil {
		return nil, m.Error
	}
	var out model.Transactions
	for _, tx := range m.Transactions {
		if tx.SessionID == sessionID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (m *MockTransactionRepo) DeleteBySession(sessionID string) error {
	if m.Error != nil {
		return m.Error
	}
	kept := m.Transactions[:0]
	for _, tx := range m.Transactions {
		if tx.SessionID != sessionID {
			kept = append(kept, tx)
		}
	}
	m.Transactions = kept
	return nil
}
