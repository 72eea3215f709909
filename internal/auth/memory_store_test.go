package auth_test

import (
	"context"
	"database/sql"
	"strconv"
	"sync"
	"time"

	"contract-secretary/internal/auth"
)

// memoryStore implements auth.Store behind a single mutex, which makes the
// conditional Consume operations atomic the same way the SQL versions are.
type memoryStore struct {
	mu      sync.Mutex
	nextID  int
	users   map[string]auth.User
	tokens  map[string]*auth.RefreshTokenRecord // keyed by token hash
	codes   map[string]*auth.AuthorizationCodeRecord
	byID    map[string]*auth.RefreshTokenRecord
	codeIDs map[string]*auth.AuthorizationCodeRecord
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		users:   make(map[string]auth.User),
		tokens:  make(map[string]*auth.RefreshTokenRecord),
		codes:   make(map[string]*auth.AuthorizationCodeRecord),
		byID:    make(map[string]*auth.RefreshTokenRecord),
		codeIDs: make(map[string]*auth.AuthorizationCodeRecord),
	}
}

var _ auth.Store = (*memoryStore)(nil)

func (m *memoryStore) newID() string {
	m.nextID++
	return "id-" + strconv.Itoa(m.nextID)
}

func (m *memoryStore) CreateUser(_ context.Context, user auth.User) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if user.Email != nil && existing.Email != nil && *existing.Email == *user.Email {
			return auth.User{}, auth.ErrEmailTaken
		}
	}

	user.ID = m.newID()
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.users[user.ID] = user
	return user, nil
}

func (m *memoryStore) GetUserByID(_ context.Context, id string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[id]
	if !ok {
		return auth.User{}, sql.ErrNoRows
	}
	return user, nil
}

func (m *memoryStore) GetUserByEmail(_ context.Context, email string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.Email != nil && *user.Email == email {
			return user, nil
		}
	}
	return auth.User{}, sql.ErrNoRows
}

func (m *memoryStore) GetUserByNaverID(_ context.Context, naverID string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, user := range m.users {
		if user.NaverID != nil && *user.NaverID == naverID {
			return user, nil
		}
	}
	return auth.User{}, sql.ErrNoRows
}

func (m *memoryStore) UpdateNaverUser(_ context.Context, userID, encryptedAccessToken, encryptedRefreshToken string, email *string, name string) (auth.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	user, ok := m.users[userID]
	if !ok {
		return auth.User{}, sql.ErrNoRows
	}

	user.NaverAccessToken = &encryptedAccessToken
	user.NaverRefreshToken = &encryptedRefreshToken
	if email != nil {
		user.Email = email
	}
	if name != "" {
		user.Name = name
	}
	user.UpdatedAt = time.Now().UTC()
	m.users[userID] = user
	return user, nil
}

func (m *memoryStore) CreateRefreshToken(_ context.Context, userID, tokenHash string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record := &auth.RefreshTokenRecord{
		ID:        m.newID(),
		UserID:    userID,
		TokenHash: tokenHash,
		ExpiresAt: expiresAt,
		CreatedAt: time.Now().UTC(),
	}
	m.tokens[tokenHash] = record
	m.byID[record.ID] = record
	return nil
}

func (m *memoryStore) GetRefreshToken(_ context.Context, tokenHash string) (auth.RefreshTokenRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.tokens[tokenHash]
	if !ok {
		return auth.RefreshTokenRecord{}, sql.ErrNoRows
	}
	return *record, nil
}

func (m *memoryStore) ConsumeRefreshToken(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.byID[id]
	if !ok || record.RevokedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	record.RevokedAt = &now
	return true, nil
}

func (m *memoryStore) RevokeRefreshToken(_ context.Context, tokenHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.tokens[tokenHash]; ok && record.RevokedAt == nil {
		now := time.Now().UTC()
		record.RevokedAt = &now
	}
	return nil
}

func (m *memoryStore) RevokeAllRefreshTokens(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now().UTC()
	for _, record := range m.tokens {
		if record.UserID == userID && record.RevokedAt == nil {
			record.RevokedAt = &now
		}
	}
	return nil
}

func (m *memoryStore) CreateAuthorizationCode(_ context.Context, record auth.AuthorizationCodeRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.ID = m.newID()
	record.CreatedAt = time.Now().UTC()
	stored := record
	m.codes[record.CodeHash] = &stored
	m.codeIDs[record.ID] = &stored
	return nil
}

func (m *memoryStore) GetAuthorizationCode(_ context.Context, codeHash string) (auth.AuthorizationCodeRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.codes[codeHash]
	if !ok {
		return auth.AuthorizationCodeRecord{}, sql.ErrNoRows
	}
	return *record, nil
}

func (m *memoryStore) ConsumeAuthorizationCode(_ context.Context, id string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record, ok := m.codeIDs[id]
	if !ok || record.UsedAt != nil {
		return false, nil
	}
	now := time.Now().UTC()
	record.UsedAt = &now
	return true, nil
}

// test helpers

func (m *memoryStore) activeRefreshTokens(userID string) int {
	m.mu.Lock()
	defer m.mu.Unlock()

	count := 0
	for _, record := range m.tokens {
		if record.UserID == userID && record.RevokedAt == nil {
			count++
		}
	}
	return count
}

func (m *memoryStore) expireCode(codeHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.codes[codeHash]; ok {
		record.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
}

func (m *memoryStore) expireRefreshToken(tokenHash string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if record, ok := m.tokens[tokenHash]; ok {
		record.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	}
}
