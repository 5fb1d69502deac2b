// Package memory provides an in-memory implementation of the persistence
// interfaces. It backs the use case tests and is not suitable for production:
// state is lost on restart. Execute serializes transactions and rolls the
// store back when the callback errors, matching the database-backed manager.
package memory

import (
	"context"
	"sync"
	"time"

	"gatekeeper/internal/domain/entity"
	"gatekeeper/internal/domain/repository"

	"github.com/google/uuid"
)

// Store holds all state behind a single mutex. It implements every repository
// interface plus TransactionManager and RepositoryFactory, so it can stand in
// for the whole persistence layer.
type Store struct {
	txMu    sync.Mutex // serializes Execute, mimicking row-lock blocking
	mu      sync.Mutex
	users   map[uuid.UUID]*entity.User
	emails  map[string]uuid.UUID
	tokens  map[string]*entity.RefreshToken // keyed by token hash
	history map[uuid.UUID]*entity.RotationHistory
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{
		users:   make(map[uuid.UUID]*entity.User),
		emails:  make(map[string]uuid.UUID),
		tokens:  make(map[string]*entity.RefreshToken),
		history: make(map[uuid.UUID]*entity.RotationHistory),
	}
}

// --- repository.UserRepository ---

// CreateUser persists a new user, enforcing email uniqueness.
func (s *Store) CreateUser(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.emails[user.Email]; ok {
		return repository.ErrEmailExists
	}

	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now

	stored := *user
	s.users[user.ID] = &stored
	s.emails[user.Email] = user.ID

	return nil
}

// GetUserByID retrieves a user by their unique ID.
func (s *Store) GetUserByID(_ context.Context, id uuid.UUID) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	found := *user

	return &found, nil
}

// GetUserByEmail retrieves a user by their normalized email address.
func (s *Store) GetUserByEmail(_ context.Context, email string) (*entity.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	found := *s.users[id]

	return &found, nil
}

// UpdateUser updates a user's mutable profile fields.
func (s *Store) UpdateUser(_ context.Context, user *entity.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.users[user.ID]
	if !ok {
		return repository.ErrUserNotFound
	}

	if user.Email != current.Email {
		if _, taken := s.emails[user.Email]; taken {
			return repository.ErrEmailExists
		}
		delete(s.emails, current.Email)
		s.emails[user.Email] = user.ID
	}

	current.Email = user.Email
	current.Name = user.Name
	current.UpdatedAt = time.Now()

	return nil
}

// UpdatePassword replaces the user's stored password hash.
func (s *Store) UpdatePassword(_ context.Context, id uuid.UUID, passwordHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}

	user.PasswordHash = passwordHash
	user.UpdatedAt = time.Now()

	return nil
}

// DeleteUser removes the user record.
func (s *Store) DeleteUser(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return repository.ErrUserNotFound
	}

	delete(s.emails, user.Email)
	delete(s.users, id)

	return nil
}

// --- repository.RefreshTokenRepository ---

// CreateRefreshToken persists a new refresh token record.
func (s *Store) CreateRefreshToken(_ context.Context, token *entity.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token.ID == uuid.Nil {
		token.ID = uuid.New()
	}

	stored := *token
	s.tokens[token.TokenHash] = &stored

	return nil
}

// FindRefreshTokenByHash retrieves a refresh token record by its stored hash.
func (s *Store) FindRefreshTokenByHash(_ context.Context, tokenHash string) (*entity.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	token, ok := s.tokens[tokenHash]
	if !ok {
		return nil, repository.ErrRefreshTokenNotFound
	}

	found := *token

	return &found, nil
}

// FindRefreshTokensByUserID retrieves all refresh tokens for a user.
func (s *Store) FindRefreshTokensByUserID(_ context.Context, userID uuid.UUID) ([]*entity.RefreshToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var tokens []*entity.RefreshToken
	for _, token := range s.tokens {
		if token.UserID == userID {
			found := *token
			tokens = append(tokens, &found)
		}
	}

	return tokens, nil
}

// ClaimRefreshTokenByHash atomically removes the record with the given hash
// and reports whether this caller removed it.
func (s *Store) ClaimRefreshTokenByHash(_ context.Context, tokenHash string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.tokens[tokenHash]; !ok {
		return false, nil
	}
	delete(s.tokens, tokenHash)

	return true, nil
}

// DeleteRefreshTokensByUserID removes all refresh tokens for a user.
func (s *Store) DeleteRefreshTokensByUserID(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for hash, token := range s.tokens {
		if token.UserID == userID {
			delete(s.tokens, hash)
		}
	}

	return nil
}

// DeleteExpiredRefreshTokens removes all expired refresh tokens.
func (s *Store) DeleteExpiredRefreshTokens(_ context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for hash, token := range s.tokens {
		if token.ExpiresAt.Before(now) {
			delete(s.tokens, hash)
		}
	}

	return nil
}

// CountActiveSessionsByUserID returns the number of non-expired sessions for a user.
func (s *Store) CountActiveSessionsByUserID(_ context.Context, userID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	count := 0
	for _, token := range s.tokens {
		if token.UserID == userID && token.ExpiresAt.After(now) {
			count++
		}
	}

	return count, nil
}

// --- repository.RotationHistoryRepository ---

// GetRotationHistory retrieves the user's rotation slot.
func (s *Store) GetRotationHistory(_ context.Context, userID uuid.UUID) (*entity.RotationHistory, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	history, ok := s.history[userID]
	if !ok {
		return nil, repository.ErrRotationHistoryNotFound
	}

	found := *history

	return &found, nil
}

// ReplaceRotationHistory overwrites the user's rotation slot.
func (s *Store) ReplaceRotationHistory(_ context.Context, history *entity.RotationHistory) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored := *history
	s.history[history.UserID] = &stored

	return nil
}

// ClearRotationHistory removes the user's rotation slot, if any.
func (s *Store) ClearRotationHistory(_ context.Context, userID uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.history, userID)

	return nil
}

// --- repository.TransactionManager / repository.RepositoryFactory ---

// Execute runs fn against the store itself. Transactions run one at a time,
// which stands in for the row-lock blocking a real database provides. When fn
// returns an error the store is restored to its pre-transaction state, the
// same contract the database-backed manager enforces with a rollback.
func (s *Store) Execute(_ context.Context, fn func(repoFactory repository.RepositoryFactory) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	snap := s.snapshot()

	if err := fn(s); err != nil {
		s.restore(snap)

		return err
	}

	return nil
}

// storeState is a deep copy of the store's maps, taken before a transaction
// so an erroring callback can be undone.
type storeState struct {
	users   map[uuid.UUID]*entity.User
	emails  map[string]uuid.UUID
	tokens  map[string]*entity.RefreshToken
	history map[uuid.UUID]*entity.RotationHistory
}

func (s *Store) snapshot() *storeState {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := &storeState{
		users:   make(map[uuid.UUID]*entity.User, len(s.users)),
		emails:  make(map[string]uuid.UUID, len(s.emails)),
		tokens:  make(map[string]*entity.RefreshToken, len(s.tokens)),
		history: make(map[uuid.UUID]*entity.RotationHistory, len(s.history)),
	}
	for id, user := range s.users {
		copied := *user
		snap.users[id] = &copied
	}
	for email, id := range s.emails {
		snap.emails[email] = id
	}
	for hash, token := range s.tokens {
		copied := *token
		snap.tokens[hash] = &copied
	}
	for id, history := range s.history {
		copied := *history
		snap.history[id] = &copied
	}

	return snap
}

func (s *Store) restore(snap *storeState) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.users = snap.users
	s.emails = snap.emails
	s.tokens = snap.tokens
	s.history = snap.history
}

// NewUserRepository returns the store itself.
func (s *Store) NewUserRepository() repository.UserRepository {
	return s
}

// NewRefreshTokenRepository returns the store itself.
func (s *Store) NewRefreshTokenRepository() repository.RefreshTokenRepository {
	return s
}

// NewRotationHistoryRepository returns the store itself.
func (s *Store) NewRotationHistoryRepository() repository.RotationHistoryRepository {
	return s
}

// --- test helpers ---

// BackdateRefreshToken shifts a stored token's timestamps by -delta. Tests use
// this to age a session without waiting.
func (s *Store) BackdateRefreshToken(tokenHash string, delta time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if token, ok := s.tokens[tokenHash]; ok {
		token.IssuedAt = token.IssuedAt.Add(-delta)
		token.LastUsedAt = token.LastUsedAt.Add(-delta)
		token.ExpiresAt = token.ExpiresAt.Add(-delta)
	}
}

// BackdateRotationHistory shifts a user's rotation slot by -delta, pushing a
// recent rotation outside the grace window.
func (s *Store) BackdateRotationHistory(userID uuid.UUID, delta time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if history, ok := s.history[userID]; ok {
		history.RetiredAt = history.RetiredAt.Add(-delta)
	}
}
