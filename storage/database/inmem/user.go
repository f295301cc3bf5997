package inmemdb

import (
	"context"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/psms/core/user"
)

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil)

func NewUserRepository(db *DB) *userRepository {
	return &userRepository{db: db}
}

func (repo *userRepository) CheckEmailUniqueness(_ context.Context, email string, excludedUsers ...user.User) error {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return repo.checkEmail(email, excludedUsers...)
}

// checkEmail must be called with mu held.
func (repo *userRepository) checkEmail(email string, excludedUsers ...user.User) error {
	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, r := range repo.db.users {
		if r.Email == email && !excluded[r.ID] {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	if err := repo.checkEmail(usr.Email); err != nil {
		return user.User{}, err
	}
	usr.ID = uuid.New().String()
	repo.db.users[usr.ID] = &userRow{row: repo.db.nextRow(), User: usr}
	return usr, nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter user.QueryFilter) ([]user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	var ids map[string]bool
	if filter.IDs != nil {
		ids = make(map[string]bool, len(filter.IDs))
		for _, id := range filter.IDs {
			ids[id] = true
		}
	}
	search := strings.ToLower(filter.Search)

	users := make([]user.User, 0)
	for _, r := range repo.db.users {
		if ids != nil && !ids[r.ID] {
			continue
		}
		if filter.Role != "" && r.Role != filter.Role {
			continue
		}
		if search != "" &&
			!strings.Contains(strings.ToLower(r.Name), search) && !strings.Contains(strings.ToLower(r.Email), search) {
			continue
		}
		users = append(users, r.User)
	}
	sort.SliceStable(users, func(i, j int) bool {
		if users[i].Name == users[j].Name {
			return users[i].ID < users[j].ID
		}
		return users[i].Name < users[j].Name
	})
	return users, nil
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()

	switch {
	case filter.ID != "":
		if r, ok := repo.db.users[filter.ID]; ok {
			return r.User, nil
		}
	case filter.Email != "":
		for _, r := range repo.db.users {
			if r.Email == filter.Email {
				return r.User, nil
			}
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	repo.db.mu.Lock()
	defer repo.db.mu.Unlock()

	r, ok := repo.db.users[usr.ID]
	if !ok {
		return user.User{}, user.ErrNotFound
	}
	// email, role & creation date are immutable
	usr.Email = r.Email
	usr.Role = r.Role
	usr.CreatedAt = r.CreatedAt
	r.User = usr
	return usr, nil
}

func (repo *userRepository) CountUsers(_ context.Context) (int, error) {
	repo.db.mu.RLock()
	defer repo.db.mu.RUnlock()
	return len(repo.db.users), nil
}
