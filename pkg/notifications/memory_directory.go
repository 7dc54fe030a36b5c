package notifications

import (
	"context"
	"slices"
	"sync"
)

// User is a directory entry.
type User struct {
	ID        string   `json:"id"`
	Email     string   `json:"email,omitempty"`
	Mobile    string   `json:"mobile,omitempty"`
	Roles     []string `json:"roles,omitempty"`
	BranchIDs []string `json:"branch_ids,omitempty"`
	Active    bool     `json:"active"`
}

func (u User) recipient() Recipient {
	return Recipient{UserID: u.ID, Email: u.Email, Mobile: u.Mobile}
}

// MemoryDirectory is an in-memory UserDirectory for development and tests.
type MemoryDirectory struct {
	users []User
	mu    sync.RWMutex
}

// NewMemoryDirectory creates a directory holding users.
func NewMemoryDirectory(users ...User) *MemoryDirectory {
	return &MemoryDirectory{users: slices.Clone(users)}
}

// Put adds u or replaces the user with the same id.
func (d *MemoryDirectory) Put(u User) {
	d.mu.Lock()
	defer d.mu.Unlock()

	for i := range d.users {
		if d.users[i].ID == u.ID {
			d.users[i] = u
			return
		}
	}
	d.users = append(d.users, u)
}

func (d *MemoryDirectory) ActiveUsers(ctx context.Context, ids []string) ([]Recipient, error) {
	return d.filter(func(u User) bool { return slices.Contains(ids, u.ID) }), nil
}

func (d *MemoryDirectory) ActiveUsersByRoles(ctx context.Context, roles []string) ([]Recipient, error) {
	return d.filter(func(u User) bool {
		return slices.ContainsFunc(u.Roles, func(r string) bool { return slices.Contains(roles, r) })
	}), nil
}

func (d *MemoryDirectory) ActiveUsersByBranch(ctx context.Context, branchID string) ([]Recipient, error) {
	return d.filter(func(u User) bool { return slices.Contains(u.BranchIDs, branchID) }), nil
}

func (d *MemoryDirectory) filter(keep func(User) bool) []Recipient {
	d.mu.RLock()
	defer d.mu.RUnlock()

	var out []Recipient
	for _, u := range d.users {
		if u.Active && keep(u) {
			out = append(out, u.recipient())
		}
	}
	return out
}
