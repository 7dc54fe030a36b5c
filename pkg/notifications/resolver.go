package notifications

import (
	"context"
	"fmt"
	"slices"

	"github.com/dmitrymomot/posnotify/pkg/async"
)

// UserDirectory looks up active users. Inactive users are never returned.
type UserDirectory interface {
	ActiveUsers(ctx context.Context, ids []string) ([]Recipient, error)
	ActiveUsersByRoles(ctx context.Context, roles []string) ([]Recipient, error)
	ActiveUsersByBranch(ctx context.Context, branchID string) ([]Recipient, error)
}

// Resolver expands a RecipientSpec into concrete, deduplicated recipients.
type Resolver struct {
	dir UserDirectory
}

// NewResolver creates a Resolver backed by dir.
func NewResolver(dir UserDirectory) *Resolver {
	return &Resolver{dir: dir}
}

type lookup = func(ctx context.Context) ([]Recipient, error)

// Resolve looks up every populated field of spec concurrently and returns the
// union deduplicated by Recipient.Key, in field order. An empty result is a
// validation error wrapping ErrNoRecipients.
func (r *Resolver) Resolve(ctx context.Context, spec RecipientSpec) ([]Recipient, error) {
	var lookups []lookup

	ids := compact(append([]string{spec.UserID}, spec.UserIDs...))
	if len(ids) > 0 {
		lookups = append(lookups, func(ctx context.Context) ([]Recipient, error) {
			return r.dir.ActiveUsers(ctx, ids)
		})
	}
	roles := compact(append([]string{spec.Role}, spec.Roles...))
	if len(roles) > 0 {
		lookups = append(lookups, func(ctx context.Context) ([]Recipient, error) {
			return r.dir.ActiveUsersByRoles(ctx, roles)
		})
	}
	if spec.BranchID != "" {
		lookups = append(lookups, func(ctx context.Context) ([]Recipient, error) {
			return r.dir.ActiveUsersByBranch(ctx, spec.BranchID)
		})
	}

	futures := make([]*async.Future[[]Recipient], 0, len(lookups))
	for _, fn := range lookups {
		futures = append(futures, async.Run(ctx, fn))
	}
	groups, err := async.WaitAll(futures...)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve recipients: %w", err)
	}

	if spec.UserID == "" && (spec.Email != "" || spec.Mobile != "") {
		groups = append(groups, []Recipient{{Email: spec.Email, Mobile: spec.Mobile}})
	}

	seen := make(map[string]struct{})
	var out []Recipient
	for _, group := range groups {
		for _, rcpt := range group {
			key := rcpt.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, rcpt)
		}
	}

	if len(out) == 0 {
		return nil, errNoRecipients()
	}
	return out, nil
}

// compact drops empty and repeated values, keeping first occurrences.
func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v != "" && !slices.Contains(out, v) {
			out = append(out, v)
		}
	}
	return out
}
