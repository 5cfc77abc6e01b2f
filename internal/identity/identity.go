// Package identity resolves the logged-in user that owns submitted records.
//
// The session store is a small YAML file holding a single key, user_id by
// default, written by login and removed by logout. A fixed user id from the
// configuration replaces the file entirely.
package identity

import (
	"context"
	"strings"
	"time"

	"github.com/parkapp/parkwatch/internal/conf"
	"github.com/parkapp/parkwatch/internal/errors"
)

// ErrNoIdentity is returned when no user is logged in.
var ErrNoIdentity = errors.NewStd("no user is logged in")

// Provider resolves the current user id.
type Provider interface {
	UserID(ctx context.Context) (string, error)
}

// Static always returns the same user id.
type Static string

// UserID implements Provider.
func (s Static) UserID(context.Context) (string, error) {
	id := strings.TrimSpace(string(s))
	if id == "" {
		return "", notFound("static")
	}
	return id, nil
}

// FromSettings builds the provider described by settings. Relative store
// paths are resolved against the directory of configFile.
func FromSettings(s conf.IdentitySettings, configFile string) Provider {
	if strings.TrimSpace(s.UserID) != "" {
		return Static(s.UserID)
	}
	store := NewFileStore(conf.ResolvePath(s.Path, configFile), s.Key)
	if s.CacheTTL <= 0 {
		return store
	}
	return NewCached(store, s.CacheTTL)
}

func notFound(source string) error {
	return errors.New(ErrNoIdentity).
		Component("identity").
		Category(errors.CategoryIdentity).
		Context("source", source).
		Priority(errors.PriorityLow).
		Build()
}

// DefaultCacheTTL is used by NewCached when ttl is not positive.
const DefaultCacheTTL = 5 * time.Minute
