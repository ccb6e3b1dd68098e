package redis

import (
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/btfbank/bank-api/shared/models"
)

const (
	accountViewPrefix = "account:view:"
	userViewPrefix    = "user:view:"
)

// Typed views always expire so a projection that lost a race with an
// invalidation cannot outlive the TTL.
const (
	DefaultAccountViewTTL = 5 * time.Minute
	DefaultUserViewTTL    = 10 * time.Minute
)

// AccountViews caches account projections keyed by account id.
type AccountViews = ViewCache[models.AccountView]

// UserViews caches profile projections keyed by user id.
type UserViews = ViewCache[models.UserView]

// NewAccountViews falls back to DefaultAccountViewTTL when ttl is not positive.
func NewAccountViews(client *goredis.Client, ttl time.Duration) *AccountViews {
	if ttl <= 0 {
		ttl = DefaultAccountViewTTL
	}
	return NewViewCache[models.AccountView](client, accountViewPrefix, ttl)
}

// NewUserViews falls back to DefaultUserViewTTL when ttl is not positive.
func NewUserViews(client *goredis.Client, ttl time.Duration) *UserViews {
	if ttl <= 0 {
		ttl = DefaultUserViewTTL
	}
	return NewViewCache[models.UserView](client, userViewPrefix, ttl)
}
