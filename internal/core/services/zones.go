package services

import (
	"context"
	"errors"
	"time"

	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/calendar"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/core/domain"
	"github.com/comitanigiacomo/kanso-progress-engine/internal/logger"
)

// zoneLookup resolves a user's calendar zone. Lookups never fail: a missing
// user or a broken repository yields the resolver's default zone.
type zoneLookup struct {
	users    domain.UserRepository
	resolver *calendar.Resolver
}

func (z *zoneLookup) location(ctx context.Context, userID string) *time.Location {
	if z.resolver == nil {
		z.resolver = calendar.NewResolver(calendar.DefaultZone)
	}
	if z.users == nil {
		return z.resolver.Location("")
	}

	user, err := z.users.GetByID(ctx, userID)
	if err != nil {
		if !errors.Is(err, domain.ErrUserNotFound) {
			logger.Warn("user lookup failed, using default timezone", "user_id", userID, "err", err)
		}
		return z.resolver.Location("")
	}
	return z.resolver.Location(user.Timezone)
}
