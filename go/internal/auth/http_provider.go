package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"

	"github.com/mcdev12/focusroom/go/internal/models"
)

const defaultExpirySkew = 30 * time.Second

// TokenAPI is the subset of the REST client the provider needs.
type TokenAPI interface {
	Me(ctx context.Context, token string) (*models.User, error)
	Refresh(ctx context.Context, token string) (string, error)
}

// HTTPProvider proves freshness from the JWT exp claim when possible and
// otherwise validates against the server. Refreshes are coalesced.
type HTTPProvider struct {
	store  *MemoryStore
	api    TokenAPI
	clock  clockwork.Clock
	skew   time.Duration
	parser *jwt.Parser
	group  singleflight.Group
}

func NewHTTPProvider(store *MemoryStore, api TokenAPI, clock clockwork.Clock) *HTTPProvider {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HTTPProvider{
		store:  store,
		api:    api,
		clock:  clock,
		skew:   defaultExpirySkew,
		parser: jwt.NewParser(),
	}
}

func (p *HTTPProvider) Token(ctx context.Context) (string, error) {
	token := p.store.Get()
	if token == "" {
		return "", ErrNoCredential
	}

	if exp, ok := p.expiry(token); ok {
		if p.clock.Now().Add(p.skew).Before(exp) {
			return token, nil
		}
		log.Debug().Time("expires_at", exp).Msg("token near expiry, refreshing")
		return p.ForceRefresh(ctx)
	}

	// Opaque or claimless token: ask the server.
	if _, err := p.api.Me(ctx, token); err != nil {
		log.Debug().Err(err).Msg("token validation failed, refreshing")
		return p.ForceRefresh(ctx)
	}
	return token, nil
}

func (p *HTTPProvider) ForceRefresh(ctx context.Context) (string, error) {
	v, err, shared := p.group.Do("refresh", func() (interface{}, error) {
		current := p.store.Get()
		if current == "" {
			return "", ErrNoCredential
		}
		fresh, err := p.api.Refresh(ctx, current)
		if err != nil {
			return "", fmt.Errorf("%w: %w", ErrRefreshFailed, err)
		}
		p.store.Set(fresh)
		log.Info().Msg("credential refreshed")
		return fresh, nil
	})
	if err != nil {
		if !errors.Is(err, ErrNoCredential) {
			log.Warn().Err(err).Bool("shared", shared).Msg("credential refresh failed")
		}
		return "", err
	}
	return v.(string), nil
}

func (p *HTTPProvider) expiry(token string) (time.Time, bool) {
	claims := jwt.RegisteredClaims{}
	if _, _, err := p.parser.ParseUnverified(token, &claims); err != nil {
		return time.Time{}, false
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, false
	}
	return exp.Time, true
}
