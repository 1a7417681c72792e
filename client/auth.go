package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/avolkov/coursekit/model"
	"github.com/avolkov/coursekit/storage"
)

// RegisterParams are the fields required to create an account.
type RegisterParams struct {
	Username  string `json:"username"`
	Email     string `json:"email"`
	Password  string `json:"password"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Role      string `json:"role"`
}

// Login authenticates and persists the issued token pair. The returned user
// is also cached so a later CurrentUser call can be answered offline.
// Login itself is never served from cache and never queued.
func (c *Client) Login(ctx context.Context, username, password string) (*model.User, error) {
	body, err := json.Marshal(map[string]string{"username": username, "password": password})
	if err != nil {
		return nil, err
	}

	// The login call bypasses send: a 401 here means bad credentials,
	// not an expired access token, so no refresh must be attempted.
	data, status, err := c.roundTrip(ctx, http.MethodPost, "/auth/login/", body, "", nil)
	if err != nil {
		return nil, err
	}
	switch {
	case status == http.StatusOK:
	case status == http.StatusUnauthorized:
		return nil, fmt.Errorf("%w: invalid username or password", ErrUnauthorized)
	default:
		return nil, serverError(status, data)
	}

	pair, err := decode[model.TokenPair](data)
	if err != nil {
		return nil, err
	}
	creds := storage.Credentials{
		AccessToken:  pair.Access,
		RefreshToken: pair.Refresh,
		ExpiresAt:    tokenExpiry(pair.Refresh),
	}
	if err := c.creds.Save(creds); err != nil {
		return nil, fmt.Errorf("%w: persisting credentials: %v", ErrStorage, err)
	}

	if pair.User != nil {
		if raw, err := json.Marshal(pair.User); err == nil {
			if cerr := c.cache.Put("users", "me", raw); cerr != nil {
				c.log.Warn().Err(cerr).Msg("caching current user failed")
			}
		}
	}
	c.log.Debug().Str("username", username).Msg("login succeeded")
	return pair.User, nil
}

// Register creates a new student account. It does not log in.
func (c *Client) Register(ctx context.Context, p RegisterParams) error {
	if p.Role == "" {
		p.Role = "student"
	}
	body, err := json.Marshal(p)
	if err != nil {
		return err
	}
	data, status, err := c.roundTrip(ctx, http.MethodPost, "/auth/register/", body, "", nil)
	if err != nil {
		return err
	}
	if status != http.StatusCreated {
		return serverError(status, data)
	}
	return nil
}

// Logout notifies the server best-effort, then clears stored credentials.
// Clearing always happens, even when the server call fails.
func (c *Client) Logout(ctx context.Context) error {
	if _, err := c.send(ctx, http.MethodPost, "/auth/logout/", nil, nil); err != nil {
		c.log.Debug().Err(err).Msg("logout call failed, clearing credentials anyway")
	}
	if err := c.creds.Clear(); err != nil {
		return fmt.Errorf("%w: clearing credentials: %v", ErrStorage, err)
	}
	return nil
}

// CurrentUser fetches the authenticated identity, falling back to the
// cached copy when offline.
func (c *Client) CurrentUser(ctx context.Context) (model.User, Source, error) {
	data, src, err := c.read(ctx, readSpec{path: "/auth/me/", entityType: "users", key: "me"})
	if err != nil {
		return model.User{}, src, err
	}
	user, err := decode[model.User](data)
	return user, src, err
}

// refreshAccess exchanges the refresh token for a new access token and
// persists it. Concurrent callers share a single in-flight refresh.
func (c *Client) refreshAccess(ctx context.Context, refreshToken string) error {
	_, err, _ := c.refreshGroup.Do("refresh", func() (any, error) {
		// The outcome is shared with every caller that observed a 401,
		// so the round trip must outlive whichever caller entered the
		// group first. roundTrip still bounds it with the call timeout.
		rctx := context.WithoutCancel(ctx)

		body, err := json.Marshal(map[string]string{"refresh": refreshToken})
		if err != nil {
			return nil, err
		}
		data, status, err := c.roundTrip(rctx, http.MethodPost, "/auth/refresh/", body, "", nil)
		if err != nil {
			return nil, err
		}
		if status != http.StatusOK {
			return nil, fmt.Errorf("%w: refresh rejected with status %d", ErrUnauthorized, status)
		}
		pair, err := decode[model.TokenPair](data)
		if err != nil {
			return nil, err
		}
		if err := c.creds.SaveAccess(pair.Access); err != nil {
			return nil, fmt.Errorf("%w: persisting access token: %v", ErrStorage, err)
		}
		c.log.Debug().Msg("access token refreshed")
		return nil, nil
	})
	return err
}

// tokenExpiry extracts the exp claim from a JWT without verifying its
// signature. Verification is the server's job; the client only needs the
// expiry to know when stored credentials become useless. A non-JWT token
// yields a zero time, meaning no local expiry is enforced.
func tokenExpiry(token string) time.Time {
	var claims jwt.RegisteredClaims
	if _, _, err := jwt.NewParser().ParseUnverified(token, &claims); err != nil {
		return time.Time{}
	}
	if claims.ExpiresAt == nil {
		return time.Time{}
	}
	return claims.ExpiresAt.Time
}
