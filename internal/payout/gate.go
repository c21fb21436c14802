package payout

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"MarketSettle/internal/models"
)

const DefaultTimeout = 10 * time.Second

// RemoteAccount is what the provider reports about a connected account.
type RemoteAccount struct {
	ExternalID       string
	Country          string
	Currency         string
	ChargesEnabled   bool
	PayoutsEnabled   bool
	DetailsSubmitted bool
}

type Provider interface {
	CreateAccount(ctx context.Context, sellerID, country string) (RemoteAccount, error)
	FetchAccount(ctx context.Context, externalID string) (RemoteAccount, error)
	OnboardingLink(ctx context.Context, externalID string) (string, error)
}

// AccountStore persists payout accounts. GetPayoutAccount wraps
// models.ErrNotFound for unknown sellers. CreatePayoutAccount returns the
// stored row, which is the existing one if another writer got there first.
type AccountStore interface {
	GetPayoutAccount(ctx context.Context, sellerID string) (*models.PayoutAccount, error)
	CreatePayoutAccount(ctx context.Context, acct *models.PayoutAccount) (*models.PayoutAccount, error)
	UpdatePayoutAccount(ctx context.Context, acct *models.PayoutAccount) error
}

// Gate decides whether a seller may begin fulfilment. Capability flags only
// ever come from the provider; a nil Provider makes every remote operation
// fail with ErrProviderUnavailable.
type Gate struct {
	Store    AccountStore
	Provider Provider
	Timeout  time.Duration
	Country  string
	Now      func() time.Time
	Logger   *slog.Logger
}

func (g *Gate) timeout() time.Duration {
	if g.Timeout <= 0 {
		return DefaultTimeout
	}
	return g.Timeout
}

func (g *Gate) now() time.Time {
	if g.Now != nil {
		return g.Now().UTC()
	}
	return time.Now().UTC()
}

func (g *Gate) log() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

func (g *Gate) Account(ctx context.Context, sellerID string) (*models.PayoutAccount, error) {
	return g.Store.GetPayoutAccount(ctx, sellerID)
}

// Ready reads persisted state only. It never calls the provider.
func (g *Gate) Ready(ctx context.Context, sellerID string) error {
	acct, err := g.Store.GetPayoutAccount(ctx, sellerID)
	if errors.Is(err, models.ErrNotFound) {
		return fmt.Errorf("%w: seller %s has no payout account", models.ErrPayoutNotReady, sellerID)
	}
	if err != nil {
		return err
	}
	if !acct.FullyOnboarded() {
		return fmt.Errorf("%w: seller %s has not finished onboarding", models.ErrPayoutNotReady, sellerID)
	}
	return nil
}

// RefreshStatus pulls current capabilities from the provider and persists
// any change. On provider failure the persisted account is returned along
// with ErrProviderUnavailable.
func (g *Gate) RefreshStatus(ctx context.Context, sellerID string) (*models.PayoutAccount, error) {
	acct, err := g.Store.GetPayoutAccount(ctx, sellerID)
	if err != nil {
		return nil, err
	}
	if g.Provider == nil {
		return acct, fmt.Errorf("%w: no provider configured", models.ErrProviderUnavailable)
	}

	first, err := g.fetch(ctx, acct.ExternalID)
	if err != nil {
		g.log().Warn("payout refresh failed", "seller_id", sellerID, "error", err)
		return acct, err
	}

	next := first
	if regresses(acct, first) {
		confirm, err := g.fetch(ctx, acct.ExternalID)
		if err != nil {
			g.log().Warn("payout regression confirmation failed", "seller_id", sellerID, "error", err)
			return acct, err
		}
		next.ChargesEnabled = confirmFlag(acct.ChargesEnabled, first.ChargesEnabled, confirm.ChargesEnabled)
		next.PayoutsEnabled = confirmFlag(acct.PayoutsEnabled, first.PayoutsEnabled, confirm.PayoutsEnabled)
		next.DetailsSubmitted = confirmFlag(acct.DetailsSubmitted, first.DetailsSubmitted, confirm.DetailsSubmitted)
	}

	updated := *acct
	updated.ChargesEnabled = next.ChargesEnabled
	updated.PayoutsEnabled = next.PayoutsEnabled
	updated.DetailsSubmitted = next.DetailsSubmitted
	if next.Country != "" {
		updated.Country = next.Country
	}
	if next.Currency != "" {
		updated.Currency = next.Currency
	}
	if sameValues(*acct, updated) {
		return acct, nil
	}

	updated.UpdatedAt = g.now()
	if err := g.Store.UpdatePayoutAccount(ctx, &updated); err != nil {
		return acct, err
	}
	g.log().Info("payout account updated",
		"seller_id", sellerID,
		"charges_enabled", updated.ChargesEnabled,
		"payouts_enabled", updated.PayoutsEnabled,
		"details_submitted", updated.DetailsSubmitted,
	)
	return &updated, nil
}

// RequestOnboarding creates the provider account on first use and returns a
// fresh onboarding link. Capability flags are left untouched.
func (g *Gate) RequestOnboarding(ctx context.Context, sellerID string) (string, error) {
	if sellerID == "" {
		return "", fmt.Errorf("%w: seller id required", models.ErrNotFound)
	}
	if g.Provider == nil {
		return "", fmt.Errorf("%w: no provider configured", models.ErrProviderUnavailable)
	}

	acct, err := g.Store.GetPayoutAccount(ctx, sellerID)
	if errors.Is(err, models.ErrNotFound) {
		acct, err = g.createAccount(ctx, sellerID)
	}
	if err != nil {
		return "", err
	}

	link, err := withTimeout(ctx, g.timeout(), func(ctx context.Context) (string, error) {
		return g.Provider.OnboardingLink(ctx, acct.ExternalID)
	})
	if err != nil {
		return "", err
	}
	return link, nil
}

func (g *Gate) createAccount(ctx context.Context, sellerID string) (*models.PayoutAccount, error) {
	remote, err := withTimeout(ctx, g.timeout(), func(ctx context.Context) (RemoteAccount, error) {
		return g.Provider.CreateAccount(ctx, sellerID, g.Country)
	})
	if err != nil {
		return nil, err
	}
	now := g.now()
	stored, err := g.Store.CreatePayoutAccount(ctx, &models.PayoutAccount{
		SellerID:   sellerID,
		ExternalID: remote.ExternalID,
		Country:    remote.Country,
		Currency:   remote.Currency,
		CreatedAt:  now,
		UpdatedAt:  now,
	})
	if err != nil {
		return nil, err
	}
	if stored.ExternalID != remote.ExternalID {
		g.log().Warn("payout account created concurrently, provider account orphaned",
			"seller_id", sellerID, "orphan_id", remote.ExternalID, "kept_id", stored.ExternalID)
	}
	return stored, nil
}

func (g *Gate) fetch(ctx context.Context, externalID string) (RemoteAccount, error) {
	return withTimeout(ctx, g.timeout(), func(ctx context.Context) (RemoteAccount, error) {
		return g.Provider.FetchAccount(ctx, externalID)
	})
}

// withTimeout bounds a provider call even if the provider ignores ctx.
func withTimeout[T any](ctx context.Context, d time.Duration, fn func(context.Context) (T, error)) (T, error) {
	ctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn(ctx)
		ch <- result{v, err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil {
			return zero, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, r.err)
		}
		return r.v, nil
	case <-ctx.Done():
		return zero, fmt.Errorf("%w: %v", models.ErrProviderUnavailable, ctx.Err())
	}
}

func regresses(acct *models.PayoutAccount, remote RemoteAccount) bool {
	return (acct.ChargesEnabled && !remote.ChargesEnabled) ||
		(acct.PayoutsEnabled && !remote.PayoutsEnabled) ||
		(acct.DetailsSubmitted && !remote.DetailsSubmitted)
}

// confirmFlag drops a persisted true only when both reads agree on false.
func confirmFlag(persisted, first, confirm bool) bool {
	if persisted && !first {
		return confirm
	}
	return first
}

func sameValues(a, b models.PayoutAccount) bool {
	return a.ChargesEnabled == b.ChargesEnabled &&
		a.PayoutsEnabled == b.PayoutsEnabled &&
		a.DetailsSubmitted == b.DetailsSubmitted &&
		a.Country == b.Country &&
		a.Currency == b.Currency
}
