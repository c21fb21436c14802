package payout

import (
	"context"
	"net/http"
	"time"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/client"
)

// StripeProvider talks to Stripe Connect using Express accounts.
type StripeProvider struct {
	api        *client.API
	refreshURL string
	returnURL  string
}

func NewStripeProvider(secretKey string, timeout time.Duration, refreshURL, returnURL string) *StripeProvider {
	httpClient := &http.Client{Timeout: timeout}
	return &StripeProvider{
		api:        client.New(secretKey, stripe.NewBackends(httpClient)),
		refreshURL: refreshURL,
		returnURL:  returnURL,
	}
}

func (p *StripeProvider) CreateAccount(ctx context.Context, sellerID, country string) (RemoteAccount, error) {
	params := &stripe.AccountParams{
		Type: stripe.String(string(stripe.AccountTypeExpress)),
		Capabilities: &stripe.AccountCapabilitiesParams{
			CardPayments: &stripe.AccountCapabilitiesCardPaymentsParams{Requested: stripe.Bool(true)},
			Transfers:    &stripe.AccountCapabilitiesTransfersParams{Requested: stripe.Bool(true)},
		},
	}
	if country != "" {
		params.Country = stripe.String(country)
	}
	params.AddMetadata("seller_id", sellerID)
	params.Context = ctx

	acct, err := p.api.Accounts.New(params)
	if err != nil {
		return RemoteAccount{}, err
	}
	return remoteFromStripe(acct), nil
}

func (p *StripeProvider) FetchAccount(ctx context.Context, externalID string) (RemoteAccount, error) {
	params := &stripe.AccountParams{}
	params.Context = ctx
	acct, err := p.api.Accounts.GetByID(externalID, params)
	if err != nil {
		return RemoteAccount{}, err
	}
	return remoteFromStripe(acct), nil
}

func (p *StripeProvider) OnboardingLink(ctx context.Context, externalID string) (string, error) {
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(externalID),
		RefreshURL: stripe.String(p.refreshURL),
		ReturnURL:  stripe.String(p.returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := p.api.AccountLinks.New(params)
	if err != nil {
		return "", err
	}
	return link.URL, nil
}

func remoteFromStripe(a *stripe.Account) RemoteAccount {
	return RemoteAccount{
		ExternalID:       a.ID,
		Country:          a.Country,
		Currency:         string(a.DefaultCurrency),
		ChargesEnabled:   a.ChargesEnabled,
		PayoutsEnabled:   a.PayoutsEnabled,
		DetailsSubmitted: a.DetailsSubmitted,
	}
}
