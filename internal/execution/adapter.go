package execution

import (
	"context"
	"fmt"

	"github.com/teamnova/tradecore/internal/domain"
)

// VenueAdapter is the uniform order-placement surface the execution service
// drives per venue. It is satisfied today by a thin wrapper around the
// Polymarket CLOB client; Kalshi's client in this deployment is read-only
// market data, so no KalshiAdapter exists yet (see DESIGN.md).
type VenueAdapter interface {
	// Platform identifies the venue this adapter talks to, e.g. "polymarket".
	Platform() string
	PlaceOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAllOrders(ctx context.Context) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOpenOrders(ctx context.Context) ([]domain.Order, error)
}

// clobPoster is the subset of polymarket.ClobClient this package depends on.
type clobPoster interface {
	PostOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error)
	CancelOrder(ctx context.Context, orderID string) error
	CancelAll(ctx context.Context) error
	GetOrder(ctx context.Context, orderID string) (domain.Order, error)
	GetOpenOrders(ctx context.Context) ([]domain.Order, error)
}

// ClobAdapter adapts internal/platform/polymarket.ClobClient to VenueAdapter.
type ClobAdapter struct {
	client clobPoster
}

// NewClobAdapter wraps a Polymarket CLOB client.
func NewClobAdapter(client clobPoster) *ClobAdapter {
	return &ClobAdapter{client: client}
}

func (a *ClobAdapter) Platform() string { return "polymarket" }

func (a *ClobAdapter) PlaceOrder(ctx context.Context, order domain.Order) (domain.OrderResult, error) {
	return a.client.PostOrder(ctx, order)
}

func (a *ClobAdapter) CancelOrder(ctx context.Context, orderID string) error {
	return a.client.CancelOrder(ctx, orderID)
}

func (a *ClobAdapter) CancelAllOrders(ctx context.Context) error {
	return a.client.CancelAll(ctx)
}

func (a *ClobAdapter) GetOrder(ctx context.Context, orderID string) (domain.Order, error) {
	return a.client.GetOrder(ctx, orderID)
}

func (a *ClobAdapter) GetOpenOrders(ctx context.Context) ([]domain.Order, error) {
	return a.client.GetOpenOrders(ctx)
}

var _ VenueAdapter = (*ClobAdapter)(nil)

// UnavailableAdapter is a VenueAdapter stand-in for a venue whose client does
// not yet support order placement (Kalshi in this deployment: its client
// only exposes read-only market data). Every call fails with ErrVenueReadOnly
// so the rest of the execution service can still be constructed uniformly
// across venues instead of special-casing Kalshi at every call site.
type UnavailableAdapter struct {
	platform string
}

// NewUnavailableAdapter returns an adapter that rejects every order-placement
// call for the given platform.
func NewUnavailableAdapter(platform string) *UnavailableAdapter {
	return &UnavailableAdapter{platform: platform}
}

func (a *UnavailableAdapter) Platform() string { return a.platform }

func (a *UnavailableAdapter) PlaceOrder(context.Context, domain.Order) (domain.OrderResult, error) {
	return domain.OrderResult{}, fmt.Errorf("execution: %s: %w", a.platform, ErrVenueReadOnly)
}

func (a *UnavailableAdapter) CancelOrder(context.Context, string) error {
	return fmt.Errorf("execution: %s: %w", a.platform, ErrVenueReadOnly)
}

func (a *UnavailableAdapter) CancelAllOrders(context.Context) error {
	return fmt.Errorf("execution: %s: %w", a.platform, ErrVenueReadOnly)
}

func (a *UnavailableAdapter) GetOrder(context.Context, string) (domain.Order, error) {
	return domain.Order{}, fmt.Errorf("execution: %s: %w", a.platform, ErrVenueReadOnly)
}

func (a *UnavailableAdapter) GetOpenOrders(context.Context) ([]domain.Order, error) {
	return nil, fmt.Errorf("execution: %s: %w", a.platform, ErrVenueReadOnly)
}

var _ VenueAdapter = (*UnavailableAdapter)(nil)
