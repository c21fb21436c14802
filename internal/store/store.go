package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"MarketSettle/internal/models"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

type Store struct {
	Pool *pgxpool.Pool
}

func New(pool *pgxpool.Pool) *Store {
	return &Store{Pool: pool}
}

const orderColumns = `
	order_id, order_number, buyer_id, seller_id, product_id,
	unit_price::text, quantity, subtotal::text, fee_rate::text,
	platform_fee::text, total_amount::text, seller_net::text, currency,
	status, version, buyer_notes, seller_notes,
	created_at, paid_at, in_progress_at, delivered_at, completed_at,
	cancelled_at, refunded_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (*models.Order, error) {
	var o models.Order
	var unitPrice, subtotal, feeRate, fee, total, net string
	err := row.Scan(
		&o.OrderID,
		&o.OrderNumber,
		&o.BuyerID,
		&o.SellerID,
		&o.ProductID,
		&unitPrice,
		&o.Quantity,
		&subtotal,
		&feeRate,
		&fee,
		&total,
		&net,
		&o.Currency,
		&o.Status,
		&o.Version,
		&o.BuyerNotes,
		&o.SellerNotes,
		&o.CreatedAt,
		&o.PaidAt,
		&o.InProgressAt,
		&o.DeliveredAt,
		&o.CompletedAt,
		&o.CancelledAt,
		&o.RefundedAt,
		&o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	fields := []struct {
		dst *decimal.Decimal
		src string
	}{
		{&o.UnitPrice, unitPrice},
		{&o.Subtotal, subtotal},
		{&o.FeeRate, feeRate},
		{&o.PlatformFee, fee},
		{&o.TotalAmount, total},
		{&o.SellerNet, net},
	}
	for _, f := range fields {
		d, err := decimal.NewFromString(f.src)
		if err != nil {
			return nil, fmt.Errorf("order %s: bad numeric %q: %w", o.OrderID, f.src, err)
		}
		*f.dst = d
	}
	return &o, nil
}

func (s *Store) NextOrderNumber(ctx context.Context) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, "SELECT nextval('order_number_seq')").Scan(&n)
	return n, err
}

func (s *Store) CreateOrder(ctx context.Context, order *models.Order) error {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO orders (
			order_id, order_number, buyer_id, seller_id, product_id,
			unit_price, quantity, subtotal, fee_rate, platform_fee,
			total_amount, seller_net, currency, status, version,
			buyer_notes, seller_notes, created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6::numeric,$7,$8::numeric,$9::numeric,$10::numeric,
			$11::numeric,$12::numeric,$13,$14,$15,$16,$17,$18,$19)
	`,
		order.OrderID,
		order.OrderNumber,
		order.BuyerID,
		order.SellerID,
		order.ProductID,
		order.UnitPrice.String(),
		order.Quantity,
		order.Subtotal.String(),
		order.FeeRate.String(),
		order.PlatformFee.String(),
		order.TotalAmount.String(),
		order.SellerNet.String(),
		order.Currency,
		order.Status,
		order.Version,
		order.BuyerNotes,
		order.SellerNotes,
		order.CreatedAt,
		order.UpdatedAt,
	)
	return err
}

func (s *Store) GetOrder(ctx context.Context, orderID string) (*models.Order, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+orderColumns+` FROM orders WHERE order_id=$1`, orderID)
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	return o, err
}

// TransitionOrder writes status, version, pricing and stage timestamps in a
// single conditional UPDATE and appends the audit event in the same
// transaction. Timestamps already set are kept.
func (s *Store) TransitionOrder(ctx context.Context, next *models.Order, fromStatus models.OrderStatus, fromVersion int64, ev models.OrderEvent) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	res, err := tx.Exec(ctx, `
		UPDATE orders SET
			status=$4, version=$5,
			subtotal=$6::numeric, fee_rate=$7::numeric, platform_fee=$8::numeric,
			total_amount=$9::numeric, seller_net=$10::numeric,
			paid_at=COALESCE(paid_at, $11),
			in_progress_at=COALESCE(in_progress_at, $12),
			delivered_at=COALESCE(delivered_at, $13),
			completed_at=COALESCE(completed_at, $14),
			cancelled_at=COALESCE(cancelled_at, $15),
			refunded_at=COALESCE(refunded_at, $16),
			updated_at=$17
		WHERE order_id=$1 AND status=$2 AND version=$3
	`,
		next.OrderID, fromStatus, fromVersion,
		next.Status, next.Version,
		next.Subtotal.String(), next.FeeRate.String(), next.PlatformFee.String(),
		next.TotalAmount.String(), next.SellerNet.String(),
		next.PaidAt, next.InProgressAt, next.DeliveredAt,
		next.CompletedAt, next.CancelledAt, next.RefundedAt,
		next.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: order %s is no longer %s at version %d", models.ErrConcurrentModification, next.OrderID, fromStatus, fromVersion)
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO order_events (order_id, seller_id, buyer_id, from_status, to_status, actor_role, actor_id, at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
	`, ev.OrderID, ev.SellerID, ev.BuyerID, ev.From, ev.To, ev.Actor.Role, ev.Actor.ID, ev.At); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

func (s *Store) UpdateNotes(ctx context.Context, orderID string, role models.ActorRole, notes string, at time.Time) (*models.Order, error) {
	var column string
	switch role {
	case models.RoleBuyer:
		column = "buyer_notes"
	case models.RoleSeller:
		column = "seller_notes"
	default:
		return nil, fmt.Errorf("%w: role %q has no notes", models.ErrUnauthorized, role)
	}
	row := s.Pool.QueryRow(ctx, `
		UPDATE orders SET `+column+`=$2, updated_at=$3
		WHERE order_id=$1
		RETURNING `+orderColumns, orderID, notes, at.UTC())
	o, err := scanOrder(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}
	return o, err
}

// ListSellerOrders reads from a single repeatable-read snapshot so every row
// reflects a committed transition.
func (s *Store) ListSellerOrders(ctx context.Context, sellerID string) ([]models.Order, error) {
	tx, err := s.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	rows, err := tx.Query(ctx, `
		SELECT `+orderColumns+`
		FROM orders
		WHERE seller_id=$1
		ORDER BY created_at DESC, order_number DESC
	`, sellerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]models.Order, 0)
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, *o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, tx.Commit(ctx)
}

func (s *Store) ListOrderEvents(ctx context.Context, orderID string) ([]models.OrderEvent, error) {
	var exists bool
	if err := s.Pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM orders WHERE order_id=$1)`, orderID).Scan(&exists); err != nil {
		return nil, err
	}
	if !exists {
		return nil, fmt.Errorf("%w: order %s", models.ErrNotFound, orderID)
	}

	rows, err := s.Pool.Query(ctx, `
		SELECT order_id, seller_id, buyer_id, from_status, to_status, actor_role, actor_id, at
		FROM order_events
		WHERE order_id=$1
		ORDER BY id
	`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	events := make([]models.OrderEvent, 0)
	for rows.Next() {
		var ev models.OrderEvent
		if err := rows.Scan(&ev.OrderID, &ev.SellerID, &ev.BuyerID, &ev.From, &ev.To, &ev.Actor.Role, &ev.Actor.ID, &ev.At); err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

const payoutColumns = `
	seller_id, external_id, country, currency,
	charges_enabled, payouts_enabled, details_submitted,
	created_at, updated_at`

func scanPayoutAccount(row rowScanner) (*models.PayoutAccount, error) {
	var a models.PayoutAccount
	err := row.Scan(
		&a.SellerID,
		&a.ExternalID,
		&a.Country,
		&a.Currency,
		&a.ChargesEnabled,
		&a.PayoutsEnabled,
		&a.DetailsSubmitted,
		&a.CreatedAt,
		&a.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Store) GetPayoutAccount(ctx context.Context, sellerID string) (*models.PayoutAccount, error) {
	row := s.Pool.QueryRow(ctx, `SELECT `+payoutColumns+` FROM payout_accounts WHERE seller_id=$1`, sellerID)
	a, err := scanPayoutAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("%w: payout account for seller %s", models.ErrNotFound, sellerID)
	}
	return a, err
}

func (s *Store) CreatePayoutAccount(ctx context.Context, acct *models.PayoutAccount) (*models.PayoutAccount, error) {
	_, err := s.Pool.Exec(ctx, `
		INSERT INTO payout_accounts (
			seller_id, external_id, country, currency,
			charges_enabled, payouts_enabled, details_submitted,
			created_at, updated_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (seller_id) DO NOTHING
	`,
		acct.SellerID,
		acct.ExternalID,
		acct.Country,
		acct.Currency,
		acct.ChargesEnabled,
		acct.PayoutsEnabled,
		acct.DetailsSubmitted,
		acct.CreatedAt,
		acct.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return s.GetPayoutAccount(ctx, acct.SellerID)
}

func (s *Store) UpdatePayoutAccount(ctx context.Context, acct *models.PayoutAccount) error {
	res, err := s.Pool.Exec(ctx, `
		UPDATE payout_accounts
		SET country=$2, currency=$3, charges_enabled=$4, payouts_enabled=$5,
			details_submitted=$6, updated_at=$7
		WHERE seller_id=$1
	`,
		acct.SellerID,
		acct.Country,
		acct.Currency,
		acct.ChargesEnabled,
		acct.PayoutsEnabled,
		acct.DetailsSubmitted,
		acct.UpdatedAt,
	)
	if err != nil {
		return err
	}
	if res.RowsAffected() == 0 {
		return fmt.Errorf("%w: payout account for seller %s", models.ErrNotFound, acct.SellerID)
	}
	return nil
}

func (s *Store) ListPendingPayoutAccounts(ctx context.Context, limit int) ([]models.PayoutAccount, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.Pool.Query(ctx, `
		SELECT `+payoutColumns+`
		FROM payout_accounts
		WHERE NOT (charges_enabled AND payouts_enabled AND details_submitted)
		ORDER BY updated_at
		LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	accounts := make([]models.PayoutAccount, 0)
	for rows.Next() {
		a, err := scanPayoutAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *a)
	}
	return accounts, rows.Err()
}

func (s *Store) CountPaidOrders(ctx context.Context, sellerID string) (int64, error) {
	var n int64
	err := s.Pool.QueryRow(ctx, `SELECT count(*) FROM orders WHERE seller_id=$1 AND status='paid'`, sellerID).Scan(&n)
	return n, err
}
