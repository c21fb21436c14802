// Package lifecycle owns the order transition table. Every caller that needs
// to know whether a status change is allowed asks Check; nothing else keeps
// its own copy of the rules.
package lifecycle

import (
	"fmt"
	"time"

	"MarketSettle/internal/models"
)

// forward maps each non-terminal status to its single successor.
var forward = map[models.OrderStatus]models.OrderStatus{
	models.OrderPendingPayment: models.OrderPaid,
	models.OrderPaid:           models.OrderInProgress,
	models.OrderInProgress:     models.OrderDelivered,
	models.OrderDelivered:      models.OrderCompleted,
}

// allowedRoles lists who may request each target status.
var allowedRoles = map[models.OrderStatus][]models.ActorRole{
	models.OrderPaid:       {models.RoleSystem},
	models.OrderInProgress: {models.RoleSeller},
	models.OrderDelivered:  {models.RoleSeller},
	models.OrderCompleted:  {models.RoleSeller},
	models.OrderCancelled:  {models.RoleBuyer, models.RoleSeller},
	models.OrderRefunded:   {models.RoleBuyer, models.RoleSeller, models.RoleSystem},
}

// Parties identifies who owns an order for authorization purposes.
type Parties struct {
	BuyerID  string
	SellerID string
}

// Next returns the forward successor of s, if any.
func Next(s models.OrderStatus) (models.OrderStatus, bool) {
	n, ok := forward[s]
	return n, ok
}

// Targets lists every status reachable from s in one step.
func Targets(s models.OrderStatus) []models.OrderStatus {
	if s.Terminal() {
		return nil
	}
	out := make([]models.OrderStatus, 0, 3)
	if n, ok := forward[s]; ok {
		out = append(out, n)
	}
	return append(out, models.OrderCancelled, models.OrderRefunded)
}

// Check validates a requested transition. Terminal sources are rejected first,
// then the shape of the edge, then the actor.
func Check(from, to models.OrderStatus, actor models.Actor, p Parties) error {
	if from.Terminal() {
		return fmt.Errorf("%w: order is %s", models.ErrAlreadyTerminal, from)
	}
	if _, ok := models.ParseOrderStatus(string(to)); !ok {
		return fmt.Errorf("%w: unknown status %q", models.ErrInvalidTransition, to)
	}
	if !edgeAllowed(from, to) {
		return fmt.Errorf("%w: %s -> %s", models.ErrInvalidTransition, from, to)
	}
	return authorize(to, actor, p)
}

func edgeAllowed(from, to models.OrderStatus) bool {
	if to == models.OrderCancelled || to == models.OrderRefunded {
		return true
	}
	n, ok := forward[from]
	return ok && n == to
}

func authorize(to models.OrderStatus, actor models.Actor, p Parties) error {
	permitted := false
	for _, r := range allowedRoles[to] {
		if r == actor.Role {
			permitted = true
			break
		}
	}
	if !permitted {
		return fmt.Errorf("%w: role %q may not move an order to %s", models.ErrUnauthorized, actor.Role, to)
	}
	switch actor.Role {
	case models.RoleBuyer:
		if actor.ID == "" || actor.ID != p.BuyerID {
			return fmt.Errorf("%w: actor is not the order's buyer", models.ErrUnauthorized)
		}
	case models.RoleSeller:
		if actor.ID == "" || actor.ID != p.SellerID {
			return fmt.Errorf("%w: actor is not the order's seller", models.ErrUnauthorized)
		}
	}
	return nil
}

// Apply returns a copy of o moved to status to. It stamps the matching
// timestamp only if it is still unset and bumps Version. Apply does not
// validate; call Check first.
func Apply(o models.Order, to models.OrderStatus, now time.Time) models.Order {
	now = now.UTC()
	o.Status = to
	o.Version++
	o.UpdatedAt = now

	var slot **time.Time
	switch to {
	case models.OrderPaid:
		slot = &o.PaidAt
	case models.OrderInProgress:
		slot = &o.InProgressAt
	case models.OrderDelivered:
		slot = &o.DeliveredAt
	case models.OrderCompleted:
		slot = &o.CompletedAt
	case models.OrderCancelled:
		slot = &o.CancelledAt
	case models.OrderRefunded:
		slot = &o.RefundedAt
	}
	if slot != nil && *slot == nil {
		t := now
		*slot = &t
	}
	return o
}
