package workflows

import (
	"context"
	"fmt"

	"github.com/jonathan/outreach-agent/internal/activity"
	"github.com/jonathan/outreach-agent/internal/apperrors"
	"github.com/jonathan/outreach-agent/internal/types"
)

// Orders places paid orders against active campaigns.
type Orders struct {
	Store CampaignStore
	Log   *activity.Log
}

// Payment identifies the verified payment behind an order. It is settled
// after the order is stored.
type Payment struct {
	Payer string
}

// Place stores an order and its order_placed event together.
func (o *Orders) Place(ctx context.Context, req types.CreateOrderRequest, pay Payment, actor types.Actor) (*types.Order, error) {
	if err := req.Validate(); err != nil {
		return nil, apperrors.FromValidator(err)
	}
	c, err := o.Store.GetCampaign(ctx, req.CampaignID)
	if err != nil {
		return nil, apperrors.Internal("get campaign", err)
	}

	order := &types.Order{
		CampaignID: req.CampaignID,
		SKU:        req.SKU,
		Quantity:   req.Quantity,
		Payer:      pay.Payer,
		Status:     types.OrderPlaced,
	}
	ev := o.Log.New(activity.Entry{
		Type:        types.ActivityOrderPlaced,
		ProspectID:  c.ProspectID,
		CampaignID:  &c.ID,
		TargetLabel: c.Name,
		Detail:      fmt.Sprintf("order for %d x %s", req.Quantity, req.SKU),
		TriggeredBy: actor,
	})
	if err := o.Store.CreateOrder(ctx, order, ev); err != nil {
		return nil, apperrors.Internal("create order", err)
	}
	o.Log.Publish(ev)
	return order, nil
}
