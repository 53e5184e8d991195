package httppresentation

import (
	"time"

	domorder "github.com/Zhima-Mochi/minishop-orders/internal/domain/order"
)

type lineResponse struct {
	ItemID         int64  `json:"itemId"`
	ItemName       string `json:"itemName"`
	UnitPriceCents int64  `json:"unitPriceCents"`
	Quantity       int    `json:"quantity"`
}

type orderResponse struct {
	ID               int64           `json:"id"`
	BuyerID          int64           `json:"buyerId"`
	SellerID         int64           `json:"sellerId"`
	Status           domorder.Status `json:"status"`
	TotalAmountCents int64           `json:"totalAmountCents"`
	Currency         string          `json:"currency"`
	Lines            []lineResponse  `json:"lines"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

func toOrderResponse(o *domorder.Order) orderResponse {
	lines := make([]lineResponse, 0, len(o.Lines))
	for _, l := range o.Lines {
		lines = append(lines, lineResponse{
			ItemID:         l.ItemID,
			ItemName:       l.ItemName,
			UnitPriceCents: l.UnitPriceCents,
			Quantity:       l.Quantity,
		})
	}
	return orderResponse{
		ID:               o.ID,
		BuyerID:          o.BuyerID,
		SellerID:         o.SellerID,
		Status:           o.Status,
		TotalAmountCents: o.TotalAmountCents,
		Currency:         o.Currency,
		Lines:            lines,
		CreatedAt:        o.CreatedAt,
		UpdatedAt:        o.UpdatedAt,
	}
}

func toOrderList(orders []*domorder.Order) []orderResponse {
	out := make([]orderResponse, 0, len(orders))
	for _, o := range orders {
		out = append(out, toOrderResponse(o))
	}
	return out
}
