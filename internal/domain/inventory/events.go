package inventory

import (
	"context"
	"strconv"
)

const TopicItemUpserted = "catalog.item.upserted"

// ItemUpsertedEvent is the denormalised projection consumed by the search index.
type ItemUpsertedEvent struct {
	ItemID      int64    `json:"itemId"`
	Name        string   `json:"name"`
	Description string   `json:"description"`
	PriceCents  int64    `json:"priceCents"`
	IsAvailable bool     `json:"isAvailable"`
	SellerID    int64    `json:"sellerId"`
	SellerName  string   `json:"sellerName"`
	MenuName    string   `json:"menuName"`
	Tags        []string `json:"tags"`
}

func (ItemUpsertedEvent) EventName() string { return TopicItemUpserted }

func (e ItemUpsertedEvent) EventKey() string { return strconv.FormatInt(e.ItemID, 10) }

func NewItemUpsertedEvent(item *Item, sellerName string) ItemUpsertedEvent {
	tags := append([]string{}, item.Tags...)
	return ItemUpsertedEvent{
		ItemID:      item.ID,
		Name:        item.Name,
		Description: item.Description,
		PriceCents:  item.PriceCents,
		IsAvailable: item.Available,
		SellerID:    item.SellerID,
		SellerName:  sellerName,
		MenuName:    item.MenuName,
		Tags:        tags,
	}
}

// Projector publishes catalog projections for downstream read models such as the search index.
type Projector interface {
	PublishItemUpserted(ctx context.Context, e ItemUpsertedEvent) error
}
