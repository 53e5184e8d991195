package outbox

import (
	"context"

	dominv "github.com/Zhima-Mochi/minishop-orders/internal/domain/inventory"
	domoutbox "github.com/Zhima-Mochi/minishop-orders/internal/domain/outbox"
)

// Projector sends catalog projections through any event publisher.
type Projector struct {
	Publisher domoutbox.Publisher
}

func (p Projector) PublishItemUpserted(ctx context.Context, e dominv.ItemUpsertedEvent) error {
	return p.Publisher.Publish(ctx, e)
}
