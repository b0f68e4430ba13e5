package event

type Type string

const (
	ItemListedEvent        Type = "ItemListedEvent"
	ListingUpdatedEvent    Type = "ListingUpdatedEvent"
	ItemCanceledEvent      Type = "ItemCanceledEvent"
	ItemBoughtEvent        Type = "ItemBoughtEvent"
	ProceedsWithdrawnEvent Type = "ProceedsWithdrawnEvent"
)

func MarketplaceEvents() []Type {
	return []Type{
		ItemListedEvent,
		ListingUpdatedEvent,
		ItemCanceledEvent,
		ItemBoughtEvent,
		ProceedsWithdrawnEvent,
	}
}
