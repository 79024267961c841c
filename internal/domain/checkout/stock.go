package checkout

// OutcomeKind enumerates the results of a quantity edit.
type OutcomeKind int

const (
	// OutcomeUpdated means the line item quantity changed.
	OutcomeUpdated OutcomeKind = iota + 1
	// OutcomeRemoved means the line item dropped below one and was removed.
	OutcomeRemoved
	// OutcomeRejected means the edit would exceed available stock.
	OutcomeRejected
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeUpdated:
		return "updated"
	case OutcomeRemoved:
		return "removed"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Outcome is the result of applying a quantity delta to a line item.
type Outcome struct {
	Kind     OutcomeKind
	Quantity int
}

// ApplyDelta validates item.Quantity+delta against the product's stock
// level. A rejected outcome carries a *StockLimitExceededError naming the
// product; the item itself is never mutated here.
func ApplyDelta(item LineItem, delta int) (Outcome, error) {
	newQty := item.Quantity + delta
	if newQty < 1 {
		return Outcome{Kind: OutcomeRemoved}, nil
	}
	if newQty > item.Product.StockLevel {
		return Outcome{Kind: OutcomeRejected, Quantity: item.Quantity}, &StockLimitExceededError{
			SKU:       item.Product.SKU,
			Product:   item.Product.Name,
			Available: item.Product.StockLevel,
		}
	}
	return Outcome{Kind: OutcomeUpdated, Quantity: newQty}, nil
}
