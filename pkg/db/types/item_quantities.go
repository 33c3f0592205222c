package types

// ItemQuantities maps a bill item id to the fractional quantity a selection
// covers. Stored as jsonb through the gorm json serializer.
type ItemQuantities map[string]float64

// Clone returns a shallow copy so callers can mutate without aliasing the
// stored map.
func (q ItemQuantities) Clone() ItemQuantities {
	if q == nil {
		return nil
	}
	out := make(ItemQuantities, len(q))
	for k, v := range q {
		out[k] = v
	}
	return out
}

// QuantityFor returns the claimed quantity for the item, zero when absent.
func (q ItemQuantities) QuantityFor(itemID string) float64 {
	if q == nil {
		return 0
	}
	return q[itemID]
}
