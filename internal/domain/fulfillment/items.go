package fulfillment

// ItemStatus mirrors a subset of request statuses at line-item granularity.
type ItemStatus string

const (
	ItemPending        ItemStatus = "pending"
	ItemConfirmed      ItemStatus = "confirmed"
	ItemReadyForPickup ItemStatus = "ready_for_pickup"
	ItemCollected      ItemStatus = "collected"
	ItemUnavailable    ItemStatus = "unavailable"
)

// LineItem is one medication, lab test, or radiology exam within a request.
// Name is the identity within the request; the descriptive fields are opaque
// payload the workflow carries but never interprets.
type LineItem struct {
	Name      string     `json:"name"`
	Available bool       `json:"available"`
	Status    ItemStatus `json:"status"`

	Dosage    string `json:"dosage,omitempty"`
	Frequency string `json:"frequency,omitempty"`
	Duration  string `json:"duration,omitempty"`
	Notes     string `json:"notes,omitempty"`
}

// LineItems is the ordered item list of one request, unique by Name.
type LineItems []LineItem

func (ls LineItems) find(name string) int {
	for i := range ls {
		if ls[i].Name == name {
			return i
		}
	}
	return -1
}

// Names returns the item names in order.
func (ls LineItems) Names() []string {
	names := make([]string, len(ls))
	for i, it := range ls {
		names[i] = it.Name
	}
	return names
}

// ItemReport is a provider's declaration about a single item. Nil fields leave
// the existing value untouched; duplicate names within one report collapse
// last-write-wins.
type ItemReport struct {
	Name      string  `json:"name" binding:"required"`
	Available *bool   `json:"available,omitempty"`
	Dosage    *string `json:"dosage,omitempty"`
	Frequency *string `json:"frequency,omitempty"`
	Duration  *string `json:"duration,omitempty"`
	Notes     *string `json:"notes,omitempty"`
}

// merge folds a batch of reports into the item list. Unknown names append new
// items (available defaults to true until a report says otherwise); known
// names update in place, preserving descriptive fields the report omits.
func (ls LineItems) merge(reports []ItemReport) LineItems {
	out := make(LineItems, len(ls))
	copy(out, ls)

	for _, rep := range reports {
		if rep.Name == "" {
			continue
		}
		i := out.find(rep.Name)
		if i < 0 {
			out = append(out, LineItem{Name: rep.Name, Available: true, Status: ItemPending})
			i = len(out) - 1
		}
		if rep.Available != nil {
			out[i].Available = *rep.Available
		}
		if rep.Dosage != nil {
			out[i].Dosage = *rep.Dosage
		}
		if rep.Frequency != nil {
			out[i].Frequency = *rep.Frequency
		}
		if rep.Duration != nil {
			out[i].Duration = *rep.Duration
		}
		if rep.Notes != nil {
			out[i].Notes = *rep.Notes
		}
	}
	return out
}

// itemStatusFor maps a request-level status onto the item level. Unavailable
// items are handled before this mapping applies.
func itemStatusFor(s Status) ItemStatus {
	switch s {
	case StatusConfirmed:
		return ItemConfirmed
	case StatusReadyForPickup:
		return ItemReadyForPickup
	case StatusCompleted:
		return ItemCollected
	default:
		return ItemPending
	}
}
