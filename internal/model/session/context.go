package session

import "encoding/json"

// Product names the offering a ticket is about.
type Product string

const (
	ProductMobileApp Product = "mobile app"
	ProductWebsite   Product = "website"
)

// Urgency is the priority the caller assigned to the ticket.
type Urgency string

const (
	UrgencyLow    Urgency = "low"
	UrgencyMedium Urgency = "medium"
	UrgencyHigh   Urgency = "high"
)

// ResponseWindow is the contact commitment quoted for a submitted ticket.
func (u Urgency) ResponseWindow() string {
	switch u {
	case UrgencyHigh:
		return "2 hours"
	case UrgencyMedium:
		return "24 hours"
	default:
		return "48 hours"
	}
}

// Context holds the ticket fields gathered so far. Empty strings mean unset.
type Context struct {
	Product  Product
	Issue    string
	Urgency  Urgency
	TicketID string
}

type contextJSON struct {
	Product  *string `json:"product"`
	Issue    *string `json:"issue"`
	Urgency  *string `json:"urgency"`
	TicketID *string `json:"ticketId"`
}

// MarshalJSON renders unset fields as null.
func (c Context) MarshalJSON() ([]byte, error) {
	return json.Marshal(contextJSON{
		Product:  optional(string(c.Product)),
		Issue:    optional(c.Issue),
		Urgency:  optional(string(c.Urgency)),
		TicketID: optional(c.TicketID),
	})
}

// UnmarshalJSON accepts null or missing fields as unset.
func (c *Context) UnmarshalJSON(data []byte) error {
	var raw contextJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*c = Context{
		Product:  Product(deref(raw.Product)),
		Issue:    deref(raw.Issue),
		Urgency:  Urgency(deref(raw.Urgency)),
		TicketID: deref(raw.TicketID),
	}
	return nil
}

func optional(v string) *string {
	if v == "" {
		return nil
	}
	return &v
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
