package sales

// Customer is the invoice recipient
type Customer struct {
	ID      string
	Name    string
	Address string
	Phone   string
	Email   string
}

// DisplayName returns the name shown on invoices, falling back to the id
func (c *Customer) DisplayName() string {
	if c.Name != "" {
		return c.Name
	}
	return c.ID
}
