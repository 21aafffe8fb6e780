package domain

// Client is the party a serve attempt is performed for. Serve records carry
// a denormalized copy of the name; the email is looked up when a
// notification needs a recipient.
type Client struct {
	ID               string
	Name             string
	Email            string
	AdditionalEmails []string
	Phone            string
	Address          string
	Notes            string
}

// Recipients returns the client's primary email followed by any additional
// addresses, skipping empties. Deduplication happens in the dispatcher,
// which also appends the business oversight address.
func (c *Client) Recipients() []string {
	out := make([]string, 0, 1+len(c.AdditionalEmails))
	if c.Email != "" {
		out = append(out, c.Email)
	}
	for _, e := range c.AdditionalEmails {
		if e != "" {
			out = append(out, e)
		}
	}
	return out
}
