package entity

// Collection is a paginated list of entity URIs (outbox, followers, and
// similar). Items are URIs, not inlined entities; each item is fetched and
// parsed independently so a poisoned item cannot invalidate the page.
type Collection struct {
	Base

	// Author is the owning user's URI, if the collection is user-scoped.
	Author string `json:"author,omitempty"`

	// First and Last are page URIs.
	First string `json:"first"`
	Last  string `json:"last"`

	// Total is the item count across all pages.
	Total int64 `json:"total"`

	// Next and Previous link neighboring pages, when present.
	Next     string `json:"next,omitempty"`
	Previous string `json:"previous,omitempty"`

	// Items are the entity URIs on this page.
	Items []string `json:"items,omitempty"`
}

// EntityType implements Entity.
func (c *Collection) EntityType() string { return TypeCollection }

// Validate implements Entity.
func (c *Collection) Validate() error {
	if err := c.validateBase(); err != nil {
		return err
	}
	if err := validateOptionalURI("author", c.Author); err != nil {
		return err
	}
	if err := validateAbsoluteURI("first", c.First); err != nil {
		return err
	}
	if err := validateAbsoluteURI("last", c.Last); err != nil {
		return err
	}
	if c.Total < 0 {
		return validationError("total", "must not be negative")
	}
	if err := validateOptionalURI("next", c.Next); err != nil {
		return err
	}
	if err := validateOptionalURI("previous", c.Previous); err != nil {
		return err
	}
	for _, item := range c.Items {
		if err := validateAbsoluteURI("items", item); err != nil {
			return err
		}
	}
	return nil
}
