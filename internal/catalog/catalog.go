// Package catalog holds the fixed registry of asset-bearing items: the heroes
// a child can pick and the worry-monsters they face.
package catalog

import (
	"errors"
	"fmt"
	"strings"
)

// Kind separates heroes from worry-monsters.
type Kind string

const (
	KindHero  Kind = "hero"
	KindWorry Kind = "worry"
)

// Item is a single catalog entry. Items are immutable once the catalog is built.
type Item struct {
	ID          string   `json:"id"`
	Kind        Kind     `json:"kind"`
	DisplayName string   `json:"displayName"`
	MonsterName string   `json:"monsterName,omitempty"`
	Trait       string   `json:"trait,omitempty"`
	Emoji       string   `json:"emoji,omitempty"`
	Description string   `json:"description"`
	StyleHints  []string `json:"styleHints,omitempty"`
}

func (it Item) clone() Item {
	out := it
	if len(it.StyleHints) > 0 {
		out.StyleHints = append([]string(nil), it.StyleHints...)
	}
	return out
}

// Catalog is an ordered, read-only set of items keyed by a unique id.
type Catalog struct {
	items []Item
	index map[string]int
}

// ErrInvalidCatalog reports duplicate or empty identifiers.
var ErrInvalidCatalog = errors.New("catalog: invalid item")

// New builds a catalog preserving the given order.
func New(items ...Item) (*Catalog, error) {
	c := &Catalog{
		items: make([]Item, 0, len(items)),
		index: make(map[string]int, len(items)),
	}
	for i, item := range items {
		id := strings.TrimSpace(item.ID)
		if id == "" || id != item.ID {
			return nil, fmt.Errorf("%w: item %d has id %q", ErrInvalidCatalog, i, item.ID)
		}
		if _, dup := c.index[id]; dup {
			return nil, fmt.Errorf("%w: duplicate id %q", ErrInvalidCatalog, id)
		}
		switch item.Kind {
		case KindHero, KindWorry:
		default:
			return nil, fmt.Errorf("%w: item %q has kind %q", ErrInvalidCatalog, id, item.Kind)
		}
		c.index[id] = len(c.items)
		c.items = append(c.items, item.clone())
	}
	return c, nil
}

// MustNew is New for statically known item lists.
func MustNew(items ...Item) *Catalog {
	c, err := New(items...)
	if err != nil {
		panic(err)
	}
	return c
}

// Items returns a copy of every item in catalog order.
func (c *Catalog) Items() []Item {
	if c == nil {
		return nil
	}
	out := make([]Item, len(c.items))
	for i, item := range c.items {
		out[i] = item.clone()
	}
	return out
}

// IDs returns item identifiers in catalog order.
func (c *Catalog) IDs() []string {
	if c == nil {
		return nil
	}
	out := make([]string, len(c.items))
	for i, item := range c.items {
		out[i] = item.ID
	}
	return out
}

// Lookup returns the item registered under id.
func (c *Catalog) Lookup(id string) (Item, bool) {
	if c == nil {
		return Item{}, false
	}
	i, ok := c.index[id]
	if !ok {
		return Item{}, false
	}
	return c.items[i].clone(), true
}

// Has reports whether id names a catalog item.
func (c *Catalog) Has(id string) bool {
	if c == nil {
		return false
	}
	_, ok := c.index[id]
	return ok
}

func (c *Catalog) Len() int {
	if c == nil {
		return 0
	}
	return len(c.items)
}
