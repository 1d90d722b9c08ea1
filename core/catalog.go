package core

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/maxepunk/ALN-Ecosystem-sub005/model"
)

// memoryCatalog is an in-memory token catalog. Loading the catalog from
// its source of truth is an external concern; the core only reads it.
type memoryCatalog struct {
	tokens map[string]model.Token
	groups map[string]int
}

func NewCatalog(tokens []model.Token) model.TokenCatalog {
	c := &memoryCatalog{
		tokens: make(map[string]model.Token, len(tokens)),
		groups: make(map[string]int),
	}
	for _, t := range tokens {
		c.tokens[t.ID] = t
		if t.GroupID != "" {
			c.groups[t.GroupID]++
		}
	}
	return c
}

func (c *memoryCatalog) Get(id string) (*model.Token, bool) {
	t, ok := c.tokens[id]
	if !ok {
		return nil, false
	}
	return &t, true
}

func (c *memoryCatalog) GroupSize(groupID string) int {
	return c.groups[groupID]
}

// LoadCatalog reads the token database from a JSON file. A missing path
// yields an empty catalog: every scan will be rejected as unknown, which
// is the safe failure mode for a misconfigured deployment.
func LoadCatalog(path string) (model.TokenCatalog, error) {
	if path == "" {
		return NewCatalog(nil), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading token database: %w", err)
	}
	var tokens []model.Token
	if err := json.Unmarshal(data, &tokens); err != nil {
		return nil, fmt.Errorf("parsing token database: %w", err)
	}
	return NewCatalog(tokens), nil
}
