package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// Catalog is the externally authored hideout_data.json document.
type Catalog struct {
	Modules []Module `json:"modules"`
}

// Module is a purchasable hideout feature with discrete upgrade levels.
type Module struct {
	ID       string                   `json:"id"`
	Name     string                   `json:"name,omitempty"`
	Icon     string                   `json:"icon,omitempty"`
	MaxLevel looseInt                 `json:"max_level"`
	Upgrades map[string][]Requirement `json:"upgrades"`
}

// Requirement is one item line needed to buy an upgrade level.
type Requirement struct {
	Item string   `json:"item"`
	Qty  looseInt `json:"qty"`
	FIR  firFlag  `json:"fir,omitempty"`
	Note string   `json:"note,omitempty"`
}

// UpgradeLevel is a parsed upgrades entry.
type UpgradeLevel struct {
	Level        int
	Requirements []Requirement
}

// Levels returns the module's upgrade entries ordered by level number.
// Keys that are not base-10 integers are skipped.
func (m Module) Levels() []UpgradeLevel {
	levels := make([]UpgradeLevel, 0, len(m.Upgrades))
	for key, reqs := range m.Upgrades {
		n, err := strconv.Atoi(strings.TrimSpace(key))
		if err != nil {
			continue
		}
		levels = append(levels, UpgradeLevel{Level: n, Requirements: reqs})
	}
	sort.Slice(levels, func(i, j int) bool { return levels[i].Level < levels[j].Level })
	return levels
}

// RequirementsFor returns the requirement list for one level, or nil.
func (m Module) RequirementsFor(level int) []Requirement {
	for _, ul := range m.Levels() {
		if ul.Level == level {
			return ul.Requirements
		}
	}
	return nil
}

// Find returns the module with the given id.
func (c Catalog) Find(id string) (Module, bool) {
	for _, m := range c.Modules {
		if m.ID == id {
			return m, true
		}
	}
	return Module{}, false
}

// CatalogStore reads the catalog file on every call.
type CatalogStore struct {
	path   string
	logger *zap.Logger
}

func NewCatalogStore(path string, logger *zap.Logger) *CatalogStore {
	return &CatalogStore{path: path, logger: logger}
}

func (s *CatalogStore) Path() string { return s.path }

// emptyCatalogDoc is served when the catalog file is missing or not JSON.
var emptyCatalogDoc = json.RawMessage(`{"modules":[]}`)

// LoadRaw returns the catalog document exactly as authored, unknown fields
// and all. Only the JSON syntax is checked.
func (s *CatalogStore) LoadRaw() json.RawMessage {
	doc, err := loadJSON(s.path, emptyCatalogDoc)
	if err != nil {
		s.logger.Debug("catalog unavailable, serving empty catalog", zap.String("path", s.path), zap.Error(err))
		return emptyCatalogDoc
	}
	return doc
}

// Load returns the typed catalog used for summing, or an empty one if the
// file is missing or does not decode.
func (s *CatalogStore) Load() Catalog {
	c, err := loadJSON(s.path, Catalog{})
	if err != nil {
		s.logger.Debug("catalog unavailable, using empty catalog", zap.String("path", s.path), zap.Error(err))
		return Catalog{Modules: []Module{}}
	}
	if c.Modules == nil {
		c.Modules = []Module{}
	}
	for i := range c.Modules {
		if c.Modules[i].Upgrades == nil {
			c.Modules[i].Upgrades = map[string][]Requirement{}
		}
	}
	return c
}

// looseInt accepts JSON numbers (truncated toward zero), numeric strings and null.
type looseInt int

func (n *looseInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	raw := string(data)
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		raw = strings.TrimSpace(s)
		if raw == "" {
			*n = 0
			return nil
		}
	}

	if i, err := strconv.Atoi(raw); err == nil {
		*n = looseInt(i)
		return nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return fmt.Errorf("not an integer: %s", data)
	}
	*n = looseInt(int(f))
	return nil
}

// firFlag is true only for a literal JSON true.
type firFlag bool

func (f *firFlag) UnmarshalJSON(data []byte) error {
	*f = firFlag(bytes.Equal(bytes.TrimSpace(data), []byte("true")))
	return nil
}
