package symbols

import (
	"errors"
	"fmt"
	"regexp"

	"github.com/tick-archive/pkg/models"
)

// ErrInvalidSymbol is returned for names that cannot be used as a catalog entry or table name
var ErrInvalidSymbol = errors.New("invalid symbol")

var identifierPattern = regexp.MustCompile(`^[a-z0-9]+$`)

// ValidIdentifier reports whether symbol is safe to use as a table name
func ValidIdentifier(symbol string) bool {
	return len(symbol) <= 64 && identifierPattern.MatchString(symbol)
}

// Catalog is the fixed, ordered list of symbols the pipeline ingests.
// Resume logic depends on this order, so it never changes after construction.
type Catalog struct {
	symbols []models.SymbolInfo
	index   map[string]int
}

// NewCatalog builds a catalog from symbol names in iteration order
func NewCatalog(names []string) (*Catalog, error) {
	if len(names) == 0 {
		return nil, fmt.Errorf("%w: catalog is empty", ErrInvalidSymbol)
	}

	c := &Catalog{
		symbols: make([]models.SymbolInfo, 0, len(names)),
		index:   make(map[string]int, len(names)),
	}

	for i, name := range names {
		if !ValidIdentifier(name) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidSymbol, name)
		}
		if _, dup := c.index[name]; dup {
			return nil, fmt.Errorf("%w: duplicate %q", ErrInvalidSymbol, name)
		}

		class := Classify(name)
		c.index[name] = i
		c.symbols = append(c.symbols, models.SymbolInfo{
			Symbol:     name,
			Index:      i,
			AssetClass: class,
			PointValue: PointValue(name, class),
		})
	}

	return c, nil
}

// Len returns the number of symbols
func (c *Catalog) Len() int {
	return len(c.symbols)
}

// At returns the symbol at catalog position i
func (c *Catalog) At(i int) models.SymbolInfo {
	return c.symbols[i]
}

// Index returns the catalog position of symbol
func (c *Catalog) Index(symbol string) (int, bool) {
	i, ok := c.index[symbol]
	return i, ok
}

// Get returns the catalog entry for symbol
func (c *Catalog) Get(symbol string) (models.SymbolInfo, bool) {
	i, ok := c.index[symbol]
	if !ok {
		return models.SymbolInfo{}, false
	}
	return c.symbols[i], true
}

// Names returns symbol names in iteration order
func (c *Catalog) Names() []string {
	names := make([]string, len(c.symbols))
	for i, s := range c.symbols {
		names[i] = s.Symbol
	}
	return names
}

// Symbols returns a copy of all catalog entries in iteration order
func (c *Catalog) Symbols() []models.SymbolInfo {
	out := make([]models.SymbolInfo, len(c.symbols))
	copy(out, c.symbols)
	return out
}
