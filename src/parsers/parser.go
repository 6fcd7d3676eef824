package parsers

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/username/taxfolio/portfolio/src/models"
	"github.com/username/taxfolio/portfolio/src/parsers/degiro"
	"github.com/username/taxfolio/portfolio/src/parsers/ibkr"
)

// Parser turns a broker statement into canonical transactions. Rows the
// parser cannot classify are skipped.
type Parser interface {
	Parse(file io.Reader) ([]models.Transaction, error)
}

var registry = map[string]func() Parser{
	degiro.Source: func() Parser { return degiro.NewParser() },
	ibkr.Source:   func() Parser { return ibkr.NewParser() },
}

// GetParser returns the statement parser for a broker source name.
func GetParser(source string) (Parser, error) {
	newParser, ok := registry[strings.ToLower(strings.TrimSpace(source))]
	if !ok {
		return nil, fmt.Errorf("no parser available for source: %s", source)
	}
	return newParser(), nil
}

// SupportedSources lists the broker names GetParser accepts.
func SupportedSources() []string {
	sources := make([]string, 0, len(registry))
	for s := range registry {
		sources = append(sources, s)
	}
	sort.Strings(sources)
	return sources
}
