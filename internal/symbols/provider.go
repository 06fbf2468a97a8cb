package symbols

import (
	"context"
	"errors"
	"strings"
)

// Provider yields the symbols collection sweeps should cover.
type Provider interface {
	List(ctx context.Context) ([]string, error)
	Name() string
}

// Normalize dedupes and canonicalizes a symbol list: upper case, USDT
// suffix appended when missing.
func Normalize(symbols []string) ([]string, error) {
	if len(symbols) == 0 {
		return nil, errors.New("symbol list is empty")
	}
	seen := make(map[string]struct{}, len(symbols))
	out := make([]string, 0, len(symbols))
	for _, s := range symbols {
		s = strings.ToUpper(strings.TrimSpace(s))
		if s == "" {
			continue
		}
		if !strings.HasSuffix(s, "USDT") {
			s += "USDT"
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	if len(out) == 0 {
		return nil, errors.New("symbol list is empty after normalization")
	}
	return out, nil
}

// StaticProvider serves a fixed list from configuration.
type StaticProvider struct{ symbols []string }

func NewStaticProvider(symbols []string) *StaticProvider {
	return &StaticProvider{symbols: symbols}
}

func (p *StaticProvider) Name() string { return "static" }

func (p *StaticProvider) List(_ context.Context) ([]string, error) {
	return Normalize(p.symbols)
}

// CatalogStore is the slice of the control store the catalog provider needs.
type CatalogStore interface {
	ActiveSymbols(ctx context.Context, quote string) ([]string, error)
}

// CatalogProvider reads tradeable symbols from the imported token catalog,
// falling back to a secondary provider when the catalog is empty.
type CatalogProvider struct {
	store    CatalogStore
	quote    string
	fallback Provider
}

func NewCatalogProvider(store CatalogStore, quote string, fallback Provider) *CatalogProvider {
	if quote == "" {
		quote = "USDT"
	}
	return &CatalogProvider{store: store, quote: quote, fallback: fallback}
}

func (p *CatalogProvider) Name() string { return "catalog" }

func (p *CatalogProvider) List(ctx context.Context) ([]string, error) {
	syms, err := p.store.ActiveSymbols(ctx, p.quote)
	if err == nil && len(syms) > 0 {
		return syms, nil
	}
	if p.fallback == nil {
		if err != nil {
			return nil, err
		}
		return nil, errors.New("token catalog is empty and no fallback is configured")
	}
	return p.fallback.List(ctx)
}
