package symbols

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"candler/internal/logger"
	"candler/internal/store/gormstore"

	"github.com/adshao/go-binance/v2"
)

// ImporterConfig controls which exchangeInfo symbols enter the catalog.
type ImporterConfig struct {
	BaseURL    string
	QuoteAsset string
}

// TokenStore is the slice of the control store the importer writes to.
type TokenStore interface {
	UpsertTokens(ctx context.Context, tokens []gormstore.Token) error
}

// Importer refreshes the token catalog from the exchangeInfo endpoint.
type Importer struct {
	client *binance.Client
	store  TokenStore
	quote  string
}

func NewImporter(cfg ImporterConfig, store TokenStore) (*Importer, error) {
	if store == nil {
		return nil, fmt.Errorf("importer requires a token store")
	}
	client := binance.NewClient("", "")
	if base := strings.TrimSpace(cfg.BaseURL); base != "" {
		client.BaseURL = base
	}
	quote := strings.ToUpper(strings.TrimSpace(cfg.QuoteAsset))
	if quote == "" {
		quote = "USDT"
	}
	return &Importer{client: client, store: store, quote: quote}, nil
}

// Import pulls exchangeInfo and upserts every spot symbol quoted in the
// configured asset. Returns how many symbols were imported.
func (i *Importer) Import(ctx context.Context) (int, error) {
	info, err := i.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetching exchange info: %w", err)
	}
	tokens := make([]gormstore.Token, 0, 512)
	for _, sym := range info.Symbols {
		if !strings.EqualFold(sym.QuoteAsset, i.quote) {
			continue
		}
		filters, err := json.Marshal(sym.Filters)
		if err != nil {
			logger.Warnf("[import] dropping filters for %s: %v", sym.Symbol, err)
			filters = []byte("[]")
		}
		tokens = append(tokens, gormstore.Token{
			Symbol:      sym.Symbol,
			BaseAsset:   sym.BaseAsset,
			QuoteAsset:  sym.QuoteAsset,
			Status:      sym.Status,
			SpotAllowed: sym.IsSpotTradingAllowed,
			Filters:     filters,
		})
	}
	if len(tokens) == 0 {
		return 0, fmt.Errorf("exchange info returned no %s symbols", i.quote)
	}
	if err := i.store.UpsertTokens(ctx, tokens); err != nil {
		return 0, fmt.Errorf("storing token catalog: %w", err)
	}
	logger.Infof("[import] refreshed %d %s-quoted symbols", len(tokens), i.quote)
	return len(tokens), nil
}
