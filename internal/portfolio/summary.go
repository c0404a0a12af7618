package portfolio

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"trade-journal-go/internal/cache"
	"trade-journal-go/internal/errs"
	"trade-journal-go/internal/models"
	"trade-journal-go/internal/userctx"
)

// QuoteProvider returns last prices keyed by symbol. Symbols it cannot price
// are left out of the map.
type QuoteProvider interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// Holding is one position row as presented to the user. The market fields
// are invalid when no quote was available.
type Holding struct {
	AccountID       *uint               `json:"account_id,omitempty"`
	AccountName     string              `json:"account_name,omitempty"`
	Symbol          string              `json:"symbol"`
	Name            string              `json:"name"`
	Sector          string              `json:"sector,omitempty"`
	Quantity        decimal.Decimal     `json:"quantity"`
	AveragePrice    decimal.Decimal     `json:"average_price"`
	TotalInvestment decimal.Decimal     `json:"total_investment"`
	LastPrice       decimal.NullDecimal `json:"last_price"`
	MarketValue     decimal.NullDecimal `json:"market_value"`
	UnrealizedPnl   decimal.NullDecimal `json:"unrealized_pnl"`
}

// SectorWeight is the share of invested capital in one sector.
type SectorWeight struct {
	Sector        string          `json:"sector"`
	Invested      decimal.Decimal `json:"invested"`
	WeightPercent decimal.Decimal `json:"weight_percent"`
}

// Summary is the user's whole book. Values are shared with the cache and
// must not be modified.
type Summary struct {
	UserID          string              `json:"user_id"`
	Holdings        []Holding           `json:"holdings"`
	Sectors         []SectorWeight      `json:"sectors"`
	TotalInvestment decimal.Decimal     `json:"total_investment"`
	MarketValue     decimal.NullDecimal `json:"market_value"`
	UnrealizedPnl   decimal.NullDecimal `json:"unrealized_pnl"`
	RealizedPnl     decimal.Decimal     `json:"realized_pnl"`
	AsOf            time.Time           `json:"as_of"`
}

// SymbolPosition aggregates one symbol across the user's accounts.
type SymbolPosition struct {
	Symbol          string          `json:"symbol"`
	Quantity        decimal.Decimal `json:"quantity"`
	AveragePrice    decimal.Decimal `json:"average_price"`
	TotalInvestment decimal.Decimal `json:"total_investment"`
	RealizedPnl     decimal.Decimal `json:"realized_pnl"`
	Holdings        []Holding       `json:"holdings"`
}

// SymbolGain is the realized result of one symbol in a year.
type SymbolGain struct {
	Symbol      string          `json:"symbol"`
	Sales       int             `json:"sales"`
	Proceeds    decimal.Decimal `json:"proceeds"`
	CostBasis   decimal.Decimal `json:"cost_basis"`
	RealizedPnl decimal.Decimal `json:"realized_pnl"`
}

// GainsReport sums realized P&L for a calendar year with a flat-rate tax
// estimate. Losses offset gains; the estimate is never negative.
type GainsReport struct {
	Year         int             `json:"year"`
	Symbols      []SymbolGain    `json:"symbols"`
	RealizedPnl  decimal.Decimal `json:"realized_pnl"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	EstimatedTax decimal.Decimal `json:"estimated_tax"`
}

// Reader serves the read-side views. quotes may be nil.
type Reader struct {
	db      *gorm.DB
	cache   *cache.Cache
	quotes  QuoteProvider
	taxRate decimal.Decimal
	logger  *zap.Logger
}

// NewReader creates a Reader.
func NewReader(db *gorm.DB, c *cache.Cache, quotes QuoteProvider, taxRate float64, logger *zap.Logger) *Reader {
	return &Reader{
		db:      db,
		cache:   c,
		quotes:  quotes,
		taxRate: decimal.NewFromFloat(taxRate),
		logger:  logger.Named("summary"),
	}
}

// ownedBy restricts a query joined with accounts to the user's rows and the
// legacy rows without an account.
func ownedBy(db *gorm.DB, table, userID string) *gorm.DB {
	return db.Joins(fmt.Sprintf("LEFT JOIN accounts ON accounts.id = %s.account_id", table)).
		Where(fmt.Sprintf("(accounts.user_id = ? OR %s.account_id IS NULL)", table), userID)
}

func (r *Reader) positions(ctx context.Context, userID, symbol string) ([]models.Portfolio, error) {
	q := ownedBy(r.db.WithContext(ctx).Model(&models.Portfolio{}), "portfolios", userID).
		Joins("JOIN stocks ON stocks.id = portfolios.stock_id").
		Select("portfolios.*").
		Preload("Stock").
		Preload("Account")
	if symbol != "" {
		q = q.Where("stocks.symbol = ?", symbol)
	}

	var rows []models.Portfolio
	if err := q.Order("stocks.symbol asc, portfolios.id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load positions for '%s': %w", userID, err)
	}
	return rows, nil
}

func (r *Reader) sells(ctx context.Context, userID string, from, to time.Time) ([]models.Transaction, error) {
	q := ownedBy(r.db.WithContext(ctx).Model(&models.Transaction{}), "transactions", userID).
		Select("transactions.*").
		Preload("Stock").
		Where("transactions.type = ?", models.TypeSell)
	if !from.IsZero() {
		q = q.Where("transactions.transaction_date >= ? AND transactions.transaction_date < ?", from.UTC(), to.UTC())
	}

	var rows []models.Transaction
	if err := q.Order("transactions.transaction_date asc, transactions.id asc").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to load sales for '%s': %w", userID, err)
	}
	return rows, nil
}

func holdingOf(row *models.Portfolio) Holding {
	h := Holding{
		AccountID:       row.AccountID,
		Quantity:        row.Quantity,
		AveragePrice:    row.AveragePrice,
		TotalInvestment: row.TotalInvestment,
	}
	if row.Account != nil {
		h.AccountName = row.Account.Name
	}
	if row.Stock != nil {
		h.Symbol = row.Stock.Symbol
		h.Name = row.Stock.Name
		h.Sector = row.Stock.Sector
	}
	return h
}

// value fills the market fields of holdings from the quote provider. Quote
// failures only leave the fields empty.
func (r *Reader) value(ctx context.Context, holdings []Holding) {
	if r.quotes == nil || len(holdings) == 0 {
		return
	}
	seen := make(map[string]bool)
	var symbols []string
	for _, h := range holdings {
		if !seen[h.Symbol] {
			seen[h.Symbol] = true
			symbols = append(symbols, h.Symbol)
		}
	}

	prices, err := r.quotes.GetQuotes(ctx, symbols)
	if err != nil {
		r.logger.Warn("Quotes unavailable, summary is not valued", zap.Strings("symbols", symbols), zap.Error(err))
		return
	}
	for i := range holdings {
		price, ok := prices[holdings[i].Symbol]
		if !ok {
			continue
		}
		mv := models.RoundDisplay(price.Mul(holdings[i].Quantity))
		holdings[i].LastPrice = decimal.NewNullDecimal(price)
		holdings[i].MarketValue = decimal.NewNullDecimal(mv)
		holdings[i].UnrealizedPnl = decimal.NewNullDecimal(models.RoundDisplay(mv.Sub(holdings[i].TotalInvestment)))
	}
}

// Summary returns the user's holdings, totals and sector weights.
func (r *Reader) Summary(ctx context.Context) (*Summary, error) {
	userID := userctx.UserID(ctx)
	v, gen, ok := r.cache.Get(cache.PortfolioSummary, userID)
	if ok {
		return v.(*Summary), nil
	}

	rows, err := r.positions(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	sales, err := r.sells(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}

	s := &Summary{UserID: userID, Holdings: make([]Holding, 0, len(rows)), AsOf: time.Now().UTC()}
	for i := range rows {
		s.Holdings = append(s.Holdings, holdingOf(&rows[i]))
	}
	r.value(ctx, s.Holdings)

	valued := len(s.Holdings) > 0
	marketValue, unrealized := decimal.Zero, decimal.Zero
	for _, h := range s.Holdings {
		s.TotalInvestment = s.TotalInvestment.Add(h.TotalInvestment)
		if !h.MarketValue.Valid {
			valued = false
			continue
		}
		marketValue = marketValue.Add(h.MarketValue.Decimal)
		unrealized = unrealized.Add(h.UnrealizedPnl.Decimal)
	}
	if valued {
		s.MarketValue = decimal.NewNullDecimal(marketValue)
		s.UnrealizedPnl = decimal.NewNullDecimal(unrealized)
	}
	for _, t := range sales {
		s.RealizedPnl = s.RealizedPnl.Add(t.RealizedPnl)
	}
	s.Sectors = sectorWeights(s.Holdings, s.TotalInvestment)

	r.cache.Set(cache.PortfolioSummary, userID, s, gen)
	return s, nil
}

func sectorWeights(holdings []Holding, total decimal.Decimal) []SectorWeight {
	bySector := make(map[string]decimal.Decimal)
	for _, h := range holdings {
		sector := h.Sector
		if sector == "" {
			sector = "Unclassified"
		}
		bySector[sector] = bySector[sector].Add(h.TotalInvestment)
	}

	out := make([]SectorWeight, 0, len(bySector))
	for sector, invested := range bySector {
		w := SectorWeight{Sector: sector, Invested: invested}
		if total.IsPositive() {
			w.WeightPercent = models.RoundDisplay(invested.Div(total).Mul(decimal.NewFromInt(100)))
		}
		out = append(out, w)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Invested.Equal(out[j].Invested) {
			return out[i].Invested.GreaterThan(out[j].Invested)
		}
		return out[i].Sector < out[j].Sector
	})
	return out
}

// Position returns the user's position in symbol across accounts, or a
// NotFoundError when nothing is held.
func (r *Reader) Position(ctx context.Context, symbol string) (*SymbolPosition, error) {
	userID := userctx.UserID(ctx)
	symbol = strings.ToUpper(strings.TrimSpace(symbol))
	key := userID + "/" + symbol
	v, gen, ok := r.cache.Get(cache.PortfolioSymbol, key)
	if ok {
		return v.(*SymbolPosition), nil
	}

	rows, err := r.positions(ctx, userID, symbol)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, errs.NotFound("portfolio", symbol)
	}

	p := &SymbolPosition{Symbol: symbol}
	for i := range rows {
		h := holdingOf(&rows[i])
		p.Holdings = append(p.Holdings, h)
		p.Quantity = p.Quantity.Add(h.Quantity)
		p.TotalInvestment = p.TotalInvestment.Add(h.TotalInvestment)
	}
	p.AveragePrice = Position{Quantity: p.Quantity, TotalInvestment: p.TotalInvestment}.AveragePrice()

	sales, err := r.sells(ctx, userID, time.Time{}, time.Time{})
	if err != nil {
		return nil, err
	}
	for _, t := range sales {
		if t.Stock != nil && t.Stock.Symbol == symbol {
			p.RealizedPnl = p.RealizedPnl.Add(t.RealizedPnl)
		}
	}

	r.cache.Set(cache.PortfolioSymbol, key, p, gen)
	return p, nil
}

// RealizedGains reports the SELLs of a calendar year.
func (r *Reader) RealizedGains(ctx context.Context, year int) (*GainsReport, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	sales, err := r.sells(ctx, userctx.UserID(ctx), from, from.AddDate(1, 0, 0))
	if err != nil {
		return nil, err
	}

	bySymbol := make(map[string]*SymbolGain)
	report := &GainsReport{Year: year, TaxRate: r.taxRate}
	for _, t := range sales {
		symbol := fmt.Sprintf("#%d", t.StockID)
		if t.Stock != nil {
			symbol = t.Stock.Symbol
		}
		g, ok := bySymbol[symbol]
		if !ok {
			g = &SymbolGain{Symbol: symbol}
			bySymbol[symbol] = g
		}
		g.Sales++
		g.Proceeds = g.Proceeds.Add(t.Gross().Sub(t.Commission))
		g.CostBasis = g.CostBasis.Add(t.CostBasis)
		g.RealizedPnl = g.RealizedPnl.Add(t.RealizedPnl)
		report.RealizedPnl = report.RealizedPnl.Add(t.RealizedPnl)
	}

	for _, g := range bySymbol {
		g.Proceeds = models.RoundDisplay(g.Proceeds)
		g.CostBasis = models.RoundDisplay(g.CostBasis)
		report.Symbols = append(report.Symbols, *g)
	}
	sort.Slice(report.Symbols, func(i, j int) bool { return report.Symbols[i].Symbol < report.Symbols[j].Symbol })

	if report.RealizedPnl.IsPositive() {
		report.EstimatedTax = models.RoundDisplay(report.RealizedPnl.Mul(report.TaxRate))
	}
	return report, nil
}
