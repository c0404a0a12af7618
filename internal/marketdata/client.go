// Package marketdata is the REST client for the external market-data
// provider: company profiles for enriching new stocks and last-price quotes
// for valuing positions.
package marketdata

import (
	"context"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"trade-journal-go/internal/config"
	"trade-journal-go/internal/errs"
)

const maxRetries = 3

// Profile describes a listed company.
type Profile struct {
	Symbol   string `json:"symbol"`
	Name     string `json:"name"`
	Exchange string `json:"exchange"`
	Sector   string `json:"sector"`
}

// ProfileProvider looks up company profiles.
type ProfileProvider interface {
	GetProfile(ctx context.Context, symbol string) (*Profile, error)
}

// QuoteProvider looks up last prices.
type QuoteProvider interface {
	GetQuotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error)
}

// StatusError is a non-retryable HTTP error answer.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("request failed with status %d: %s", e.Code, e.Body)
}

// Client is a client for the market-data REST API.
type Client struct {
	client  *resty.Client
	logger  *zap.Logger
	limiter *rate.Limiter
	backoff func(attempt int) time.Duration
}

var (
	_ ProfileProvider = (*Client)(nil)
	_ QuoteProvider   = (*Client)(nil)
)

// NewClient creates a market-data client.
func NewClient(cfg *config.MarketData, logger *zap.Logger) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(cfg.Timeout()).
		SetHeader("Accept", "application/json")
	if cfg.ApiKey != "" {
		client.SetHeader("X-API-KEY", cfg.ApiKey)
	}

	logger = logger.Named("marketdata")
	logger.Info("Using market-data provider", zap.String("base_url", cfg.BaseURL))

	return &Client{
		client:  client,
		logger:  logger,
		limiter: rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.RateLimitBurst),
		backoff: exponentialBackoff,
	}
}

// exponentialBackoff waits 1s, 2s, 4s...
func exponentialBackoff(attempt int) time.Duration {
	return time.Duration(math.Pow(2, float64(attempt))) * time.Second
}

// GetProfile fetches the profile of symbol. An unknown symbol is a NotFoundError.
func (c *Client) GetProfile(ctx context.Context, symbol string) (*Profile, error) {
	req := c.client.R().
		SetContext(ctx).
		SetPathParam("symbol", symbol).
		SetResult(&Profile{})

	resp, err := c.doRequest(ctx, http.MethodGet, "/profile/{symbol}", req)
	if err != nil {
		var status *StatusError
		if errors.As(err, &status) && status.Code == http.StatusNotFound {
			return nil, errs.NotFound("profile", symbol)
		}
		return nil, fmt.Errorf("failed to get profile of %s: %w", symbol, err)
	}

	profile := resp.Result().(*Profile)
	if profile.Symbol == "" {
		profile.Symbol = symbol
	}
	return profile, nil
}

type quote struct {
	Symbol string          `json:"symbol"`
	Price  decimal.Decimal `json:"price"`
}

// GetQuotes fetches the last price of each symbol. Symbols the provider does
// not know are missing from the result.
func (c *Client) GetQuotes(ctx context.Context, symbols []string) (map[string]decimal.Decimal, error) {
	if len(symbols) == 0 {
		return map[string]decimal.Decimal{}, nil
	}

	var quotes []quote
	req := c.client.R().
		SetContext(ctx).
		SetQueryParam("symbols", strings.Join(symbols, ",")).
		SetResult(&quotes)

	if _, err := c.doRequest(ctx, http.MethodGet, "/quotes", req); err != nil {
		return nil, fmt.Errorf("failed to get quotes: %w", err)
	}

	prices := make(map[string]decimal.Decimal, len(quotes))
	for _, q := range quotes {
		prices[strings.ToUpper(q.Symbol)] = q.Price
	}
	return prices, nil
}

// doRequest executes req with rate limiting, retrying rate-limit answers,
// server errors and network failures.
func (c *Client) doRequest(ctx context.Context, method, url string, req *resty.Request) (*resty.Response, error) {
	var resp *resty.Response
	var err error

	for i := 0; i < maxRetries; i++ {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter wait failed: %w", err)
		}

		c.logger.Debug("Executing request", zap.String("method", method), zap.String("url", c.client.BaseURL+url))
		resp, err = req.Execute(method, url)

		if err == nil && !resp.IsError() {
			return resp, nil
		}

		shouldRetry := false
		var retryAfter time.Duration

		if err == nil {
			statusCode := resp.StatusCode()
			if statusCode == http.StatusTooManyRequests || statusCode == http.StatusTeapot {
				shouldRetry = true
				if seconds, convErr := strconv.Atoi(resp.Header().Get("Retry-After")); convErr == nil {
					retryAfter = time.Duration(seconds) * time.Second
				}
			} else if statusCode >= 500 {
				shouldRetry = true
			}
			if !shouldRetry {
				return nil, &StatusError{Code: statusCode, Body: resp.String()}
			}
			err = &StatusError{Code: statusCode, Body: resp.String()}
		} else {
			shouldRetry = true
		}

		if i == maxRetries-1 {
			break
		}
		if retryAfter == 0 {
			retryAfter = c.backoff(i)
		}

		c.logger.Warn("Request failed, retrying...",
			zap.Int("attempt", i+1),
			zap.Duration("retry_after", retryAfter),
			zap.Error(err),
		)

		select {
		case <-time.After(retryAfter):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	return nil, fmt.Errorf("request failed after %d attempts: %w", maxRetries, err)
}
