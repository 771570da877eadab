// Package pricing computes the acceptable ETH payment band for an order from
// a live ETH/USD quote plus a slippage tolerance in both directions.
package pricing

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"math/big"
	"net/http"
	"time"

	"github.com/delvillarfr/le-ultracivic/services/api/internal/domain"
	"github.com/shopspring/decimal"
)

const defaultSpotURL = "https://api.coingecko.com/api/v3/simple/price?ids=ethereum&vs_currencies=usd"

var weiPerEth = decimal.New(1, 18)

type Service struct {
	hc                *http.Client
	spotURL           string
	allowancePriceUSD decimal.Decimal
	slippage          decimal.Decimal
	fallbackUSD       decimal.Decimal
	logger            *log.Logger
}

type Option func(*Service)

func WithHTTPClient(hc *http.Client) Option {
	return func(s *Service) { s.hc = hc }
}

func WithSpotURL(url string) Option {
	return func(s *Service) { s.spotURL = url }
}

// WithFallbackPrice sets the ETH/USD price used when the quote API is down.
// Without a live quote the band stays usable, at the cost of staleness.
func WithFallbackPrice(usd decimal.Decimal) Option {
	return func(s *Service) { s.fallbackUSD = usd }
}

func NewService(allowancePriceUSD, slippage decimal.Decimal, logger *log.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = log.Default()
	}
	s := &Service{
		hc:                &http.Client{Timeout: 15 * time.Second},
		spotURL:           defaultSpotURL,
		allowancePriceUSD: allowancePriceUSD,
		slippage:          slippage,
		fallbackUSD:       decimal.NewFromInt(2500),
		logger:            logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SpotPriceUSD returns the current ETH price in USD and the source it came
// from ("live" or "fallback").
func (s *Service) SpotPriceUSD(ctx context.Context) (decimal.Decimal, string) {
	price, err := s.fetchSpot(ctx)
	if err != nil {
		s.logger.Printf("WARN: eth price lookup failed, using fallback: %v", err)
		return s.fallbackUSD, "fallback"
	}
	return price, "live"
}

func (s *Service) fetchSpot(ctx context.Context) (decimal.Decimal, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.spotURL, nil)
	if err != nil {
		return decimal.Zero, err
	}

	resp, err := s.hc.Do(req)
	if err != nil {
		return decimal.Zero, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("price api status %d", resp.StatusCode)
	}

	var payload struct {
		Ethereum struct {
			USD decimal.Decimal `json:"usd"`
		} `json:"ethereum"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("decode price response: %w", err)
	}
	if payload.Ethereum.USD.IsZero() {
		return decimal.Zero, fmt.Errorf("price api returned zero price")
	}
	return payload.Ethereum.USD, nil
}

// ExpectedPayment returns the wei amount a buyer of numAllowances is expected
// to pay, with the min/max band the validator accepts.
func (s *Service) ExpectedPayment(ctx context.Context, numAllowances int) (domain.PaymentQuote, error) {
	if numAllowances <= 0 {
		return domain.PaymentQuote{}, domain.ErrInvalidQuantity
	}

	spot, source := s.SpotPriceUSD(ctx)

	totalUSD := s.allowancePriceUSD.Mul(decimal.NewFromInt(int64(numAllowances)))
	ethAmount := totalUSD.Div(spot)

	one := decimal.NewFromInt(1)
	expected := ethAmount.Mul(weiPerEth)
	minWei := ethAmount.Mul(one.Sub(s.slippage)).Mul(weiPerEth)
	maxWei := ethAmount.Mul(one.Add(s.slippage)).Mul(weiPerEth)

	return domain.PaymentQuote{
		ExpectedWei: toWei(expected),
		MinWei:      toWei(minWei),
		MaxWei:      toWei(maxWei),
		PriceSource: source,
	}, nil
}

// Estimate is the human-facing payment estimate served by the API.
type Estimate struct {
	NumAllowances int             `json:"num_allowances"`
	TotalUSD      decimal.Decimal `json:"total_usd"`
	EthAmount     decimal.Decimal `json:"eth_amount"`
	EthPriceUSD   decimal.Decimal `json:"eth_price_usd"`
	MinEthAmount  decimal.Decimal `json:"min_eth_amount"`
	MaxEthAmount  decimal.Decimal `json:"max_eth_amount"`
	Slippage      decimal.Decimal `json:"slippage_tolerance"`
	PriceSource   string          `json:"price_source"`
}

func (s *Service) PaymentEstimate(ctx context.Context, numAllowances int) (Estimate, error) {
	if numAllowances <= 0 {
		return Estimate{}, domain.ErrInvalidQuantity
	}

	spot, source := s.SpotPriceUSD(ctx)

	totalUSD := s.allowancePriceUSD.Mul(decimal.NewFromInt(int64(numAllowances)))
	ethAmount := totalUSD.Div(spot)
	one := decimal.NewFromInt(1)

	return Estimate{
		NumAllowances: numAllowances,
		TotalUSD:      totalUSD,
		EthAmount:     ethAmount,
		EthPriceUSD:   spot,
		MinEthAmount:  ethAmount.Mul(one.Sub(s.slippage)),
		MaxEthAmount:  ethAmount.Mul(one.Add(s.slippage)),
		Slippage:      s.slippage,
		PriceSource:   source,
	}, nil
}

func toWei(d decimal.Decimal) *big.Int {
	return d.Truncate(0).BigInt()
}
