package venue

import "fmt"

// FixedPrices is a static PriceSource for tests and local runs.
type FixedPrices map[string]int64

func (p FixedPrices) GetPrice(token string) (int64, error) {
	price, ok := p[token]
	if !ok {
		return 0, fmt.Errorf("no price for token %q", token)
	}
	return price, nil
}

// PriceView is the event-sourced PriceSource: price events write it, the
// margin evaluator reads it. Reads of an unseen token error rather than
// defaulting to zero.
type PriceView struct {
	prices map[string]int64
}

func NewPriceView() *PriceView {
	return &PriceView{prices: make(map[string]int64)}
}

func (v *PriceView) GetPrice(token string) (int64, error) {
	price, ok := v.prices[token]
	if !ok {
		return 0, fmt.Errorf("no price for token %q", token)
	}
	return price, nil
}

func (v *PriceView) SetPrice(token string, price int64) {
	v.prices[token] = price
}

// Prices returns a copy of the current map for snapshots.
func (v *PriceView) Prices() map[string]int64 {
	out := make(map[string]int64, len(v.prices))
	for token, price := range v.prices {
		out[token] = price
	}
	return out
}
