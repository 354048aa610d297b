// Package portfolio tracks the registered account and open positions,
// applying fills reported by the execution client.
package portfolio

import (
	"fmt"
	"sort"
	"sync"

	"github.com/mescon/tradecore/internal/domain"
	"github.com/mescon/tradecore/internal/eventbus"
	"github.com/mescon/tradecore/internal/logger"
)

// Account holds the cash side of the portfolio.
type Account struct {
	ID       string
	Currency string
	Balance  float64
}

// Position is the net holding in one symbol.
type Position struct {
	Symbol   string
	Qty      float64
	AvgPrice float64
}

// Portfolio is the in-memory registry of account and positions.
type Portfolio struct {
	mu        sync.RWMutex
	account   *Account
	positions map[string]*Position
	bus       *eventbus.EventBus
}

// New creates an empty portfolio.
func New(bus *eventbus.EventBus) *Portfolio {
	return &Portfolio{
		positions: make(map[string]*Position),
		bus:       bus,
	}
}

// Start subscribes the portfolio to accepted orders so fills flow into
// positions.
func (p *Portfolio) Start(eb *eventbus.EventBus) {
	eb.Subscribe(domain.OrderAccepted, func(e domain.Event) {
		symbol := e.GetStringOr("symbol", "")
		side := e.GetStringOr("side", "")
		qty, _ := e.GetFloat64("qty")
		price, _ := e.GetFloat64("price")
		if symbol == "" || qty == 0 {
			return
		}
		p.ApplyFill(symbol, side, qty, price)
	})
}

// RegisterAccount registers the trading account. Re-registration with a
// different ID is rejected.
func (p *Portfolio) RegisterAccount(id, currency string, balance float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.account != nil && p.account.ID != id {
		return fmt.Errorf("account %s already registered", p.account.ID)
	}
	p.account = &Account{ID: id, Currency: currency, Balance: balance}
	p.publish(domain.AccountRegistered, id, map[string]interface{}{
		"currency": currency,
		"balance":  balance,
	})
	return nil
}

// Account returns a copy of the registered account.
func (p *Portfolio) Account() (Account, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.account == nil {
		return Account{}, false
	}
	return *p.account, true
}

// ApplyFill merges a fill into the symbol's position and adjusts the cash
// balance. Buys increase the position at a blended average price; sells
// decrease it.
func (p *Portfolio) ApplyFill(symbol, side string, qty, price float64) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pos, ok := p.positions[symbol]
	if !ok {
		pos = &Position{Symbol: symbol}
		p.positions[symbol] = pos
	}

	signed := qty
	if side == "sell" {
		signed = -qty
	}

	newQty := pos.Qty + signed
	switch {
	case signed > 0 && pos.Qty >= 0:
		// Adding to a long: blend the average price.
		total := pos.AvgPrice*pos.Qty + price*signed
		pos.AvgPrice = total / newQty
	case newQty == 0:
		pos.AvgPrice = 0
	case pos.Qty*newQty < 0:
		// Crossed through flat: the remainder opens at the fill price.
		pos.AvgPrice = price
	}
	pos.Qty = newQty

	if p.account != nil {
		p.account.Balance -= signed * price
	}

	if newQty == 0 {
		delete(p.positions, symbol)
	}

	p.publish(domain.PositionUpdated, symbol, map[string]interface{}{
		"qty":       newQty,
		"avg_price": pos.AvgPrice,
	})
}

// Position returns a copy of the position in symbol.
func (p *Portfolio) Position(symbol string) (Position, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	pos, ok := p.positions[symbol]
	if !ok {
		return Position{}, false
	}
	return *pos, true
}

// Positions returns a snapshot of all open positions, sorted by symbol.
func (p *Portfolio) Positions() []Position {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]Position, 0, len(p.positions))
	for _, pos := range p.positions {
		out = append(out, *pos)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Symbol < out[j].Symbol })
	return out
}

func (p *Portfolio) publish(eventType domain.EventType, aggregateID string, data map[string]interface{}) {
	if p.bus == nil {
		return
	}
	if err := p.bus.Publish(domain.Event{
		AggregateType: "portfolio",
		AggregateID:   aggregateID,
		EventType:     eventType,
		EventData:     data,
	}); err != nil {
		logger.Errorf("Failed to publish %s: %v", eventType, err)
	}
}
