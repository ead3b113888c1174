package executor

import (
	"context"
	"fmt"
	"strings"

	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/apperr"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/broker"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/config"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/internal/paper"
	"github.com/PrinceFroggy/Council-Desktop-Guardian/pkg/types"
)

type Broker interface {
	PlaceOrder(ctx context.Context, req broker.OrderRequest) (broker.Order, error)
}

// CheckTradeGates applies the broker safety checks that hold regardless of the council verdict.
func CheckTradeGates(cfg config.TradingConfig, a types.BrokerOrder) error {
	if !cfg.BrokerEnabled() {
		return apperr.Policy("trade.gate", "broker trading disabled; set trading.broker=alpaca")
	}
	mode := strings.ToLower(strings.TrimSpace(a.BrokerMode))
	account := cfg.AccountMode()
	switch mode {
	case "paper":
		if account != "paper" {
			return apperr.Policy("trade.gate", "paper order rejected: account is configured for live trading")
		}
	case "live":
		if !a.ConfirmLive {
			return apperr.Policy("trade.gate", "live order requires confirm_live=true")
		}
		if account != "live" {
			return apperr.Policy("trade.gate", "live order rejected: account is configured for paper trading")
		}
	default:
		return apperr.Policy("trade.gate", "broker_mode must be paper or live, got %q", a.BrokerMode)
	}
	return nil
}

func orderRequest(a types.BrokerOrder) broker.OrderRequest {
	return broker.OrderRequest{
		Symbol:      a.Symbol,
		Side:        a.Side,
		Qty:         a.Qty,
		Notional:    a.Notional,
		Type:        a.OrderType,
		TimeInForce: a.TimeInForce,
		LimitPrice:  a.LimitPrice,
		StopPrice:   a.StopPrice,
		OrderClass:  a.OrderClass,
		TakeProfit:  a.TakeProfitLimitPrice,
		StopLoss:    a.StopLossStopPrice,
	}
}

func (e *Executor) brokerOrder(ctx context.Context, a types.BrokerOrder) (string, any, error) {
	if err := CheckTradeGates(e.trading, a); err != nil {
		return "", nil, err
	}
	if e.broker == nil {
		return "", nil, apperr.Policy("trade.gate", "no broker client configured")
	}
	order, err := e.broker.PlaceOrder(ctx, orderRequest(a))
	if err != nil {
		return "", nil, err
	}
	return fmt.Sprintf("alpaca_order %s %s %s status=%s", strings.ToLower(a.Side), strings.ToUpper(a.Symbol), order.ID, order.Status), order, nil
}

func (e *Executor) paperTrade(ctx context.Context, a types.PaperTrade) (string, any, error) {
	if e.paper == nil {
		return "", nil, apperr.Policy("trade.paper", "paper ledger not configured")
	}
	portfolio, trade, err := e.paper.Apply(ctx, a.Ticker, a.Side, a.Qty, a.Price)
	if err != nil {
		return "", nil, err
	}
	return "paper_trade " + trade.String(), struct {
		Trade     paper.Trade     `json:"trade"`
		Portfolio paper.Portfolio `json:"portfolio"`
	}{trade, portfolio}, nil
}
