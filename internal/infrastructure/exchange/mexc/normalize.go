package mexc

import (
	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

func normalizePosition(m map[string]any) *domain.NormalizedPosition {
	// positionType: 1 long, 2 short. openType: 1 isolated, 2 cross.
	side := domain.SideLong
	if pt := exchange.PickInt(m, "positionType"); pt != nil && *pt == 2 {
		side = domain.SideShort
	}
	mode := domain.MarginModeCross
	if ot := exchange.PickInt(m, "openType"); ot != nil && *ot == 1 {
		mode = domain.MarginModeIsolated
	}
	return &domain.NormalizedPosition{
		Symbol:           canonicalSymbol(exchange.PickString(m, "symbol")),
		Side:             side,
		MarginMode:       mode,
		Qty:              exchange.PickFloat(m, "holdVol", "vol"),
		EntryPrice:       exchange.PickFloat(m, "openAvgPrice", "holdAvgPrice"),
		MarkPrice:        exchange.PickFloat(m, "markPrice", "fairPrice"),
		LiquidationPrice: exchange.PickFloat(m, "liquidatePrice"),
		UnrealizedPnl:    exchange.PickFloat(m, "unrealised", "unrealized", "profitRatio"),
		Leverage:         exchange.PickFloat(m, "leverage"),
	}
}

func normalizeOrder(m map[string]any) *domain.NormalizedOrder {
	side := ""
	if s := exchange.PickInt(m, "side"); s != nil {
		switch *s {
		case 1, 2:
			side = "buy"
		case 3, 4:
			side = "sell"
		}
	}
	return &domain.NormalizedOrder{
		OrderID:       exchange.PickString(m, "orderId", "id"),
		ClientOrderID: exchange.PickString(m, "externalOid", "clientOid"),
		Symbol:        canonicalSymbol(exchange.PickString(m, "symbol")),
		Side:          side,
		Type:          exchange.PickString(m, "orderType", "type"),
		Status:        exchange.PickString(m, "state", "status"),
		Price:         exchange.PickFloat(m, "price"),
		Qty:           exchange.PickFloat(m, "vol", "volume"),
		FilledQty:     exchange.PickFloat(m, "dealVol"),
		AvgPrice:      exchange.PickFloat(m, "dealAvgPrice"),
		CreatedAt:     exchange.PickInt(m, "createTime"),
		UpdatedAt:     exchange.PickInt(m, "updateTime"),
	}
}

func normalizeTicker(m map[string]any) *domain.NormalizedTicker {
	return &domain.NormalizedTicker{
		Symbol:    canonicalSymbol(exchange.PickString(m, "symbol")),
		Last:      exchange.PickFloat(m, "lastPrice", "last"),
		Bid:       exchange.PickFloat(m, "bid1", "bidPrice"),
		Ask:       exchange.PickFloat(m, "ask1", "askPrice"),
		High24h:   exchange.PickFloat(m, "high24Price", "high24h"),
		Low24h:    exchange.PickFloat(m, "lower24Price", "low24h"),
		Volume24h: exchange.PickFloat(m, "volume24", "volume24h"),
		Ts:        exchange.PickInt(m, "timestamp", "ts"),
	}
}

func normalizeTrade(symbol string, m map[string]any) *domain.NormalizedTrade {
	// T: 1 buy, 2 sell.
	side := ""
	if t := exchange.PickInt(m, "T", "side"); t != nil {
		if *t == 1 {
			side = "buy"
		} else if *t == 2 {
			side = "sell"
		}
	}
	return &domain.NormalizedTrade{
		Symbol: symbol,
		Side:   side,
		Price:  exchange.PickFloat(m, "p", "price"),
		Qty:    exchange.PickFloat(m, "v", "vol", "qty"),
		Ts:     exchange.PickInt(m, "t", "timestamp"),
	}
}

func normalizeBookLevels(rows [][]any) []domain.BookLevel {
	out := make([]domain.BookLevel, 0, len(rows))
	for _, row := range rows {
		if len(row) < 2 {
			continue
		}
		price, okP := exchange.AsFloat(row[0])
		qty, okQ := exchange.AsFloat(row[1])
		if !okP || !okQ {
			continue
		}
		out = append(out, domain.BookLevel{Price: price, Qty: qty})
	}
	return out
}
