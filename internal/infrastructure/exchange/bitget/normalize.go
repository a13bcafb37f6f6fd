package bitget

import (
	"strings"

	"github.com/avetra/crypto_trade_exec/internal/domain"
	"github.com/avetra/crypto_trade_exec/internal/infrastructure/exchange"
)

func normalizePosition(m map[string]any) *domain.NormalizedPosition {
	side := domain.SideLong
	if strings.EqualFold(exchange.PickString(m, "holdSide", "side"), "short") {
		side = domain.SideShort
	}
	mode := domain.MarginModeCross
	if strings.EqualFold(exchange.PickString(m, "marginMode"), "isolated") {
		mode = domain.MarginModeIsolated
	}
	return &domain.NormalizedPosition{
		Symbol:           exchange.PickString(m, "symbol", "instId"),
		Side:             side,
		MarginMode:       mode,
		Qty:              exchange.PickFloat(m, "total", "available", "size"),
		EntryPrice:       exchange.PickFloat(m, "openPriceAvg", "averageOpenPrice", "entryPrice"),
		MarkPrice:        exchange.PickFloat(m, "markPrice"),
		LiquidationPrice: exchange.PickFloat(m, "liquidationPrice", "liqPx"),
		UnrealizedPnl:    exchange.PickFloat(m, "unrealizedPL", "upl"),
		Leverage:         exchange.PickFloat(m, "leverage"),
	}
}

func normalizeOrder(m map[string]any) *domain.NormalizedOrder {
	return &domain.NormalizedOrder{
		OrderID:       exchange.PickString(m, "orderId", "ordId"),
		ClientOrderID: exchange.PickString(m, "clientOid", "clOrdId"),
		Symbol:        exchange.PickString(m, "symbol", "instId"),
		Side:          exchange.PickString(m, "side"),
		Type:          exchange.PickString(m, "orderType", "ordType"),
		Status:        exchange.PickString(m, "status", "state"),
		Price:         exchange.PickFloat(m, "price", "priceAvg", "px"),
		Qty:           exchange.PickFloat(m, "size", "sz"),
		FilledQty:     exchange.PickFloat(m, "baseVolume", "accFillSz", "filledQty"),
		AvgPrice:      exchange.PickFloat(m, "priceAvg", "avgPx", "fillPrice"),
		ReduceOnly:    strings.EqualFold(exchange.PickString(m, "reduceOnly"), "yes"),
		CreatedAt:     exchange.PickInt(m, "cTime", "ctime", "createdTime"),
		UpdatedAt:     exchange.PickInt(m, "uTime", "utime", "updatedTime"),
	}
}

func normalizeTicker(m map[string]any) *domain.NormalizedTicker {
	return &domain.NormalizedTicker{
		Symbol:    exchange.PickString(m, "symbol", "instId"),
		Last:      exchange.PickFloat(m, "lastPr", "last", "lastPrice"),
		Bid:       exchange.PickFloat(m, "bidPr", "bestBid", "bidPrice"),
		Ask:       exchange.PickFloat(m, "askPr", "bestAsk", "askPrice"),
		High24h:   exchange.PickFloat(m, "high24h"),
		Low24h:    exchange.PickFloat(m, "low24h"),
		Volume24h: exchange.PickFloat(m, "baseVolume", "volume24h"),
		Ts:        exchange.PickInt(m, "ts", "timestamp"),
	}
}

func normalizeTrade(symbol string, m map[string]any) *domain.NormalizedTrade {
	return &domain.NormalizedTrade{
		Symbol: symbol,
		Side:   exchange.PickString(m, "side"),
		Price:  exchange.PickFloat(m, "price", "px"),
		Qty:    exchange.PickFloat(m, "size", "sz", "qty"),
		Ts:     exchange.PickInt(m, "ts", "time"),
	}
}

// normalizeBookLevels converts [[price, qty], ...] rows, dropping garbled
// entries instead of failing the whole book.
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
