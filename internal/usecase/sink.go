package usecase

import (
	"context"

	"go.uber.org/zap"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

// ZapRiskSink logs risk events. It is the default sink when no other is
// injected.
type ZapRiskSink struct {
	log *zap.Logger
}

func NewZapRiskSink(log *zap.Logger) *ZapRiskSink {
	if log == nil {
		log = zap.NewNop()
	}
	return &ZapRiskSink{log: log}
}

func (s *ZapRiskSink) Publish(_ context.Context, ev domain.RiskEvent) {
	s.log.Warn("risk event",
		zap.String("type", ev.Type),
		zap.String("botId", ev.BotID),
		zap.String("message", ev.Message),
		zap.Any("meta", ev.Meta))
}

// MultiRiskSink fans one event out to several sinks.
type MultiRiskSink []domain.RiskSink

func (m MultiRiskSink) Publish(ctx context.Context, ev domain.RiskEvent) {
	for _, s := range m {
		s.Publish(ctx, ev)
	}
}
