package usecase_test

import (
	"testing"

	"github.com/avetra/crypto_trade_exec/internal/usecase"
)

func TestKillSwitchFromEnv(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"on", true},
		{"true", true},
		{"1", true},
		{"ON", true},
		{" true ", true},
		{"off", false},
		{"false", false},
		{"0", false},
		{"OFF", false},
		{"", true},        // unset defaults to enabled
		{"garbage", true}, // misconfiguration fails open
	}
	for _, tt := range tests {
		t.Run("value="+tt.value, func(t *testing.T) {
			ks := usecase.KillSwitchFromEnv(func(key string) string {
				if key != usecase.TradingEnabledEnv {
					t.Fatalf("unexpected env key %q", key)
				}
				return tt.value
			})
			if got := ks(); got != tt.want {
				t.Errorf("kill switch for %q = %v, want %v", tt.value, got, tt.want)
			}
		})
	}
}
