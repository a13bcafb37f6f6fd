package usecase

import (
	"os"
	"strings"

	"github.com/avetra/crypto_trade_exec/internal/domain"
)

// TradingEnabledEnv is the global kill switch environment variable. A
// tri-state string: on|true|1 enables, off|false|0 disables, anything else
// (including unset) falls back to enabled.
const TradingEnabledEnv = "TRADING_ENABLED"

// KillSwitchFromEnv builds the default environment-driven kill switch
// resolver. getenv is injectable for tests; nil uses os.Getenv.
func KillSwitchFromEnv(getenv func(string) string) domain.KillSwitchFunc {
	if getenv == nil {
		getenv = os.Getenv
	}
	return func() bool {
		switch strings.ToLower(strings.TrimSpace(getenv(TradingEnabledEnv))) {
		case "off", "false", "0":
			return false
		case "on", "true", "1":
			return true
		default:
			// Fail-open on misconfiguration, matching observed behavior.
			return true
		}
	}
}
