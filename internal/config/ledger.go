package config

import (
	"os"
	"strconv"
)

// LedgerConfig carries the numeric business rules the ledger core and
// schedulers depend on. Amounts are int64 cents, rates are percent.
type LedgerConfig struct {
	TransferFeePercentage float64
	TransferFeeFixed      int64
	FeeCollectorID        string
	SignupBonus           int64
	AgentTierRates        [3]float64 // daily percent for agent levels 1..3
}

func LoadLedgerConfig() *LedgerConfig {
	return &LedgerConfig{
		TransferFeePercentage: getEnvAsFloat("TRANSFER_FEE_PERCENTAGE", 0.5),
		TransferFeeFixed:      getEnvAsInt64("TRANSFER_FEE_FIXED", 50),
		FeeCollectorID:        getEnv("FEE_COLLECTOR_ID", "system-fees"),
		SignupBonus:           getEnvAsInt64("SIGNUP_BONUS", 1000),
		AgentTierRates: [3]float64{
			getEnvAsFloat("AGENT_TIER1_RATE", 0.5),
			getEnvAsFloat("AGENT_TIER2_RATE", 0.8),
			getEnvAsFloat("AGENT_TIER3_RATE", 1.2),
		},
	}
}

// AgentRate returns the daily profit percent for an agent level, or 0
// for non-agents.
func (c *LedgerConfig) AgentRate(level int) float64 {
	if level < 1 || level > len(c.AgentTierRates) {
		return 0
	}
	return c.AgentTierRates[level-1]
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvAsInt64(key string, defaultVal int64) int64 {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.ParseInt(val, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultVal
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if floatVal, err := strconv.ParseFloat(val, 64); err == nil {
			return floatVal
		}
	}
	return defaultVal
}
