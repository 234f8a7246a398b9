package config

import (
	"time"

	"github.com/spf13/viper"
)

// WalletConfig holds the tunables of the money-movement core. All amounts are
// paise.
type WalletConfig struct {
	SignupBonus      int64
	DepositMax       int64
	TransferLimit    int64
	FeeBasisPoints   int64
	FeeThreshold     int64
	SystemFeeAccount string
	MaxRetries       int

	SchedulerSpec string // cron spec for scheduled-payment evaluation
	JWTSecret     string
	QRCodeTTL     time.Duration
}

// LoadWalletConfig returns the wallet configuration with defaults matching
// the production policy: 0.1% fee on transfers above Rs 1,000, Rs 50,000
// single-transfer ceiling, Rs 1,00,000 deposit ceiling.
func LoadWalletConfig() *WalletConfig {
	viper.SetDefault("wallet.signup_bonus", 100_000)    // Rs 1,000
	viper.SetDefault("wallet.deposit_max", 10_000_000)  // Rs 1,00,000
	viper.SetDefault("wallet.transfer_limit", 5_000_000) // Rs 50,000
	viper.SetDefault("wallet.fee_basis_points", 10)     // 0.1%
	viper.SetDefault("wallet.fee_threshold", 100_000)   // Rs 1,000
	viper.SetDefault("wallet.system_fee_account", "LG00000000FEES")
	viper.SetDefault("wallet.max_retries", 3)
	viper.SetDefault("scheduler.spec", "* * * * *")
	viper.SetDefault("qr.code_ttl", 5*time.Minute)

	return &WalletConfig{
		SignupBonus:      viper.GetInt64("wallet.signup_bonus"),
		DepositMax:       viper.GetInt64("wallet.deposit_max"),
		TransferLimit:    viper.GetInt64("wallet.transfer_limit"),
		FeeBasisPoints:   viper.GetInt64("wallet.fee_basis_points"),
		FeeThreshold:     viper.GetInt64("wallet.fee_threshold"),
		SystemFeeAccount: viper.GetString("wallet.system_fee_account"),
		MaxRetries:       viper.GetInt("wallet.max_retries"),
		SchedulerSpec:    viper.GetString("scheduler.spec"),
		JWTSecret:        viper.GetString("jwt.secret_key"),
		QRCodeTTL:        viper.GetDuration("qr.code_ttl"),
	}
}
