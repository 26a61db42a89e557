package config

import "os"

// Config captures process-level configuration sourced from the environment.
type Config struct {
	Addr        string
	DatabaseURL string
	JWTSecret   string

	// Deposit instruction constants handed out to payers.
	MobilePaybill   string
	BankName        string
	BankAccountName string
	BankAccountNo   string
}

// FromEnv builds a Config from environment variables so main stays lean.
func FromEnv() Config {
	cfg := Config{
		Addr:            os.Getenv("ESCROWFLOW_ADDR"),
		DatabaseURL:     os.Getenv("DATABASE_URL"),
		JWTSecret:       os.Getenv("JWT_SECRET"),
		MobilePaybill:   os.Getenv("MOBILE_PAYBILL"),
		BankName:        os.Getenv("BANK_NAME"),
		BankAccountName: os.Getenv("BANK_ACCOUNT_NAME"),
		BankAccountNo:   os.Getenv("BANK_ACCOUNT_NO"),
	}
	if cfg.Addr == "" {
		cfg.Addr = ":8080"
	}
	if cfg.JWTSecret == "" {
		// Development default; must be overridden in production.
		cfg.JWTSecret = "dev-secret-change-me"
	}
	if cfg.MobilePaybill == "" {
		cfg.MobilePaybill = "123456"
	}
	if cfg.BankName == "" {
		cfg.BankName = "Equity Bank"
	}
	if cfg.BankAccountName == "" {
		cfg.BankAccountName = "Escrow Services Ltd"
	}
	if cfg.BankAccountNo == "" {
		cfg.BankAccountNo = "1234567890"
	}
	return cfg
}
