package testutil

import "recipebox/internal/config"

// TestConfig returns a valid configuration for the test environment.
func TestConfig() *config.Config {
	return &config.Config{
		Port:                     "8080",
		Env:                      "test",
		AllowedOrigins:           "http://localhost:8080",
		RateLimitPerMinute:       1000,
		BodyLimitMB:              16,
		CSRFEnabled:              false,
		DBDriver:                 "sqlite",
		DBPath:                   ":memory:",
		DBSchemaMode:             "sql",
		DBConnMaxLifetimeMinutes: 30,
		SessionTTLHours:          24,
		JWTSecret:                "test-secret-key-12345678901234567890123456789012",
		JWTTTLHours:              1,
		MailDriver:               "log",
		MailFrom:                 "no-reply@recipebox.test",
		OTPTTLMinutes:            5,
		OTPMaxAttempts:           5,
		AdminUsername:            "admin",
		AdminEmail:               "admin@example.com",
		AdminPassword:            "admin123",
		ImageUploadDir:           "uploads",
		ImageMaxUploadSizeMB:     10,
		FeatureFlags:             "signup_otp=on,email_change_otp=on,live_notifications=on",
	}
}
