// Package testutil holds fixtures shared by veil's package tests.
package testutil

// Test encryption keys for use in tests only. Both decode to 32 bytes.
const (
	TestEncryptionKey    = "12345678901234567890123456789012"
	TestHexEncryptionKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"
)

// Sample texts with known detections under the default recognizers.
const (
	SSNText   = "My SSN is 123-45-6789"
	EmailText = "write to alice@example.com"
	CleanText = "Hello world, nothing here."
)
