package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// ReservationTTL returns the soft-reservation hold window applied when a
// request does not carry an explicit expiry.
//
// Set via env:
// - RESERVATION_TTL_MINUTES=30
func ReservationTTL() time.Duration {
	raw := strings.TrimSpace(os.Getenv("RESERVATION_TTL_MINUTES"))
	if raw == "" {
		return 30 * time.Minute
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(n) * time.Minute
}

// AuditPublishEnabled gates the outbox dispatcher's Pub/Sub publishing.
// When false, audit rows still get written in-transaction but stay PENDING.
//
// Set via env:
// - AUDIT_PUBLISH_ENABLED=true
func AuditPublishEnabled() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("AUDIT_PUBLISH_ENABLED")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}

// StrictRoutingDefault makes newly auto-created stores route in STRICT_TOP mode
// instead of FALLBACK.
//
// Set via env:
// - STRICT_ROUTING_DEFAULT=true
func StrictRoutingDefault() bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("STRICT_ROUTING_DEFAULT")))
	return v == "1" || v == "true" || v == "yes" || v == "y"
}
