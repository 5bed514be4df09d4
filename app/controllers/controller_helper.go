package controllers

import (
	"errors"
	"net"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/billing"
)

// errorStatus maps a billing error kind to the status used by the account and billing API.
func errorStatus(err error) int {
	if errors.Is(err, billing.ErrNotConfigured) {
		return fiber.StatusServiceUnavailable
	}
	switch billing.KindOf(err) {
	case billing.KindAuthentication:
		return fiber.StatusUnauthorized
	case billing.KindValidation:
		return fiber.StatusBadRequest
	case billing.KindNotFound:
		return fiber.StatusNotFound
	case billing.KindInvalidState:
		return fiber.StatusConflict
	default:
		return fiber.StatusInternalServerError
	}
}

// webhookStatus maps a billing error to the provider retry contract:
// 4xx stops redelivery, 5xx asks for it.
func webhookStatus(err error) int {
	if errors.Is(err, billing.ErrNotConfigured) {
		return fiber.StatusServiceUnavailable
	}
	switch billing.KindOf(err) {
	case billing.KindAuthentication, billing.KindValidation:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}

func respondError(c *fiber.Ctx, status int, err error) error {
	return c.Status(status).JSON(fiber.Map{
		"error":   billing.KindOf(err).String(),
		"message": billing.Message(err),
	})
}

func unauthorized(c *fiber.Ctx) error {
	return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{"error": "unauthorized", "message": "Missing or invalid authentication"})
}

func formatTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339)
}

// GetClientIP returns the caller's IPv4 and IPv6 address, either may be empty.
// Proxy headers win over the socket address, which is only used when no header
// carries a usable address. The first address seen per family is kept.
func GetClientIP(c *fiber.Ctx) (ipv4, ipv6 string) {
	candidates := []string{c.Get("CF-Connecting-IP")}
	candidates = append(candidates, strings.Split(c.Get("X-Forwarded-For"), ",")...)
	candidates = append(candidates, c.Get("X-Real-IP"))

	for _, raw := range candidates {
		ipv4, ipv6 = addIP(ipv4, ipv6, raw)
	}
	if ipv4 == "" && ipv6 == "" {
		ipv4, ipv6 = addIP(ipv4, ipv6, c.IP())
	}
	return ipv4, ipv6
}

func addIP(ipv4, ipv6, raw string) (string, string) {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil || ip.IsUnspecified() {
		return ipv4, ipv6
	}
	if v4 := ip.To4(); v4 != nil {
		if ipv4 == "" {
			ipv4 = v4.String()
		}
	} else if ipv6 == "" {
		ipv6 = ip.String()
	}
	return ipv4, ipv6
}
