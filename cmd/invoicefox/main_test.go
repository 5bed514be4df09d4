package main

import (
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuelReschke/InvoiceFox/internal/pkg/constants"
)

func TestMountMetrics(t *testing.T) {
	tests := []struct {
		name     string
		user     string
		password string
		mounted  bool
		auth     [2]string
		status   int
	}{
		{"no password", "metrics", "", false, [2]string{}, fiber.StatusNotFound},
		{"no user", "", "s3cret", false, [2]string{}, fiber.StatusNotFound},
		{"missing credentials", "metrics", "s3cret", true, [2]string{}, fiber.StatusUnauthorized},
		{"wrong password", "metrics", "s3cret", true, [2]string{"metrics", "guess"}, fiber.StatusUnauthorized},
		{"valid credentials", "metrics", "s3cret", true, [2]string{"metrics", "s3cret"}, fiber.StatusOK},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New()
			assert.Equal(t, tt.mounted, mountMetrics(app, tt.user, tt.password))

			req := httptest.NewRequest(fiber.MethodGet, constants.MetricsRoute, nil)
			if tt.auth[0] != "" {
				req.SetBasicAuth(tt.auth[0], tt.auth[1])
			}
			resp, err := app.Test(req)
			require.NoError(t, err)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}
