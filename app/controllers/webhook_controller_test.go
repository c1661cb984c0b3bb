package controllers

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func signWebhookBody(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestHandleVippsWebhookHTTPContract(t *testing.T) {
	const secret = "test-webhook-secret"
	t.Setenv("VIPPS_WEBHOOK_SECRET", secret)

	app := fiber.New()
	app.Post("/webhooks/vipps", HandleVippsWebhook)

	validBody := []byte(`{"eventId":"evt-1","eventType":"recurring.charge-captured.v1","agreementId":"agr-1","amount":12990}`)
	unknownTypeBody := []byte(`{"eventId":"evt-2","eventType":"recurring.something-new.v1","agreementId":"agr-1"}`)
	missingAgreementBody := []byte(`{"eventId":"evt-3","eventType":"recurring.charge-captured.v1","amount":12990}`)

	cases := []struct {
		name       string
		body       []byte
		signature  string
		wantStatus int
		wantBody   string
	}{
		{"missing signature header", validBody, "", fiber.StatusUnauthorized, "invalid_signature"},
		{"wrong signature", validBody, "deadbeef", fiber.StatusUnauthorized, "invalid_signature"},
		{"signature over different body", validBody, signWebhookBody(secret, []byte(`{}`)), fiber.StatusUnauthorized, "invalid_signature"},
		{"signed non-json body", []byte("not-json"), signWebhookBody(secret, []byte("not-json")), fiber.StatusBadRequest, "invalid_payload"},
		{"signed body missing agreementId", missingAgreementBody, signWebhookBody(secret, missingAgreementBody), fiber.StatusBadRequest, "invalid_payload"},
		{"unknown event type acked", unknownTypeBody, signWebhookBody(secret, unknownTypeBody), fiber.StatusOK, `"ignored":true`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest("POST", "/webhooks/vipps", bytes.NewReader(tc.body))
			req.Header.Set("Content-Type", "application/json")
			if tc.signature != "" {
				req.Header.Set("Vipps-Signature", tc.signature)
			}

			resp, err := app.Test(req, -1)
			require.NoError(t, err)
			assert.Equal(t, tc.wantStatus, resp.StatusCode)

			body, readErr := io.ReadAll(resp.Body)
			require.NoError(t, readErr)
			assert.Contains(t, string(body), tc.wantBody)
		})
	}
}
