package constants

// Static route constants
const (
	VippsWebhookRoute = "/webhooks/vipps"
	APIRoute          = "/api"
)
