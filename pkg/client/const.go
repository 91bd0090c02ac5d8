package client

import "time"

const (
	// DefaultMobileAPIBase - login and token refresh endpoints
	DefaultMobileAPIBase = "https://mobile-api.getcubo.com"
	// DefaultAPIBase - read endpoints (cameras, alerts, state, subscriptions)
	DefaultAPIBase = "https://api.getcubo.com/prod"

	// RequestTimeout - bounded timeout for a single API call
	RequestTimeout = 10 * time.Second
)

// Cognito user pool the vendor mobile app authenticates against.
// These identify the app, not the user; they ship inside the public APK.
const (
	CognitoClientID     = "1gvbkmngl920rtp6hlbp6057ue"
	CognitoClientSecret = "1ot7h8m3t83g0g4b7ais7ilcf12o44cvr9cbgad0t90kcpno56jr"
	CognitoPoolID       = "us-east-1_Wr7vffd5Y"
	CognitoRegion       = "us-east-1"
)
