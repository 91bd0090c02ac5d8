package mqtt

// Opts - holds configuration needed to establish connection to the broker
type Opts struct {
	BrokerURL       string
	ClientID        string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
}

// Device - camera identity announced through auto-discovery
type Device struct {
	DeviceID string
	BabyName string
}
