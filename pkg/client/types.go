package client

// Camera - camera registration record (matching the Cubo API)
type Camera struct {
	DeviceID  string `json:"device_id"`
	LicenseID string `json:"license_id"`
	Created   int64  `json:"created"`
	Role      int    `json:"role"`

	// Settings is a JSON-encoded string nested inside the JSON payload
	Settings string `json:"settings"`
}

// ProfileRecord - baby profile record; Profile is a JSON-encoded string
type ProfileRecord struct {
	DeviceID string `json:"device_id"`
	Profile  string `json:"profile"`
}

// ReportSettings - per-device daily report settings
type ReportSettings struct {
	DeviceID   string  `json:"device_id"`
	TimeZone   string  `json:"time_zone"`
	SleepTime  string  `json:"sleep_time"`
	WakeupTime string  `json:"wakeup_time"`
	ReportTime string  `json:"report_time"`
	GMTOffset  float64 `json:"gmt_offset"`
}

// CamerasResponse - payload of the cameras list endpoint
type CamerasResponse struct {
	Data           []Camera         `json:"data"`
	Profiles       []ProfileRecord  `json:"profiles"`
	ReportSettings []ReportSettings `json:"report_settings"`
}

// Alert - one record of the append-only timeline feed.
// Params is a JSON-encoded string; Image may be empty.
type Alert struct {
	ID       string  `json:"id"`
	DeviceID string  `json:"device_id"`
	Type     string  `json:"type"`
	TS       float64 `json:"ts"`
	Created  int64   `json:"created"`
	Image    string  `json:"image"`
	Params   string  `json:"params"`
	Region   string  `json:"region"`
}

type alertsResponsePayload struct {
	Data []Alert `json:"data"`
}

// CameraState - online/offline state of a single camera.
// TS arrives as a string of fractional epoch seconds and is kept raw.
type CameraState struct {
	TS    string `json:"ts"`
	State string `json:"state"`
}

// Subscription - account-scoped subscription record, one per camera
type Subscription struct {
	ServiceID           string `json:"service_id"`
	Status              string `json:"status"`
	Kind                string `json:"kind"`
	DeviceID            string `json:"device_id"`
	Platform            string `json:"platform"`
	ServiceStartDate    string `json:"service_start_date"`
	ServiceEndDate      string `json:"service_end_date"`
	GracePeriodStopDate string `json:"grace_period_stop_date"`
	AutoRenewal         bool   `json:"auto_renewal"`
	Note                string `json:"note"`
	Created             int64  `json:"created"`
	OrderID             string `json:"order_id"`
}

type subscriptionsResponsePayload struct {
	Result []Subscription `json:"result"`
}

// Lullaby - one entry of the static song catalog
type Lullaby struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Category string `json:"category"`
	Duration int    `json:"duration"`
}

type lullabiesResponsePayload struct {
	Data []Lullaby `json:"data"`
}

type tokenResponsePayload struct {
	Data         *tokenPayload `json:"data"`
	AccessToken  string        `json:"access_token"`
	RefreshToken string        `json:"refresh_token"`
}

type tokenPayload struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

type mobileLoginResponsePayload struct {
	Data tokenPayload `json:"data"`
}
