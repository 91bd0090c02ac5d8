// Package camera normalizes camera, profile and state payloads into the flat
// attribute sets the display sensors consume.
package camera

import (
	"encoding/json"
	"strconv"

	"github.com/rs/zerolog/log"

	"github.com/cubohome/cubod/pkg/client"
)

// Profile - parsed baby profile (nested JSON-encoded string in the cameras payload)
type Profile struct {
	Baby   string `json:"baby"`
	Birth  string `json:"birth"`
	Gender *int   `json:"gender"`
	Avatar string `json:"avatar"`
}

// Settings - parsed camera settings (nested JSON-encoded string)
type Settings struct {
	AlexaEnable bool `json:"alexa_enable"`
}

// Details - merged view of camera registration, profile and report settings
// for a single device
type Details struct {
	DeviceID  string
	LicenseID string
	Created   int64
	Role      int

	BabyName  string
	BirthDate string
	Gender    string
	AvatarURL string

	AlexaEnabled bool

	TimeZone   string
	SleepTime  string
	WakeupTime string
	ReportTime string
	GMTOffset  float64
}

// ParseProfile - parses the nested profile JSON string.
// A malformed profile yields a zero Profile plus *client.PartialDataError;
// the caller keeps the rest of the record.
func ParseProfile(raw string) (Profile, error) {
	if raw == "" {
		return Profile{}, nil
	}

	var profile Profile
	if err := json.Unmarshal([]byte(raw), &profile); err != nil {
		return Profile{}, &client.PartialDataError{Field: "profile", Err: err}
	}

	return profile, nil
}

// ParseSettings - parses the nested settings JSON string
func ParseSettings(raw string) (Settings, error) {
	if raw == "" {
		return Settings{}, nil
	}

	var settings Settings
	if err := json.Unmarshal([]byte(raw), &settings); err != nil {
		return Settings{}, &client.PartialDataError{Field: "settings", Err: err}
	}

	return settings, nil
}

// GenderText - maps the vendor's gender code (0=male, 1=female) to a label
func GenderText(gender *int) string {
	switch {
	case gender == nil:
		return "unknown"
	case *gender == 0:
		return "male"
	case *gender == 1:
		return "female"
	default:
		return "unknown"
	}
}

// DeviceMap - maps baby names to device IDs for camera selection at login time
func DeviceMap(resp *client.CamerasResponse) map[string]string {
	devices := make(map[string]string)

	for _, record := range resp.Profiles {
		profile, err := ParseProfile(record.Profile)
		if err != nil {
			log.Warn().Str("device_id", record.DeviceID).Err(err).Msg("Skipping camera with malformed profile")
			continue
		}

		name := profile.Baby
		if name == "" {
			name = "Unknown"
		}

		devices[name] = record.DeviceID
	}

	return devices
}

// BuildDetails - merges camera registration, profile and report settings for
// the given device. Malformed nested fields are dropped with a warning; the
// remaining fields still populate the result. Returns nil when the device is
// not part of the response.
func BuildDetails(resp *client.CamerasResponse, deviceID string) *Details {
	var cam *client.Camera
	for i := range resp.Data {
		if resp.Data[i].DeviceID == deviceID {
			cam = &resp.Data[i]
			break
		}
	}

	if cam == nil {
		return nil
	}

	details := &Details{
		DeviceID:  cam.DeviceID,
		LicenseID: cam.LicenseID,
		Created:   cam.Created,
		Role:      cam.Role,
		Gender:    "unknown",
	}

	settings, err := ParseSettings(cam.Settings)
	if err != nil {
		log.Warn().Str("device_id", deviceID).Err(err).Msg("Dropping malformed camera settings")
	} else {
		details.AlexaEnabled = settings.AlexaEnable
	}

	for _, record := range resp.Profiles {
		if record.DeviceID != deviceID {
			continue
		}

		profile, err := ParseProfile(record.Profile)
		if err != nil {
			log.Warn().Str("device_id", deviceID).Err(err).Msg("Dropping malformed baby profile")
			break
		}

		details.BabyName = profile.Baby
		details.BirthDate = profile.Birth
		details.Gender = GenderText(profile.Gender)
		details.AvatarURL = profile.Avatar
		break
	}

	for _, rs := range resp.ReportSettings {
		if rs.DeviceID != deviceID {
			continue
		}

		details.TimeZone = rs.TimeZone
		details.SleepTime = rs.SleepTime
		details.WakeupTime = rs.WakeupTime
		details.ReportTime = rs.ReportTime
		details.GMTOffset = rs.GMTOffset
		break
	}

	return details
}

// Attributes - flattens details into primitive display attributes
func (d *Details) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"device_id":     d.DeviceID,
		"license_id":    d.LicenseID,
		"created":       d.Created,
		"role":          d.Role,
		"baby":          d.BabyName,
		"birth":         d.BirthDate,
		"gender":        d.Gender,
		"avatar_url":    d.AvatarURL,
		"alexa_enabled": d.AlexaEnabled,
		"timezone":      d.TimeZone,
		"sleep_time":    d.SleepTime,
		"wakeup_time":   d.WakeupTime,
		"report_time":   d.ReportTime,
		"gmt_offset":    d.GMTOffset,
	}
}

// StateAttributes - normalizes the camera-state payload into display
// attributes: an online boolean plus the raw timestamp preserved as returned.
func StateAttributes(state *client.CameraState) map[string]interface{} {
	online := state.State == "online"

	attrs := map[string]interface{}{
		"state":  state.State,
		"online": online,
		"ts":     state.TS,
	}

	if seconds, err := strconv.ParseFloat(state.TS, 64); err == nil {
		attrs["ts_epoch"] = seconds
	}

	return attrs
}
