package camera_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cubohome/cubod/pkg/camera"
	"github.com/cubohome/cubod/pkg/client"
)

func camerasFixture() *client.CamerasResponse {
	return &client.CamerasResponse{
		Data: []client.Camera{
			{
				DeviceID:  "dev-1",
				LicenseID: "lic-1",
				Created:   1700000000,
				Role:      0,
				Settings:  `{"alexa_enable":true}`,
			},
			{
				DeviceID:  "dev-2",
				LicenseID: "lic-2",
				Created:   1700000100,
				Role:      1,
				Settings:  `{broken`,
			},
		},
		Profiles: []client.ProfileRecord{
			{DeviceID: "dev-1", Profile: `{"baby":"Maya","birth":"2023-05-01","gender":1,"avatar":"https://cdn/avatar.jpg"}`},
			{DeviceID: "dev-2", Profile: `{broken`},
		},
		ReportSettings: []client.ReportSettings{
			{DeviceID: "dev-1", TimeZone: "Europe/Berlin", SleepTime: "20:00", WakeupTime: "07:00", ReportTime: "08:00", GMTOffset: 1},
		},
	}
}

func TestParseProfile(t *testing.T) {
	profile, err := camera.ParseProfile(`{"baby":"Maya","birth":"2023-05-01","gender":1}`)
	require.NoError(t, err)
	assert.Equal(t, "Maya", profile.Baby)
	assert.Equal(t, "2023-05-01", profile.Birth)
	require.NotNil(t, profile.Gender)
	assert.Equal(t, 1, *profile.Gender)
}

func TestParseProfileEmpty(t *testing.T) {
	profile, err := camera.ParseProfile("")
	require.NoError(t, err)
	assert.Equal(t, camera.Profile{}, profile)
}

func TestParseProfileMalformed(t *testing.T) {
	_, err := camera.ParseProfile(`{not json`)
	require.Error(t, err)

	var partialErr *client.PartialDataError
	require.True(t, errors.As(err, &partialErr))
	assert.Equal(t, "profile", partialErr.Field)
}

func TestGenderText(t *testing.T) {
	male, female, other := 0, 1, 7
	assert.Equal(t, "male", camera.GenderText(&male))
	assert.Equal(t, "female", camera.GenderText(&female))
	assert.Equal(t, "unknown", camera.GenderText(&other))
	assert.Equal(t, "unknown", camera.GenderText(nil))
}

func TestDeviceMap(t *testing.T) {
	devices := camera.DeviceMap(camerasFixture())

	// dev-2 has a malformed profile and is skipped, not fatal
	assert.Equal(t, map[string]string{"Maya": "dev-1"}, devices)
}

func TestBuildDetailsMergesSections(t *testing.T) {
	details := camera.BuildDetails(camerasFixture(), "dev-1")
	require.NotNil(t, details)

	assert.Equal(t, "dev-1", details.DeviceID)
	assert.Equal(t, "lic-1", details.LicenseID)
	assert.Equal(t, "Maya", details.BabyName)
	assert.Equal(t, "2023-05-01", details.BirthDate)
	assert.Equal(t, "female", details.Gender)
	assert.True(t, details.AlexaEnabled)
	assert.Equal(t, "Europe/Berlin", details.TimeZone)
	assert.Equal(t, "20:00", details.SleepTime)
}

func TestBuildDetailsDropsMalformedNestedFields(t *testing.T) {
	details := camera.BuildDetails(camerasFixture(), "dev-2")
	require.NotNil(t, details)

	// registration fields survive, broken nested JSON becomes defaults
	assert.Equal(t, "dev-2", details.DeviceID)
	assert.Equal(t, "lic-2", details.LicenseID)
	assert.Equal(t, "", details.BabyName)
	assert.Equal(t, "unknown", details.Gender)
	assert.False(t, details.AlexaEnabled)
}

func TestBuildDetailsUnknownDevice(t *testing.T) {
	assert.Nil(t, camera.BuildDetails(camerasFixture(), "dev-404"))
}

func TestDetailsAttributes(t *testing.T) {
	attrs := camera.BuildDetails(camerasFixture(), "dev-1").Attributes()

	assert.Equal(t, "Maya", attrs["baby"])
	assert.Equal(t, "female", attrs["gender"])
	assert.Equal(t, true, attrs["alexa_enabled"])
	assert.Equal(t, "Europe/Berlin", attrs["timezone"])
}

func TestStateAttributesOnline(t *testing.T) {
	attrs := camera.StateAttributes(&client.CameraState{TS: "1767906872.88", State: "online"})

	assert.Equal(t, "online", attrs["state"])
	assert.Equal(t, true, attrs["online"])
	assert.Equal(t, "1767906872.88", attrs["ts"])
	assert.InDelta(t, 1767906872.88, attrs["ts_epoch"], 0.001)
}

func TestStateAttributesOffline(t *testing.T) {
	attrs := camera.StateAttributes(&client.CameraState{TS: "not-a-number", State: "offline"})

	assert.Equal(t, false, attrs["online"])
	assert.Equal(t, "not-a-number", attrs["ts"])
	_, hasEpoch := attrs["ts_epoch"]
	assert.False(t, hasEpoch)
}
