// Package alert normalizes the timeline feed: paging, device filtering and
// the nested params payload.
package alert

import (
	"context"
	"encoding/json"
	"sort"

	"github.com/rs/zerolog/log"

	"github.com/cubohome/cubod/pkg/client"
)

// maxPages bounds a single timeline walk so a misbehaving feed can not spin
// the poller forever
const maxPages = 25

// Pager - fetches one page of the timeline feed starting at the given epoch
type Pager interface {
	FetchAlertsPage(ctx context.Context, since int64, deviceID string) ([]client.Alert, error)
}

// Record - one normalized alert with the params string decoded
type Record struct {
	ID       string
	DeviceID string
	Type     string
	TS       float64
	Created  int64
	ImageURL string
	Region   string
	Params   map[string]interface{}
}

// Normalize - decodes the nested params JSON string of a raw alert.
// Malformed params are dropped with a warning, the alert itself survives.
func Normalize(raw client.Alert) Record {
	record := Record{
		ID:       raw.ID,
		DeviceID: raw.DeviceID,
		Type:     raw.Type,
		TS:       raw.TS,
		Created:  raw.Created,
		ImageURL: raw.Image,
		Region:   raw.Region,
		Params:   map[string]interface{}{},
	}

	if raw.Params == "" {
		return record
	}

	if err := json.Unmarshal([]byte(raw.Params), &record.Params); err != nil {
		partialErr := &client.PartialDataError{Field: "params", Err: err}
		log.Warn().Str("alert_id", raw.ID).Str("device_id", raw.DeviceID).Err(partialErr).Msg("Dropping malformed alert params")
		record.Params = map[string]interface{}{}
	}

	return record
}

// FilterByDevice - keeps only alerts belonging to the given device.
// The feed endpoint accepts a device_id query parameter but returns the whole
// account feed regardless, so filtering happens here and nowhere else.
func FilterByDevice(alerts []client.Alert, deviceID string) []client.Alert {
	filtered := make([]client.Alert, 0, len(alerts))
	for _, a := range alerts {
		if a.DeviceID == deviceID {
			filtered = append(filtered, a)
		}
	}

	return filtered
}

// SortByTimestamp - orders records newest first
func SortByTimestamp(records []Record) {
	sort.Slice(records, func(i, j int) bool {
		return records[i].TS > records[j].TS
	})
}

// FetchLatest - walks the timeline feed forward from since and returns up to
// count normalized records for the device, newest first. Pages advance past
// the highest timestamp seen; an empty page ends the walk.
func FetchLatest(ctx context.Context, pager Pager, deviceID string, since int64, count int) ([]Record, error) {
	var records []Record

	for page := 0; page < maxPages; page++ {
		alerts, err := pager.FetchAlertsPage(ctx, since, deviceID)
		if err != nil {
			return nil, err
		}

		if len(alerts) == 0 {
			break
		}

		maxTS := float64(since)
		for _, a := range alerts {
			if a.TS > maxTS {
				maxTS = a.TS
			}
		}

		for _, a := range FilterByDevice(alerts, deviceID) {
			records = append(records, Normalize(a))
		}

		next := int64(maxTS) + 1
		if next <= since {
			break
		}
		since = next
	}

	SortByTimestamp(records)

	if count > 0 && len(records) > count {
		records = records[:count]
	}

	return records, nil
}

// Attributes - flattens a record into primitive display attributes
func (r Record) Attributes() map[string]interface{} {
	return map[string]interface{}{
		"id":        r.ID,
		"device_id": r.DeviceID,
		"type":      r.Type,
		"ts":        r.TS,
		"created":   r.Created,
		"image_url": r.ImageURL,
		"region":    r.Region,
		"params":    r.Params,
	}
}
