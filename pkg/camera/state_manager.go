package camera

import (
	"sync"
	"time"
)

// Section - one sensor surface exposed per camera
type Section string

const (
	SectionBabyInfo     Section = "baby_info"
	SectionLastAlert    Section = "last_alert"
	SectionCameraState  Section = "camera_state"
	SectionSubscription Section = "subscription"
)

// Sections - all sensor surfaces, in publish order
var Sections = []Section{SectionBabyInfo, SectionLastAlert, SectionCameraState, SectionSubscription}

// SensorState - current value of a single sensor surface
type SensorState struct {
	State      string
	Attributes map[string]interface{}
	Available  bool
	UpdatedAt  time.Time
}

// Snapshot - all sensor surfaces of a single camera
type Snapshot map[Section]SensorState

// StateManager - holds per-device sensor snapshots in a thread safe manner.
// A failed poll only touches the section it was updating, so one camera's
// failure never affects another camera's sensors.
type StateManager struct {
	stateMutex sync.RWMutex
	byDevice   map[string]Snapshot

	subscribersMutex sync.RWMutex
	subscribers      map[int]func(deviceID string, section Section, state SensorState)
	nextSubscriberID int
}

// NewStateManager - state manager constructor
func NewStateManager() *StateManager {
	return &StateManager{
		byDevice:    make(map[string]Snapshot),
		subscribers: make(map[int]func(string, Section, SensorState)),
	}
}

// Update - stores a fresh sensor state and notifies subscribers
func (m *StateManager) Update(deviceID string, section Section, state SensorState) {
	if state.UpdatedAt.IsZero() {
		state.UpdatedAt = time.Now()
	}

	m.stateMutex.Lock()
	snapshot, ok := m.byDevice[deviceID]
	if !ok {
		snapshot = make(Snapshot)
		m.byDevice[deviceID] = snapshot
	}
	snapshot[section] = state
	m.stateMutex.Unlock()

	go m.notifySubscribers(deviceID, section, state)
}

// MarkUnavailable - flags a sensor surface as unavailable after a failed poll,
// keeping the last known attributes around as stale data
func (m *StateManager) MarkUnavailable(deviceID string, section Section) {
	m.stateMutex.Lock()
	snapshot, ok := m.byDevice[deviceID]
	if !ok {
		snapshot = make(Snapshot)
		m.byDevice[deviceID] = snapshot
	}

	state := snapshot[section]
	state.Available = false
	state.UpdatedAt = time.Now()
	snapshot[section] = state
	m.stateMutex.Unlock()

	go m.notifySubscribers(deviceID, section, state)
}

// Snapshot - returns a copy of all sensor surfaces for a device
func (m *StateManager) Snapshot(deviceID string) Snapshot {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()

	snapshot := make(Snapshot)
	for section, state := range m.byDevice[deviceID] {
		snapshot[section] = state
	}

	return snapshot
}

// DeviceIDs - returns all devices with at least one known sensor state
func (m *StateManager) DeviceIDs() []string {
	m.stateMutex.RLock()
	defer m.stateMutex.RUnlock()

	ids := make([]string, 0, len(m.byDevice))
	for id := range m.byDevice {
		ids = append(ids, id)
	}

	return ids
}

// Subscribe - registers a callback invoked on every sensor update.
// Returns an unsubscribe function.
func (m *StateManager) Subscribe(callback func(deviceID string, section Section, state SensorState)) func() {
	m.subscribersMutex.Lock()
	id := m.nextSubscriberID
	m.nextSubscriberID++
	m.subscribers[id] = callback
	m.subscribersMutex.Unlock()

	// Replay current state so late subscribers catch up
	m.stateMutex.RLock()
	for deviceID, snapshot := range m.byDevice {
		for section, state := range snapshot {
			go callback(deviceID, section, state)
		}
	}
	m.stateMutex.RUnlock()

	return func() {
		m.subscribersMutex.Lock()
		delete(m.subscribers, id)
		m.subscribersMutex.Unlock()
	}
}

func (m *StateManager) notifySubscribers(deviceID string, section Section, state SensorState) {
	m.subscribersMutex.RLock()
	defer m.subscribersMutex.RUnlock()

	for _, callback := range m.subscribers {
		go callback(deviceID, section, state)
	}
}
