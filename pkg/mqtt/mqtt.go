// Package mqtt bridges camera snapshots to Home Assistant over MQTT
// auto-discovery. Sensors are announced on retained config topics; state and
// attribute payloads follow on every snapshot update.
package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	MQTT "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog/log"
	"github.com/tevino/abool"

	"github.com/cubohome/cubod/pkg/camera"
	"github.com/cubohome/cubod/pkg/utils"
)

// Connection - MQTT context
type Connection struct {
	Opts         Opts
	StateManager *camera.StateManager
	Devices      []Device

	connected *abool.AtomicBool
}

// NewConnection - constructor
func NewConnection(opts Opts) *Connection {
	if opts.TopicPrefix == "" {
		opts.TopicPrefix = "cubo"
	}
	if opts.DiscoveryPrefix == "" {
		opts.DiscoveryPrefix = "homeassistant"
	}
	if opts.ClientID == "" {
		opts.ClientID = "cubod"
	}

	return &Connection{
		Opts:      opts,
		connected: abool.New(),
	}
}

// Run - runs the MQTT bridge until the context is cancelled, reconnecting
// with increasing cooldowns after broker failures
func (conn *Connection) Run(devices []Device, manager *camera.StateManager, ctx utils.GracefulContext) {
	conn.Devices = devices
	conn.StateManager = manager

	utils.RunWithPerseverance(func(attempt utils.AttemptContext) {
		if err := conn.runMqtt(attempt); err != nil {
			attempt.Fail(err)
		}
	}, ctx, utils.PerseverenceOpts{
		RunnerID:       "mqtt",
		ResetThreshold: 2 * time.Second,
		Cooldown: []time.Duration{
			2 * time.Second,
			10 * time.Second,
			1 * time.Minute,
		},
	})
}

func (conn *Connection) runMqtt(attempt utils.GracefulContext) error {
	opts := MQTT.NewClientOptions()
	opts.AddBroker(conn.Opts.BrokerURL)
	opts.SetClientID(conn.Opts.ClientID)
	opts.SetUsername(conn.Opts.Username)
	opts.SetPassword(conn.Opts.Password)
	opts.SetCleanSession(false)
	opts.SetWill(conn.availabilityTopic(), "offline", 1, true)

	client := MQTT.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		log.Error().Str("broker_url", conn.Opts.BrokerURL).Err(token.Error()).Msg("Unable to connect to MQTT broker")
		return token.Error()
	}

	conn.connected.Set()
	log.Info().Str("broker_url", conn.Opts.BrokerURL).Msg("Successfully connected to MQTT broker")

	conn.publish(client, conn.availabilityTopic(), "online", true)
	conn.publishDiscovery(client)

	// Home Assistant re-announces itself on restart; discovery has to follow
	birthTopic := conn.Opts.DiscoveryPrefix + "/status"
	client.Subscribe(birthTopic, 1, func(_ MQTT.Client, msg MQTT.Message) {
		if string(msg.Payload()) == "online" {
			log.Info().Msg("Home Assistant came online, re-publishing discovery")
			conn.publishDiscovery(client)
		}
	})

	unsubscribe := conn.StateManager.Subscribe(func(deviceID string, section camera.Section, state camera.SensorState) {
		conn.publishSensor(client, deviceID, section, state)
	})

	<-attempt.Done()

	log.Debug().Msg("Closing MQTT connection on interrupt")
	unsubscribe()
	conn.publish(client, conn.availabilityTopic(), "offline", true)
	conn.connected.UnSet()
	client.Disconnect(250)
	return nil
}

// IsConnected - true while a broker connection is established
func (conn *Connection) IsConnected() bool {
	return conn.connected.IsSet()
}

func (conn *Connection) publishDiscovery(client MQTT.Client) {
	for _, device := range conn.Devices {
		deviceBlock := map[string]interface{}{
			"identifiers":  []string{fmt.Sprintf("cubo_%v", device.DeviceID)},
			"name":         fmt.Sprintf("Cubo %v", device.BabyName),
			"manufacturer": "CuboAI",
			"model":        "Smart Baby Monitor",
		}

		availability := map[string]interface{}{
			"topic": conn.availabilityTopic(),
		}

		for _, section := range camera.Sections {
			component := "sensor"
			payload := map[string]interface{}{
				"name":                  fmt.Sprintf("Cubo %v %v", device.BabyName, sensorName(section)),
				"unique_id":             fmt.Sprintf("cubo_%v_%v", device.DeviceID, section),
				"state_topic":           conn.stateTopic(device.DeviceID, section),
				"json_attributes_topic": conn.attributesTopic(device.DeviceID, section),
				"device":                deviceBlock,
				"availability":          availability,
			}

			if section == camera.SectionCameraState {
				component = "binary_sensor"
				payload["device_class"] = "connectivity"
				payload["payload_on"] = "ON"
				payload["payload_off"] = "OFF"
			}

			data, err := json.Marshal(payload)
			if err != nil {
				log.Error().Str("device_id", device.DeviceID).Str("section", string(section)).Err(err).Msg("Unable to marshal discovery config")
				continue
			}

			topic := fmt.Sprintf("%v/%v/cubo_%v/%v/config", conn.Opts.DiscoveryPrefix, component, device.DeviceID, section)
			conn.publish(client, topic, string(data), true)
		}
	}
}

func (conn *Connection) publishSensor(client MQTT.Client, deviceID string, section camera.Section, state camera.SensorState) {
	if !conn.connected.IsSet() {
		return
	}

	value := state.State
	if section == camera.SectionCameraState {
		value = "OFF"
		if state.State == "online" {
			value = "ON"
		}
	}
	if !state.Available {
		value = "unavailable"
	}

	conn.publish(client, conn.stateTopic(deviceID, section), value, true)

	if state.Attributes != nil {
		data, err := json.Marshal(state.Attributes)
		if err != nil {
			log.Error().Str("device_id", deviceID).Str("section", string(section)).Err(err).Msg("Unable to marshal sensor attributes")
			return
		}

		conn.publish(client, conn.attributesTopic(deviceID, section), string(data), true)
	}
}

func (conn *Connection) publish(client MQTT.Client, topic string, payload string, retained bool) {
	token := client.Publish(topic, 0, retained, payload)
	if token.Wait(); token.Error() != nil {
		log.Error().Str("topic", topic).Err(token.Error()).Msg("Unable to publish MQTT message")
	}
}

func (conn *Connection) availabilityTopic() string {
	return fmt.Sprintf("%v/status", conn.Opts.TopicPrefix)
}

func (conn *Connection) stateTopic(deviceID string, section camera.Section) string {
	return fmt.Sprintf("%v/cameras/%v/%v/state", conn.Opts.TopicPrefix, deviceID, section)
}

func (conn *Connection) attributesTopic(deviceID string, section camera.Section) string {
	return fmt.Sprintf("%v/cameras/%v/%v/attributes", conn.Opts.TopicPrefix, deviceID, section)
}

func sensorName(section camera.Section) string {
	switch section {
	case camera.SectionBabyInfo:
		return "Baby Info"
	case camera.SectionLastAlert:
		return "Last Alert"
	case camera.SectionCameraState:
		return "Camera"
	case camera.SectionSubscription:
		return "Subscription"
	default:
		return string(section)
	}
}
