package light

import (
	"encoding/json"
	"fmt"
)

// discoveryConfig is the Home Assistant MQTT discovery document describing
// this controller as a dimmable light. State and brightness share one topic;
// the value templates split the two-line payload (line 0 = state, line 1 =
// brightness).
type discoveryConfig struct {
	Name                    string          `json:"name"`
	UniqueID                string          `json:"unique_id"`
	StateTopic              string          `json:"state_topic"`
	CommandTopic            string          `json:"command_topic"`
	BrightnessStateTopic    string          `json:"brightness_state_topic"`
	BrightnessCommandTopic  string          `json:"brightness_command_topic"`
	BrightnessScale         int             `json:"brightness_scale"`
	StateValueTemplate      string          `json:"state_value_template"`
	BrightnessValueTemplate string          `json:"brightness_value_template"`
	PayloadOn               string          `json:"payload_on"`
	PayloadOff              string          `json:"payload_off"`
	Retain                  bool            `json:"retain"`
	Device                  discoveryDevice `json:"device"`
}

type discoveryDevice struct {
	Identifiers  []string `json:"identifiers"`
	Name         string   `json:"name"`
	Model        string   `json:"model"`
	Manufacturer string   `json:"manufacturer"`
}

// DiscoveryTopic is the retained config topic Home Assistant watches.
func (c *Controller) DiscoveryTopic() string {
	return fmt.Sprintf("homeassistant/light/%s/config", c.cfg.UniqueID)
}

// PublishDiscovery publishes the retained discovery document.
func (c *Controller) PublishDiscovery() error {
	doc := discoveryConfig{
		Name:                    c.cfg.DeviceName,
		UniqueID:                c.cfg.UniqueID,
		StateTopic:              c.StateTopic(),
		CommandTopic:            c.CommandTopic(),
		BrightnessStateTopic:    c.StateTopic(),
		BrightnessCommandTopic:  c.CommandTopic(),
		BrightnessScale:         255,
		StateValueTemplate:      "{{ value.split('\\n')[0] }}",
		BrightnessValueTemplate: "{{ value.split('\\n')[1] }}",
		PayloadOn:               "ON",
		PayloadOff:              "OFF",
		Retain:                  true,
		Device: discoveryDevice{
			Identifiers:  []string{c.cfg.UniqueID},
			Name:         c.cfg.DeviceName,
			Model:        "GP8413",
			Manufacturer: "DFRobot",
		},
	}

	payload, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal discovery config: %w", err)
	}
	return c.publisher.Publish(c.DiscoveryTopic(), 1, true, payload)
}
