// Package light exposes the fade engine as a dimmable Home Assistant light:
// it maps brightness commands to target voltages, tracks on/off state, and
// publishes retained state and discovery documents over the transport.
package light

import (
	"strconv"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"

	"voltlight/logger"
	"voltlight/utils"
)

// Fader converges the physical output toward a voltage asynchronously.
type Fader interface {
	RequestTarget(voltage float64)
}

// Publisher sends a payload to a transport topic.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload []byte) error
}

// State is the externally visible light state. The effective target voltage
// is derived from it, never stored.
type State struct {
	IsOn       bool
	Brightness int
}

// Config carries the identity and range of the exposed light.
type Config struct {
	Span       float64
	BaseTopic  string
	DeviceName string
	UniqueID   string
}

// Controller owns the light state and translates transport commands into fade
// requests. Command delivery and the ramp worker run on different goroutines;
// everything funnels through the controller mutex and the engine's own lock.
type Controller struct {
	fader     Fader
	publisher Publisher
	cfg       Config
	log       *logrus.Logger

	mu    sync.Mutex
	state State
}

func NewController(fader Fader, publisher Publisher, cfg Config) *Controller {
	cfg.BaseTopic = strings.TrimRight(cfg.BaseTopic, "/")
	return &Controller{
		fader:     fader,
		publisher: publisher,
		cfg:       cfg,
		log:       logger.GetProjectLogger(),
		// matches a freshly powered device: off, full brightness remembered
		state: State{IsOn: false, Brightness: 255},
	}
}

// StateTopic is where retained state payloads are published.
func (c *Controller) StateTopic() string {
	return c.cfg.BaseTopic + "/state"
}

// CommandTopic is where the transport should deliver commands from.
func (c *Controller) CommandTopic() string {
	return c.cfg.BaseTopic + "/set"
}

// OnReady publishes the retained discovery document and the current state.
// The transport calls it once per established connection.
func (c *Controller) OnReady() {
	if err := c.PublishDiscovery(); err != nil {
		c.log.WithError(err).Error("failed to publish discovery config")
	}
	c.refresh()
}

// OnCommand applies a raw command payload from the transport.
func (c *Controller) OnCommand(payload []byte) {
	c.Apply(payload)
}

// Apply decodes and applies an external command. Payloads are either a bare
// integer brightness ("0" means off) or a two-line "<STATE>\n<BRIGHTNESS>"
// form with an optional brightness line. Parsing is lenient: an unparsable
// brightness falls back to the last known value rather than rejecting the
// whole command.
func (c *Controller) Apply(payload []byte) {
	text := strings.TrimSpace(string(payload))

	if n, err := strconv.Atoi(text); err == nil {
		// brightness-only command, e.g. from a dashboard slider
		if n <= 0 {
			c.Set(false, 0)
		} else {
			c.Set(true, n)
		}
		return
	}

	lines := strings.SplitN(text, "\n", 2)
	stateToken := strings.ToUpper(strings.TrimSpace(lines[0]))

	brightness := -1
	if len(lines) > 1 {
		if v, err := strconv.Atoi(strings.TrimSpace(lines[1])); err == nil {
			brightness = v
		}
	}

	switch stateToken {
	case "ON":
		c.Set(true, brightness)
	case "OFF":
		c.Set(false, 0)
	default:
		c.log.WithField("payload", text).Warn("unrecognized command state token")
		c.refresh()
	}
}

// Set applies a state transition, starts the fade toward its voltage, and
// republishes retained state. Every accepted command republishes, even a
// redundant one, because discovery consumers rely on a fresh retained publish
// per command.
//
// The mutex is held across the state mutation, the fade request, and the
// publish. The transport delivers commands on concurrent goroutines, so the
// triple has to be atomic: otherwise two racing commands could leave the
// fade engine converging to the loser while state says the winner. A negative
// brightness on an ON command means "use the last known level", resolved under
// the same lock.
func (c *Controller) Set(on bool, brightness int) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on {
		if brightness < 0 {
			if c.state.Brightness > 0 {
				brightness = c.state.Brightness
			} else {
				brightness = 255
			}
		}
		c.state.IsOn = true
		c.state.Brightness = utils.Clamp(brightness, 0, 255)
	} else {
		c.state.IsOn = false
		c.state.Brightness = 0
	}

	c.fader.RequestTarget(c.targetVoltage(c.state))
	c.publishState(c.state)

	c.log.WithFields(logrus.Fields{
		"state":      stateToken(c.state),
		"brightness": c.state.Brightness,
	}).Info("light set")
}

// State returns a copy of the current light state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// refresh re-requests the current target and republishes state without
// changing anything. Held under the same lock as Set so it cannot interleave
// with a concurrent command.
func (c *Controller) refresh() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.fader.RequestTarget(c.targetVoltage(c.state))
	c.publishState(c.state)
}

func (c *Controller) targetVoltage(s State) float64 {
	if s.IsOn && s.Brightness > 0 {
		return BrightnessToVoltage(s.Brightness, c.cfg.Span)
	}
	return 0.0
}

func (c *Controller) publishState(s State) {
	payload := stateToken(s)
	if s.IsOn && s.Brightness > 0 {
		payload += "\n" + strconv.Itoa(s.Brightness)
	}
	if err := c.publisher.Publish(c.StateTopic(), 0, true, []byte(payload)); err != nil {
		c.log.WithError(err).Warn("failed to publish state")
	}
}

func stateToken(s State) string {
	if s.IsOn && s.Brightness > 0 {
		return "ON"
	}
	return "OFF"
}
