package light

import (
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFader struct {
	targets []float64
}

func (f *fakeFader) RequestTarget(v float64) {
	f.targets = append(f.targets, v)
}

func (f *fakeFader) last() float64 {
	if len(f.targets) == 0 {
		return -1
	}
	return f.targets[len(f.targets)-1]
}

type publishRecord struct {
	topic    string
	qos      byte
	retained bool
	payload  string
}

type fakePublisher struct {
	records []publishRecord
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload []byte) error {
	p.records = append(p.records, publishRecord{topic, qos, retained, string(payload)})
	return nil
}

func (p *fakePublisher) last() publishRecord {
	return p.records[len(p.records)-1]
}

func newTestController() (*Controller, *fakeFader, *fakePublisher) {
	fader := &fakeFader{}
	pub := &fakePublisher{}
	ctrl := NewController(fader, pub, Config{
		Span:       10.0,
		BaseTopic:  "homeassistant/light/gp8413",
		DeviceName: "GP8413 Light",
		UniqueID:   "gp8413_light",
	})
	return ctrl, fader, pub
}

func TestApplyTwoLineCommand(t *testing.T) {
	t.Parallel()

	ctrl, fader, pub := newTestController()
	ctrl.Apply([]byte("ON\n128"))

	assert.InDelta(t, 5.5, fader.last(), 1e-9)
	assert.Equal(t, State{IsOn: true, Brightness: 128}, ctrl.State())

	require.Len(t, pub.records, 1)
	assert.Equal(t, "homeassistant/light/gp8413/state", pub.last().topic)
	assert.Equal(t, "ON\n128", pub.last().payload)
	assert.True(t, pub.last().retained)
}

func TestApplyStateTokenIsCaseInsensitive(t *testing.T) {
	t.Parallel()

	ctrl, fader, _ := newTestController()
	ctrl.Apply([]byte("on\n10"))
	assert.True(t, ctrl.State().IsOn)
	assert.InDelta(t, BrightnessToVoltage(10, 10.0), fader.last(), 1e-9)

	ctrl.Apply([]byte("off"))
	assert.False(t, ctrl.State().IsOn)
	assert.Equal(t, 0.0, fader.last())
}

func TestApplyOffPublishesBareState(t *testing.T) {
	t.Parallel()

	ctrl, fader, pub := newTestController()
	ctrl.Apply([]byte("ON\n200"))
	ctrl.Apply([]byte("OFF"))

	assert.Equal(t, 0.0, fader.last())
	assert.Equal(t, "OFF", pub.last().payload)
	assert.Equal(t, State{IsOn: false, Brightness: 0}, ctrl.State())
}

func TestApplyBareIntegerBrightness(t *testing.T) {
	t.Parallel()

	ctrl, fader, pub := newTestController()
	ctrl.Apply([]byte("200"))

	assert.Equal(t, State{IsOn: true, Brightness: 200}, ctrl.State())
	assert.InDelta(t, BrightnessToVoltage(200, 10.0), fader.last(), 1e-9)
	assert.Equal(t, "ON\n200", pub.last().payload)
}

func TestApplyBareZeroTurnsOff(t *testing.T) {
	t.Parallel()

	ctrl, fader, pub := newTestController()
	ctrl.Apply([]byte("128"))
	ctrl.Apply([]byte("0"))

	assert.Equal(t, State{IsOn: false, Brightness: 0}, ctrl.State())
	assert.Equal(t, 0.0, fader.last())
	assert.Equal(t, "OFF", pub.last().payload)
}

// A redundant brightness command while already on still republishes retained
// state; discovery consumers depend on a fresh publish per command.
func TestApplyRedundantCommandRepublishes(t *testing.T) {
	t.Parallel()

	ctrl, _, pub := newTestController()
	ctrl.Apply([]byte("128"))
	ctrl.Apply([]byte("128"))

	require.Len(t, pub.records, 2)
	assert.Equal(t, pub.records[0].payload, pub.records[1].payload)
}

func TestApplyOnWithoutBrightnessUsesLastKnown(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController()
	ctrl.Apply([]byte("ON\n100"))
	ctrl.Apply([]byte("ON"))

	assert.Equal(t, State{IsOn: true, Brightness: 100}, ctrl.State())
}

func TestApplyOnWithoutBrightnessDefaultsToFull(t *testing.T) {
	t.Parallel()

	ctrl, fader, _ := newTestController()

	// force the remembered brightness to zero first
	ctrl.Apply([]byte("OFF"))
	ctrl.Apply([]byte("ON"))

	assert.Equal(t, State{IsOn: true, Brightness: 255}, ctrl.State())
	assert.Equal(t, 10.0, fader.last())
}

// Unparsable brightness falls back to the default-brightness rule instead of
// rejecting the whole command.
func TestApplyUnparsableBrightnessFallsBack(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController()
	ctrl.Apply([]byte("ON\nbanana"))
	assert.Equal(t, State{IsOn: true, Brightness: 255}, ctrl.State())

	ctrl.Apply([]byte("ON\n42"))
	ctrl.Apply([]byte("ON\n??"))
	assert.Equal(t, State{IsOn: true, Brightness: 42}, ctrl.State())
}

func TestApplyUnknownTokenKeepsStateAndRepublishes(t *testing.T) {
	t.Parallel()

	ctrl, fader, pub := newTestController()
	ctrl.Apply([]byte("ON\n77"))
	before := ctrl.State()

	ctrl.Apply([]byte("TOGGLE"))

	assert.Equal(t, before, ctrl.State())
	assert.Equal(t, BrightnessToVoltage(77, 10.0), fader.last())
	assert.Equal(t, "ON\n77", pub.last().payload)
}

func TestBrightnessOutOfRangeIsClamped(t *testing.T) {
	t.Parallel()

	ctrl, _, _ := newTestController()
	ctrl.Apply([]byte("ON\n999"))
	assert.Equal(t, 255, ctrl.State().Brightness)
}

func TestOnReadyPublishesDiscoveryThenState(t *testing.T) {
	t.Parallel()

	ctrl, _, pub := newTestController()
	ctrl.OnReady()

	require.Len(t, pub.records, 2)
	assert.Equal(t, "homeassistant/light/gp8413_light/config", pub.records[0].topic)
	assert.Equal(t, "homeassistant/light/gp8413/state", pub.records[1].topic)
	assert.Equal(t, "OFF", pub.records[1].payload)
	assert.True(t, pub.records[0].retained)
}

func TestDiscoveryDocument(t *testing.T) {
	t.Parallel()

	ctrl, _, pub := newTestController()
	require.NoError(t, ctrl.PublishDiscovery())

	var doc map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(pub.last().payload), &doc))

	assert.Equal(t, "GP8413 Light", doc["name"])
	assert.Equal(t, "gp8413_light", doc["unique_id"])
	assert.Equal(t, "homeassistant/light/gp8413/state", doc["state_topic"])
	assert.Equal(t, "homeassistant/light/gp8413/set", doc["command_topic"])
	assert.Equal(t, doc["state_topic"], doc["brightness_state_topic"])
	assert.Equal(t, float64(255), doc["brightness_scale"])
	assert.Equal(t, `{{ value.split('\n')[0] }}`, doc["state_value_template"])
	assert.Equal(t, `{{ value.split('\n')[1] }}`, doc["brightness_value_template"])

	device, ok := doc["device"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "GP8413", device["model"])
	assert.Equal(t, "DFRobot", device["manufacturer"])
}

// stallingFader delays non-zero fade requests, widening the window in which
// a racing command could slip in between state mutation and fade request.
type stallingFader struct {
	mu      sync.Mutex
	targets []float64
}

func (f *stallingFader) RequestTarget(v float64) {
	if v > 0 {
		time.Sleep(50 * time.Millisecond)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.targets = append(f.targets, v)
}

func (f *stallingFader) last() float64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.targets) == 0 {
		return -1
	}
	return f.targets[len(f.targets)-1]
}

// The transport delivers commands on concurrent goroutines, so a command's
// state change and its fade request must be atomic: the final fade target has
// to belong to the final state, never to a superseded command.
func TestConcurrentCommandsLeaveTargetMatchingState(t *testing.T) {
	t.Parallel()

	fader := &stallingFader{}
	ctrl := NewController(fader, &fakePublisher{}, Config{
		Span:      10.0,
		BaseTopic: "home/dac",
	})

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		ctrl.Apply([]byte("200"))
	}()
	time.Sleep(10 * time.Millisecond)
	ctrl.Apply([]byte("0"))
	wg.Wait()

	assert.Equal(t, State{IsOn: false, Brightness: 0}, ctrl.State())
	assert.Equal(t, 0.0, fader.last(), "fade target belongs to a superseded command")
}

func TestBaseTopicTrailingSlashIsTrimmed(t *testing.T) {
	t.Parallel()

	ctrl := NewController(&fakeFader{}, &fakePublisher{}, Config{
		Span:      10.0,
		BaseTopic: "home/dac/",
	})
	assert.Equal(t, "home/dac/state", ctrl.StateTopic())
	assert.Equal(t, "home/dac/set", ctrl.CommandTopic())
}
