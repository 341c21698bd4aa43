package mqtt

import (
	"encoding/json"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/nerrad567/homey-core/internal/device"
)

// Command actions accepted on Topics.DeviceCommand.
const (
	ActionToggle = "toggle"
	ActionAdjust = "adjust"
)

// Broker is the part of Client the device bridge needs.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler MessageHandler) error
	Unsubscribe(topic string) error
}

// Command is the payload of a device command message:
//
//	{"action":"toggle"}
//	{"action":"adjust","increase":true}
type Command struct {
	Action   string `json:"action"`
	Increase bool   `json:"increase,omitempty"`
}

// StateMessage is the retained payload published for each device.
type StateMessage struct {
	Device    device.Device `json:"device"`
	Change    string        `json:"change,omitempty"`
	Timestamp string        `json:"timestamp"`
}

// publishQueueSize bounds the state updates waiting for the broker.
// Updates beyond it are dropped so store mutations never wait on MQTT.
const publishQueueSize = 256

type stateUpdate struct {
	device device.Device
	change string
}

// DeviceBridge mirrors the device store onto MQTT and applies commands
// received from it.
//
// State publishes run on a goroutine of their own. The store listener only
// enqueues, so Toggle and Adjust return without waiting for the broker.
type DeviceBridge struct {
	broker Broker
	store  *device.Store
	qos    byte
	logger Logger

	mu          sync.Mutex
	unsubscribe func()
	queue       chan stateUpdate
	stop        chan struct{}
	done        chan struct{}
	started     bool

	dropped atomic.Int64
}

// NewDeviceBridge creates a bridge between broker and store.
func NewDeviceBridge(broker Broker, store *device.Store, qos byte, logger Logger) *DeviceBridge {
	return &DeviceBridge{broker: broker, store: store, qos: qos, logger: logger}
}

// Start queues every current device for publishing, then follows store
// changes and listens for commands.
func (b *DeviceBridge) Start() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.started {
		return nil
	}

	if err := b.broker.Subscribe(Topics{}.AllDeviceCommands(), b.qos, b.handleCommand); err != nil {
		return fmt.Errorf("subscribing to device commands: %w", err)
	}

	b.queue = make(chan stateUpdate, publishQueueSize)
	b.stop = make(chan struct{})
	b.done = make(chan struct{})
	go b.run(b.queue, b.stop, b.done)

	for _, d := range b.store.Snapshot().Devices() {
		b.enqueue(b.queue, stateUpdate{device: d})
	}

	queue := b.queue
	b.unsubscribe = b.store.Subscribe(func(c device.Change) {
		b.enqueue(queue, stateUpdate{device: c.Device, change: string(c.Kind)})
	})
	b.started = true
	return nil
}

// Stop detaches from the store and the command topic. Updates already
// queued are published before it returns.
func (b *DeviceBridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if !b.started {
		return
	}
	b.unsubscribe()
	if err := b.broker.Unsubscribe(Topics{}.AllDeviceCommands()); err != nil {
		b.warn("unsubscribing from device commands failed", "error", err)
	}
	close(b.stop)
	<-b.done
	b.started = false
}

// Dropped returns how many state updates were discarded because the
// publish queue was full.
func (b *DeviceBridge) Dropped() int {
	return int(b.dropped.Load())
}

func (b *DeviceBridge) enqueue(queue chan stateUpdate, u stateUpdate) {
	select {
	case queue <- u:
	default:
		b.dropped.Add(1)
		b.warn("device state queue full, dropping update", "device_id", u.device.ID)
	}
}

func (b *DeviceBridge) run(queue <-chan stateUpdate, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case u := <-queue:
			b.send(u)
		case <-stop:
			for {
				select {
				case u := <-queue:
					b.send(u)
				default:
					return
				}
			}
		}
	}
}

func (b *DeviceBridge) send(u stateUpdate) {
	if err := b.publish(u.device, u.change); err != nil {
		b.warn("device state publish failed", "device_id", u.device.ID, "error", err)
	}
}

func (b *DeviceBridge) publish(d device.Device, change string) error {
	payload, err := json.Marshal(StateMessage{
		Device:    d,
		Change:    change,
		Timestamp: nowRFC3339(),
	})
	if err != nil {
		return fmt.Errorf("marshalling device state: %w", err)
	}
	return b.broker.Publish(Topics{}.DeviceState(d.ID), payload, b.qos, true)
}

// handleCommand applies a command to the store. Unknown devices are
// ignored like they are on the dashboard.
func (b *DeviceBridge) handleCommand(topic string, payload []byte) error {
	id, ok := DeviceIDFromTopic(topic)
	if !ok {
		return fmt.Errorf("%w: unexpected topic %q", ErrInvalidCommand, topic)
	}

	var cmd Command
	if err := json.Unmarshal(payload, &cmd); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCommand, err)
	}

	switch cmd.Action {
	case ActionToggle:
		b.store.Toggle(id)
	case ActionAdjust:
		b.store.Adjust(id, cmd.Increase)
	default:
		return fmt.Errorf("%w: unknown action %q", ErrInvalidCommand, cmd.Action)
	}
	return nil
}

func (b *DeviceBridge) warn(msg string, args ...any) {
	if b.logger != nil {
		b.logger.Warn(msg, args...)
	}
}
