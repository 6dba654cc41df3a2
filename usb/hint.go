package usb

// HotplugAction is the kind of a hotplug notification.
type HotplugAction uint8

// Hotplug actions.
const (
	HotplugArrived HotplugAction = iota + 1
	HotplugLeft
)

// String returns "arrived" or "left".
func (a HotplugAction) String() string {
	switch a {
	case HotplugArrived:
		return "arrived"
	case HotplugLeft:
		return "left"
	default:
		return "unknown"
	}
}

// HotplugEvent is one arrival or departure of the target device.
type HotplugEvent struct {
	Action  HotplugAction
	DevPath string
}

// Hint is a best-effort source of hotplug notifications. It only shortens
// the wait between device scans; polling alone must reach the same state.
type Hint interface {
	// Poll returns notifications received since the previous call. It
	// never blocks.
	Poll() []HotplugEvent

	// Close releases the notification source.
	Close() error
}

// NopHint is a [Hint] that never reports anything.
type NopHint struct{}

// Poll returns nil.
func (NopHint) Poll() []HotplugEvent { return nil }

// Close returns nil.
func (NopHint) Close() error { return nil }

// Arrived reports whether events contains an arrival.
func Arrived(events []HotplugEvent) bool {
	for _, evt := range events {
		if evt.Action == HotplugArrived {
			return true
		}
	}
	return false
}
