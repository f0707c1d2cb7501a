package events

// Delivery declares when a channel wants its events.
type Delivery int

const (
	// Immediate channels get each event as it is emitted.
	Immediate Delivery = iota
	// Buffered channels get every event replayed, in order, at Finalize.
	Buffered
)

// Channel observes a run. Each method receives the full event; Log covers
// debug, info, warn and error. Implementations embed Base and override what
// they need.
type Channel interface {
	Initialize(ev Event) error
	StartServer(ev Event) error
	EndServer(ev Event) error
	Log(ev Event) error
	Finalize(ev Event) error
	Delivery() Delivery
	Close() error
}

// Base is a Channel that does nothing and asks for immediate delivery.
type Base struct{}

var _ Channel = Base{}

func (Base) Initialize(Event) error  { return nil }
func (Base) StartServer(Event) error { return nil }
func (Base) EndServer(Event) error   { return nil }
func (Base) Log(Event) error         { return nil }
func (Base) Finalize(Event) error    { return nil }
func (Base) Delivery() Delivery      { return Immediate }
func (Base) Close() error            { return nil }

// dispatch routes ev to the matching Channel method.
func dispatch(ch Channel, ev Event) error {
	switch ev.Kind {
	case KindInitialize:
		return ch.Initialize(ev)
	case KindStartServer:
		return ch.StartServer(ev)
	case KindEndServer:
		return ch.EndServer(ev)
	case KindFinalize:
		return ch.Finalize(ev)
	default:
		return ch.Log(ev)
	}
}
