package stream

// EventType identifies a notification exchanged between a stream and its sink
type EventType int

const (
	// EventFragment tells the feeder a fragment is free to fill
	EventFragment EventType = iota

	// EventQuit tells the feeder to exit. It travels on the same channel as
	// EventFragment so it is ordered after any demand already posted.
	EventQuit

	// EventFinished is sent by the stream, once per drain, when the source
	// is exhausted
	EventFinished
)

func (t EventType) String() string {
	switch t {
	case EventFragment:
		return "fragment"
	case EventQuit:
		return "quit"
	case EventFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Event is a notification on a sink's event channel
type Event struct {
	Type EventType
}

// Sink is the consumer side of a stream: a fixed pool of fragments the
// feeder fills on demand.
//
// The channel returned by Register must stay open until the feeder has
// received EventQuit. Post must deliver EventQuit even when the channel is
// busy. The stream never allocates fragments; Fragment hands one out (or nil
// when none is free) and Submit gives it back filled.
type Sink interface {
	Register() (<-chan Event, error)
	Fragment() []byte
	Submit(fragment []byte)
	Post(ev Event)
	Notify(ev Event)
}
