package playback

import "sync"

// Status is the playback state of a resource.
type Status int

const (
	StatusIdle Status = iota
	StatusPlaying
	StatusPaused
)

func (s Status) String() string {
	switch s {
	case StatusPlaying:
		return "playing"
	case StatusPaused:
		return "paused"
	default:
		return "idle"
	}
}

// Event drives a Machine.
type Event int

const (
	EventStart Event = iota
	EventPause
	EventResume
	EventEnd
	EventError
	EventStop
)

func (e Event) String() string {
	switch e {
	case EventStart:
		return "start"
	case EventPause:
		return "pause"
	case EventResume:
		return "resume"
	case EventEnd:
		return "end"
	case EventError:
		return "error"
	case EventStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Pairs missing from the table leave the state unchanged.
var transitions = map[Status]map[Event]Status{
	StatusIdle: {
		EventStart: StatusPlaying,
	},
	StatusPlaying: {
		EventPause: StatusPaused,
		EventEnd:   StatusIdle,
		EventError: StatusIdle,
		EventStop:  StatusIdle,
	},
	StatusPaused: {
		EventResume: StatusPlaying,
		EventStart:  StatusPlaying,
		EventEnd:    StatusIdle,
		EventError:  StatusIdle,
		EventStop:   StatusIdle,
	},
}

// Next returns the state reached from s on e and whether e applied.
func Next(s Status, e Event) (Status, bool) {
	if to, ok := transitions[s][e]; ok {
		return to, true
	}
	return s, false
}

// Transition describes one applied state change.
type Transition struct {
	From  Status
	To    Status
	Event Event
}

// Machine is a thread-safe playback state holder.
type Machine struct {
	mu       sync.Mutex
	status   Status
	observer func(Transition)
}

// NewMachine starts idle. observer, when set, runs after every applied
// transition without the machine lock held.
func NewMachine(observer func(Transition)) *Machine {
	return &Machine{observer: observer}
}

func (m *Machine) Fire(e Event) (Status, bool) {
	m.mu.Lock()
	from := m.status
	to, ok := Next(from, e)
	m.status = to
	m.mu.Unlock()

	if ok && m.observer != nil {
		m.observer(Transition{From: from, To: to, Event: e})
	}
	return to, ok
}

func (m *Machine) Status() Status {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

// Reset forces the machine back to idle without notifying the observer.
func (m *Machine) Reset() {
	m.mu.Lock()
	m.status = StatusIdle
	m.mu.Unlock()
}
