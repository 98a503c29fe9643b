package hub

// Event names of the relay's wire contract.
const (
	EventFinal        = "final"
	EventIntermediate = "intermediate"
	EventTranslated   = "translated"
	EventHTMLFragment = "html_fragment"
	EventDemo         = "demo"
	EventExit         = "exit"
)

// HandlerFunc handles one event inside the hub loop.
type HandlerFunc func(event Event)

// Dispatcher routes events by name. A handler registered for a name always
// wins; every other name goes to the wildcard handler.
type Dispatcher struct {
	handlers map[string]HandlerFunc
	wildcard HandlerFunc
}

func NewDispatcher(wildcard HandlerFunc) *Dispatcher {
	return &Dispatcher{
		handlers: make(map[string]HandlerFunc),
		wildcard: wildcard,
	}
}

// Handle registers h for events called name.
func (d *Dispatcher) Handle(name string, h HandlerFunc) {
	d.handlers[name] = h
}

// IsControl reports whether name has a dedicated handler.
func (d *Dispatcher) IsControl(name string) bool {
	_, ok := d.handlers[name]
	return ok
}

func (d *Dispatcher) Dispatch(event Event) {
	if h, ok := d.handlers[event.Name]; ok {
		h(event)
		return
	}
	if d.wildcard != nil {
		d.wildcard(event)
	}
}
