package sink

// Multi fans every message out to a set of publishers, so the message bus
// and the local preview tap both see the stream.
type Multi struct {
	publishers []Publisher
}

// NewMulti creates a fan-out publisher
func NewMulti(publishers ...Publisher) *Multi {
	return &Multi{publishers: publishers}
}

// Publish forwards the frame to every publisher in registration order
func (m *Multi) Publish(msg *ImageMessage) {
	for _, p := range m.publishers {
		p.Publish(msg)
	}
}

// PublishStreamClosed forwards the terminal event to every publisher
func (m *Multi) PublishStreamClosed(event *StreamClosed) {
	for _, p := range m.publishers {
		p.PublishStreamClosed(event)
	}
}

var _ Publisher = (*Multi)(nil)
