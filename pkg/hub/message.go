// Package hub is a websocket broadcast hub with channel-based fan-out.
// The booth runs two hubs: a JSON status feed and a binary preview feed.
package hub

// MessageKind selects the websocket frame type.
type MessageKind int

const (
	// KindJSON is a JSON-encoded text frame.
	KindJSON MessageKind = iota
	// KindBinary is a raw binary frame (JPEG previews).
	KindBinary
)

// Message is one outbound broadcast.
type Message struct {
	Kind MessageKind
	Data []byte
}

// JSON wraps pre-encoded JSON bytes.
func JSON(data []byte) Message {
	return Message{Kind: KindJSON, Data: data}
}

// Binary wraps raw bytes.
func Binary(data []byte) Message {
	return Message{Kind: KindBinary, Data: data}
}
