package transcript

import "context"

// Fragment is one recognition result inside an event.
type Fragment struct {
	Text  string
	Final bool
}

// Event is one delivery from a listening segment. A non-empty Err ends the
// segment.
type Event struct {
	Fragments []Fragment
	Err       ErrorCode
}

// Options configures a platform recognizer. A recognizer is built once per
// distinct Options value.
type Options struct {
	Language        string
	Continuous      bool
	InterimResults  bool
	MaxAlternatives int
}

// Recognizer is a platform streaming recognizer. Start begins one segment and
// returns the channel its events arrive on; the channel is closed when the
// segment ends. Stop is advisory and the segment may still deliver a final
// event afterwards. Abort tears the recognizer down for good.
type Recognizer interface {
	Start(ctx context.Context) (<-chan Event, error)
	Stop()
	Abort()
}

// Capability probes for and builds platform recognizers.
type Capability interface {
	Supported() bool
	NewRecognizer(Options) (Recognizer, error)
}

// Unsupported is the capability of a system without speech recognition.
type Unsupported struct{}

func (Unsupported) Supported() bool { return false }

func (Unsupported) NewRecognizer(Options) (Recognizer, error) { return nil, ErrUnsupported }
