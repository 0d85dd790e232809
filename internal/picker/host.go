// Package picker ties the mark store, the overlay renderer and the dispatch
// protocol to a media player host. All state is owned by one goroutine; see
// Controller.Run.
package picker

import (
	"context"
	"time"

	"github.com/mtpick/timepicker/internal/overlay"
	"github.com/mtpick/timepicker/internal/playback"
)

// Host is the player surface the controller drives.
type Host interface {
	overlay.Backend

	TimePos(ctx context.Context) (float64, error)
	Geometry(ctx context.Context) (playback.Geometry, error)
	MediaPath(ctx context.Context) (string, error)
	ExpandPath(ctx context.Context, path string) (string, error)

	// KeepOpen stops the player from tearing the session down at end of file.
	KeepOpen(ctx context.Context) error
	ShowText(ctx context.Context, text string, d time.Duration) error

	// BindMessage makes key send message back to this client.
	BindMessage(ctx context.Context, key, message string) error

	LoadScript(ctx context.Context, path string) error
	ScriptMessageTo(ctx context.Context, target string, args ...string) error
}

// Message names the host delivers as the first argument of a message event.
const (
	MsgPick      = "mtp:pick"
	MsgRemove    = "mtp:remove"
	MsgClear     = "mtp:clear"
	MsgRun       = "mtp:run"
	MsgRunScript = "mtp:run-script"
)

type EventKind int

const (
	EventMessage EventKind = iota
	EventTimeChanged
	EventGeometryChanged
	EventFileLoaded
	EventShutdown
)

func (k EventKind) String() string {
	switch k {
	case EventMessage:
		return "message"
	case EventTimeChanged:
		return "time-changed"
	case EventGeometryChanged:
		return "geometry-changed"
	case EventFileLoaded:
		return "file-loaded"
	case EventShutdown:
		return "shutdown"
	default:
		return "unknown"
	}
}

// Event is a host notification. Args is only set for EventMessage.
type Event struct {
	Kind EventKind
	Args []string
}

// Bindings maps gestures to keys. An empty key leaves the gesture unbound.
type Bindings struct {
	Pick   string
	Remove string
	Clear  string
}

// Observer is told about every change to the mark set. It is called on the
// controller goroutine and must not block.
type Observer interface {
	MarksChanged(times []float64)
}
