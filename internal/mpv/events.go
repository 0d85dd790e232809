package mpv

import (
	"context"

	"github.com/mtpick/timepicker/internal/picker"
)

// Translate maps an mpv event to the picker event it triggers. Events the
// picker does not care about report false.
func Translate(ev Event) (picker.Event, bool) {
	switch ev.Name {
	case "client-message":
		if len(ev.Args) == 0 {
			return picker.Event{}, false
		}
		return picker.Event{Kind: picker.EventMessage, Args: ev.Args}, true
	case "property-change":
		switch ev.Prop {
		case "time-pos":
			return picker.Event{Kind: picker.EventTimeChanged}, true
		case "osd-dimensions", "fullscreen":
			return picker.Event{Kind: picker.EventGeometryChanged}, true
		}
	case "file-loaded":
		return picker.Event{Kind: picker.EventFileLoaded}, true
	case "shutdown":
		return picker.Event{Kind: picker.EventShutdown}, true
	}
	return picker.Event{}, false
}

// Forward translates events from in onto the returned channel until in is
// closed or ctx is done. A lost connection is delivered as a shutdown.
func Forward(ctx context.Context, in <-chan Event) <-chan picker.Event {
	out := make(chan picker.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-in:
				if !ok {
					select {
					case out <- picker.Event{Kind: picker.EventShutdown}:
					case <-ctx.Done():
					}
					return
				}
				pe, ok := Translate(ev)
				if !ok {
					continue
				}
				select {
				case out <- pe:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}
