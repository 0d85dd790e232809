package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"os"
	"path/filepath"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/mtpick/timepicker/internal/logging"
	"github.com/mtpick/timepicker/internal/picker"
)

type request struct {
	Command   json.RawMessage `json:"command"`
	RequestID int64           `json:"request_id"`
}

// fakeMPV answers requests with handler and lets tests push events.
type fakeMPV struct {
	t       *testing.T
	ln      net.Listener
	path    string
	handler func(cmd []any) (any, string)

	mu       sync.Mutex
	conn     net.Conn
	commands []json.RawMessage
	ready    chan struct{}
}

func newFakeMPV(t *testing.T, handler func(cmd []any) (any, string)) *fakeMPV {
	t.Helper()
	dir, err := os.MkdirTemp("", "mpv")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	path := filepath.Join(dir, "ipc.sock")
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	f := &fakeMPV{t: t, ln: ln, path: path, handler: handler, ready: make(chan struct{})}
	go f.serve()
	return f
}

func (f *fakeMPV) serve() {
	conn, err := f.ln.Accept()
	if err != nil {
		return
	}
	f.mu.Lock()
	f.conn = conn
	f.mu.Unlock()
	close(f.ready)

	scanner := bufio.NewScanner(conn)
	for scanner.Scan() {
		var req request
		if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
			continue
		}
		f.mu.Lock()
		f.commands = append(f.commands, append(json.RawMessage(nil), req.Command...))
		f.mu.Unlock()

		var cmd []any
		json.Unmarshal(req.Command, &cmd)

		data, status := any(nil), "success"
		if f.handler != nil {
			data, status = f.handler(cmd)
		}
		f.write(map[string]any{"error": status, "data": data, "request_id": req.RequestID})
	}
}

func (f *fakeMPV) write(v any) {
	line, _ := json.Marshal(v)
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.Write(append(line, '\n'))
}

func (f *fakeMPV) push(v any) {
	<-f.ready
	f.write(v)
}

func (f *fakeMPV) hangUp() {
	<-f.ready
	f.mu.Lock()
	defer f.mu.Unlock()
	f.conn.Close()
}

func (f *fakeMPV) sent() []json.RawMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]json.RawMessage(nil), f.commands...)
}

func dialFake(t *testing.T, f *fakeMPV) *Client {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	c, err := Dial(ctx, f.path, logging.Discard())
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	t.Cleanup(func() { c.Close() })
	return c
}

func testCtx(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestClient_CommandReply(t *testing.T) {
	f := newFakeMPV(t, func(cmd []any) (any, string) {
		if cmd[0] == "get_property" && cmd[1] == "time-pos" {
			return 12.5, "success"
		}
		return nil, "property unavailable"
	})
	c := dialFake(t, f)

	data, err := c.Command(testCtx(t), "get_property", "time-pos")
	if err != nil {
		t.Fatalf("Command() error = %v", err)
	}
	if string(data) != "12.5" {
		t.Errorf("data = %s, want 12.5", data)
	}

	_, err = c.Command(testCtx(t), "get_property", "nope")
	var cmdErr *CommandError
	if !errors.As(err, &cmdErr) {
		t.Fatalf("error = %v, want *CommandError", err)
	}
	if cmdErr.Command != "get_property" || cmdErr.Err != "property unavailable" {
		t.Errorf("CommandError = %+v", cmdErr)
	}
}

func TestClient_ConcurrentCommands(t *testing.T) {
	f := newFakeMPV(t, func(cmd []any) (any, string) {
		return cmd[1], "success"
	})
	c := dialFake(t, f)
	ctx := testCtx(t)

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			want := float64(i)
			data, err := c.Command(ctx, "echo", want)
			if err != nil {
				t.Errorf("Command(%d) error = %v", i, err)
				return
			}
			var got float64
			json.Unmarshal(data, &got)
			if got != want {
				t.Errorf("Command(%d) got reply %v", i, got)
			}
		}(i)
	}
	wg.Wait()
}

func TestClient_EventsQueuedInOrder(t *testing.T) {
	f := newFakeMPV(t, nil)
	c := dialFake(t, f)

	for i := 1; i <= 50; i++ {
		f.push(map[string]any{"event": "property-change", "id": 1, "name": "time-pos", "data": i})
	}
	f.push(map[string]any{"event": "client-message", "args": []string{"mtp:run", "/bin/cut", "+clear"}})

	for i := 1; i <= 50; i++ {
		select {
		case ev := <-c.Events():
			var got int
			json.Unmarshal(ev.Data, &got)
			if ev.Name != "property-change" || got != i {
				t.Fatalf("event %d = %+v", i, ev)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out waiting for event %d", i)
		}
	}

	ev := <-c.Events()
	if ev.Name != "client-message" || !reflect.DeepEqual(ev.Args, []string{"mtp:run", "/bin/cut", "+clear"}) {
		t.Errorf("client-message = %+v", ev)
	}
}

func TestClient_HangUp(t *testing.T) {
	f := newFakeMPV(t, nil)
	c := dialFake(t, f)

	f.push(map[string]any{"event": "file-loaded"})
	f.hangUp()

	select {
	case <-c.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("Done() not closed after hang-up")
	}

	ev, ok := <-c.Events()
	if !ok || ev.Name != "file-loaded" {
		t.Errorf("queued event lost: %+v, ok=%v", ev, ok)
	}
	if _, ok := <-c.Events(); ok {
		t.Error("Events() not closed after drain")
	}
	if _, err := c.Command(testCtx(t), "get_property", "path"); !errors.Is(err, ErrClosed) {
		t.Errorf("Command() after hang-up error = %v, want ErrClosed", err)
	}
	if err := c.Err(); err != nil {
		t.Errorf("Err() after clean hang-up = %v, want nil", err)
	}
}

func TestDial_NoSocket(t *testing.T) {
	_, err := Dial(testCtx(t), filepath.Join(t.TempDir(), "missing.sock"), nil)
	if err == nil {
		t.Fatal("Dial() expected error for missing socket")
	}
}

func TestTranslate(t *testing.T) {
	tests := []struct {
		name string
		ev   Event
		want picker.Event
		ok   bool
	}{
		{"message", Event{Name: "client-message", Args: []string{"mtp:pick"}}, picker.Event{Kind: picker.EventMessage, Args: []string{"mtp:pick"}}, true},
		{"empty message", Event{Name: "client-message"}, picker.Event{}, false},
		{"time", Event{Name: "property-change", Prop: "time-pos"}, picker.Event{Kind: picker.EventTimeChanged}, true},
		{"dimensions", Event{Name: "property-change", Prop: "osd-dimensions"}, picker.Event{Kind: picker.EventGeometryChanged}, true},
		{"fullscreen", Event{Name: "property-change", Prop: "fullscreen"}, picker.Event{Kind: picker.EventGeometryChanged}, true},
		{"other property", Event{Name: "property-change", Prop: "volume"}, picker.Event{}, false},
		{"file loaded", Event{Name: "file-loaded"}, picker.Event{Kind: picker.EventFileLoaded}, true},
		{"shutdown", Event{Name: "shutdown"}, picker.Event{Kind: picker.EventShutdown}, true},
		{"seek", Event{Name: "seek"}, picker.Event{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Translate(tt.ev)
			if ok != tt.ok || !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Translate() = %+v, %v; want %+v, %v", got, ok, tt.want, tt.ok)
			}
		})
	}
}

func TestForward_ClosedInputBecomesShutdown(t *testing.T) {
	in := make(chan Event, 2)
	in <- Event{Name: "file-loaded"}
	in <- Event{Name: "seek"}
	close(in)

	out := Forward(testCtx(t), in)

	var kinds []picker.EventKind
	for ev := range out {
		kinds = append(kinds, ev.Kind)
	}
	want := []picker.EventKind{picker.EventFileLoaded, picker.EventShutdown}
	if !reflect.DeepEqual(kinds, want) {
		t.Errorf("forwarded kinds = %v, want %v", kinds, want)
	}
}
