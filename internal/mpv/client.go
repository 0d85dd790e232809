// Package mpv speaks mpv's JSON IPC protocol over a unix socket.
//
// Requests are matched to replies by request_id. Events are queued without
// bound so the reader never stalls behind a slow consumer.
package mpv

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"

	"github.com/mtpick/timepicker/internal/logging"
)

var ErrClosed = errors.New("mpv connection closed")

// CommandError is a reply whose error field is not "success".
type CommandError struct {
	Command string
	Err     string
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("mpv %s: %s", e.Command, e.Err)
}

// Event is an unsolicited message from mpv.
type Event struct {
	Name string          `json:"event"`
	ID   int64           `json:"id,omitempty"`
	Prop string          `json:"name,omitempty"`
	Data json.RawMessage `json:"data,omitempty"`
	Args []string        `json:"args,omitempty"`
}

type message struct {
	Event
	Error     *string `json:"error"`
	RequestID int64   `json:"request_id"`
}

type reply struct {
	data json.RawMessage
	err  string
}

type Client struct {
	conn   net.Conn
	logger *slog.Logger

	writeMu sync.Mutex
	nextID  atomic.Int64

	mu      sync.Mutex
	pending map[int64]chan reply
	queue   []Event
	closed  bool
	readErr error

	notify chan struct{}
	events chan Event
	done   chan struct{}
}

// Dial connects to the IPC socket at path.
func Dial(ctx context.Context, path string, logger *slog.Logger) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "unix", path)
	if err != nil {
		return nil, fmt.Errorf("connect to mpv at %s: %w", logging.SanitizePath(path), err)
	}
	return newClient(conn, logger), nil
}

func newClient(conn net.Conn, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.Discard()
	}
	c := &Client{
		conn:    conn,
		logger:  logging.WithComponent(logger, "mpv"),
		pending: make(map[int64]chan reply),
		notify:  make(chan struct{}, 1),
		events:  make(chan Event),
		done:    make(chan struct{}),
	}
	go c.readLoop()
	go c.pump()
	return c
}

// Events delivers mpv events in arrival order. The channel is closed once
// the connection is gone and every queued event has been delivered.
func (c *Client) Events() <-chan Event {
	return c.events
}

// Done is closed when the connection ends.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

func (c *Client) Close() error {
	return c.conn.Close()
}

// Command runs a positional command and returns the reply data.
func (c *Client) Command(ctx context.Context, args ...any) (json.RawMessage, error) {
	name := ""
	if len(args) > 0 {
		name = fmt.Sprint(args[0])
	}
	return c.send(ctx, name, args)
}

// CommandNamed runs a command with named arguments. cmd must carry "name".
func (c *Client) CommandNamed(ctx context.Context, cmd map[string]any) (json.RawMessage, error) {
	return c.send(ctx, fmt.Sprint(cmd["name"]), cmd)
}

func (c *Client) send(ctx context.Context, name string, command any) (json.RawMessage, error) {
	id := c.nextID.Add(1)
	ch := make(chan reply, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	c.pending[id] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, id)
		c.mu.Unlock()
	}()

	line, err := json.Marshal(struct {
		Command   any   `json:"command"`
		RequestID int64 `json:"request_id"`
	}{command, id})
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", name, err)
	}

	c.writeMu.Lock()
	_, err = c.conn.Write(append(line, '\n'))
	c.writeMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("send %s: %w", name, err)
	}

	select {
	case r, ok := <-ch:
		if !ok {
			return nil, ErrClosed
		}
		if r.err != "success" {
			return nil, &CommandError{Command: name, Err: r.err}
		}
		return r.data, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (c *Client) readLoop() {
	scanner := bufio.NewScanner(c.conn)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	for scanner.Scan() {
		var msg message
		if err := json.Unmarshal(scanner.Bytes(), &msg); err != nil {
			c.logger.Warn("undecodable message", "error", err)
			continue
		}

		if msg.Name != "" {
			c.enqueue(msg.Event)
			continue
		}
		if msg.Error == nil {
			continue
		}

		c.mu.Lock()
		ch, ok := c.pending[msg.RequestID]
		c.mu.Unlock()
		if !ok {
			c.logger.Debug("reply without waiter", "request_id", msg.RequestID)
			continue
		}
		ch <- reply{data: msg.Data, err: *msg.Error}
	}

	c.mu.Lock()
	c.closed = true
	c.readErr = scanner.Err()
	for id, ch := range c.pending {
		close(ch)
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if err := scanner.Err(); err != nil {
		c.logger.Info("connection lost", "error", err)
	}
	close(c.done)
	c.wake()
}

func (c *Client) enqueue(ev Event) {
	c.mu.Lock()
	c.queue = append(c.queue, ev)
	c.mu.Unlock()
	c.wake()
}

func (c *Client) wake() {
	select {
	case c.notify <- struct{}{}:
	default:
	}
}

func (c *Client) pump() {
	defer close(c.events)
	for {
		c.mu.Lock()
		batch := c.queue
		c.queue = nil
		closed := c.closed
		c.mu.Unlock()

		for _, ev := range batch {
			c.events <- ev
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			return
		}
		<-c.notify
	}
}

// Err returns the read error that ended the connection, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readErr
}
