package mpv

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/mtpick/timepicker/internal/playback"
)

const overlayID = 1

const (
	observeTimePos = iota + 1
	observeDimensions
	observeFullscreen
)

// Host adapts a Client to the operations the picker drives.
type Host struct {
	client *Client
}

func NewHost(c *Client) *Host {
	return &Host{client: c}
}

func (h *Host) property(ctx context.Context, name string, v any) error {
	data, err := h.client.Command(ctx, "get_property", name)
	if err != nil {
		return err
	}
	if len(data) == 0 || string(data) == "null" {
		return fmt.Errorf("property %s unavailable", name)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("decode %s: %w", name, err)
	}
	return nil
}

func (h *Host) TimePos(ctx context.Context) (float64, error) {
	var t float64
	err := h.property(ctx, "time-pos", &t)
	return t, err
}

// Geometry returns whatever it could read; missing fields stay zero and are
// reported in the error.
func (h *Host) Geometry(ctx context.Context) (playback.Geometry, error) {
	var geo playback.Geometry
	var dims playback.Dimensions

	errDur := h.property(ctx, "duration", &geo.Duration)
	errPos := h.property(ctx, "time-pos", &geo.Position)
	errDims := h.property(ctx, "osd-dimensions", &dims)
	geo.Aspect = dims.DisplayAspect()

	return geo, errors.Join(errDur, errPos, errDims)
}

func (h *Host) MediaPath(ctx context.Context) (string, error) {
	var p string
	err := h.property(ctx, "path", &p)
	return p, err
}

func (h *Host) ExpandPath(ctx context.Context, path string) (string, error) {
	data, err := h.client.Command(ctx, "expand-path", path)
	if err != nil {
		return "", err
	}
	var out string
	if err := json.Unmarshal(data, &out); err != nil {
		return "", fmt.Errorf("decode expand-path: %w", err)
	}
	return out, nil
}

func (h *Host) KeepOpen(ctx context.Context) error {
	_, err := h.client.Command(ctx, "set_property", "keep-open", "yes")
	return err
}

func (h *Host) ShowText(ctx context.Context, text string, d time.Duration) error {
	_, err := h.client.Command(ctx, "show-text", text, strconv.FormatInt(d.Milliseconds(), 10))
	return err
}

// BindMessage binds key to a script-message that every client, this one
// included, receives as a client-message event.
func (h *Host) BindMessage(ctx context.Context, key, message string) error {
	_, err := h.client.Command(ctx, "keybind", key, "script-message "+message)
	return err
}

func (h *Host) LoadScript(ctx context.Context, path string) error {
	_, err := h.client.Command(ctx, "load-script", path)
	return err
}

func (h *Host) ScriptMessageTo(ctx context.Context, target string, args ...string) error {
	cmd := make([]any, 0, len(args)+2)
	cmd = append(cmd, "script-message-to", target)
	for _, a := range args {
		cmd = append(cmd, a)
	}
	_, err := h.client.Command(ctx, cmd...)
	return err
}

// UpdateOverlay replaces the ASS overlay. res_x 0 lets mpv derive the width
// from res_y and the display aspect.
func (h *Host) UpdateOverlay(ctx context.Context, data string) error {
	_, err := h.client.CommandNamed(ctx, map[string]any{
		"name":   "osd-overlay",
		"id":     overlayID,
		"format": "ass-events",
		"data":   data,
		"res_x":  0,
		"res_y":  playback.BaseResolution,
	})
	return err
}

func (h *Host) RemoveOverlay(ctx context.Context) error {
	_, err := h.client.CommandNamed(ctx, map[string]any{
		"name":   "osd-overlay",
		"id":     overlayID,
		"format": "none",
	})
	return err
}

// Observe subscribes to the properties that drive rendering.
func (h *Host) Observe(ctx context.Context) error {
	for id, name := range map[int]string{
		observeTimePos:    "time-pos",
		observeDimensions: "osd-dimensions",
		observeFullscreen: "fullscreen",
	} {
		if _, err := h.client.Command(ctx, "observe_property", id, name); err != nil {
			return fmt.Errorf("observe %s: %w", name, err)
		}
	}
	return nil
}
