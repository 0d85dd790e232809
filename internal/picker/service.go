package picker

import "context"

// Service exposes the controller to other goroutines. Every call is run on
// the controller loop through Do.
type Service struct {
	c *Controller
}

func NewService(c *Controller) *Service {
	return &Service{c: c}
}

func (s *Service) Marks(ctx context.Context) ([]float64, error) {
	var out []float64
	err := s.c.Do(ctx, func(context.Context) error {
		out = s.c.Marks()
		return nil
	})
	return out, err
}

// Snapshot returns the marks together with the path of the loaded media.
func (s *Service) Snapshot(ctx context.Context) ([]float64, string, error) {
	var (
		out   []float64
		media string
	)
	err := s.c.Do(ctx, func(ctx context.Context) error {
		out = s.c.Marks()
		media = s.c.mediaPath(ctx)
		return nil
	})
	return out, media, err
}

// Add marks t, or the current playback position when t is nil, and returns
// the time that was marked.
func (s *Service) Add(ctx context.Context, t *float64) (float64, error) {
	var added float64
	err := s.c.Do(ctx, func(ctx context.Context) error {
		tm, err := s.timeOrCursor(ctx, t)
		if err != nil {
			return err
		}
		added = tm
		return s.c.AddMark(ctx, tm)
	})
	return added, err
}

// RemoveClosest removes the mark nearest to t, or to the current playback
// position when t is nil.
func (s *Service) RemoveClosest(ctx context.Context, t *float64) (float64, error) {
	var removed float64
	err := s.c.Do(ctx, func(ctx context.Context) error {
		tm, err := s.timeOrCursor(ctx, t)
		if err != nil {
			return err
		}
		removed, err = s.c.RemoveClosest(ctx, tm)
		return err
	})
	return removed, err
}

func (s *Service) Clear(ctx context.Context) error {
	return s.c.Do(ctx, func(ctx context.Context) error {
		s.c.ClearMarks(ctx)
		return nil
	})
}

func (s *Service) RunProgram(ctx context.Context, target string, flags []string) (string, error) {
	var id string
	err := s.c.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.c.RunProgram(ctx, target, flags)
		return err
	})
	return id, err
}

func (s *Service) RunScript(ctx context.Context, target string, flags []string) (string, error) {
	var id string
	err := s.c.Do(ctx, func(ctx context.Context) error {
		var err error
		id, err = s.c.RunScript(ctx, target, flags)
		return err
	})
	return id, err
}

func (s *Service) timeOrCursor(ctx context.Context, t *float64) (float64, error) {
	if t != nil {
		return *t, nil
	}
	return s.c.host.TimePos(ctx)
}
