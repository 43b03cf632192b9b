package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"ai-grid-trader/internal/interfaces"
)

// Writer prints reports, for dry runs and when no webhook is set.
type Writer struct {
	mu sync.Mutex
	w  io.Writer
}

var _ interfaces.Notifier = (*Writer)(nil)

func NewStdout() *Writer { return &Writer{w: os.Stdout} }

func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (s *Writer) Notify(_ context.Context, text string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, err := fmt.Fprintln(s.w, text)
	return err
}

// Multi delivers to every notifier and returns the joined errors.
type Multi []interfaces.Notifier

func (m Multi) Notify(ctx context.Context, text string) error {
	var errs []error
	for _, n := range m {
		if err := n.Notify(ctx, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
