package resource

import (
	"context"
	"io"
)

// LimitedWriter applies the controller's snapshot rate limit to every
// Write. Used when streaming snapshots to disk or a blob store.
type LimitedWriter struct {
	ctx context.Context
	c   *Controller
	w   io.Writer
}

// NewLimitedWriter wraps w with the controller's IO limit.
func NewLimitedWriter(ctx context.Context, c *Controller, w io.Writer) *LimitedWriter {
	return &LimitedWriter{ctx: ctx, c: c, w: w}
}

func (lw *LimitedWriter) Write(p []byte) (int, error) {
	if err := lw.c.WaitIO(lw.ctx, len(p)); err != nil {
		return 0, err
	}
	return lw.w.Write(p)
}

// LimitedReader applies the controller's snapshot rate limit to every
// Read. The wait is sized to the buffer, the upper bound of the read.
type LimitedReader struct {
	ctx context.Context
	c   *Controller
	r   io.Reader
}

// NewLimitedReader wraps r with the controller's IO limit.
func NewLimitedReader(ctx context.Context, c *Controller, r io.Reader) *LimitedReader {
	return &LimitedReader{ctx: ctx, c: c, r: r}
}

func (lr *LimitedReader) Read(p []byte) (int, error) {
	if err := lr.c.WaitIO(lr.ctx, len(p)); err != nil {
		return 0, err
	}
	return lr.r.Read(p)
}
