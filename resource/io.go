package resource

import (
	"context"
	"io"
)

// RateLimitedWriter charges every write against the IO limit of a Controller.
type RateLimitedWriter struct {
	ctx context.Context
	w   io.Writer
	rc  *Controller
}

// NewRateLimitedWriter creates a new RateLimitedWriter.
func NewRateLimitedWriter(ctx context.Context, w io.Writer, rc *Controller) *RateLimitedWriter {
	return &RateLimitedWriter{ctx: ctx, w: w, rc: rc}
}

func (w *RateLimitedWriter) Write(p []byte) (int, error) {
	written := 0
	for len(p) > 0 {
		chunk := w.rc.chunk(len(p))
		if err := w.rc.WaitIO(w.ctx, chunk); err != nil {
			return written, err
		}
		n, err := w.w.Write(p[:chunk])
		written += n
		if err != nil {
			return written, err
		}
		p = p[chunk:]
	}
	return written, nil
}

// RateLimitedReader charges every read against the IO limit of a Controller.
type RateLimitedReader struct {
	ctx context.Context
	r   io.Reader
	rc  *Controller
}

// NewRateLimitedReader creates a new RateLimitedReader.
func NewRateLimitedReader(ctx context.Context, r io.Reader, rc *Controller) *RateLimitedReader {
	return &RateLimitedReader{ctx: ctx, r: r, rc: rc}
}

func (r *RateLimitedReader) Read(p []byte) (int, error) {
	// Wait for at most one burst; a read never returns more than it paid for.
	p = p[:r.rc.chunk(len(p))]
	if err := r.rc.WaitIO(r.ctx, len(p)); err != nil {
		return 0, err
	}
	return r.r.Read(p)
}

// chunk caps n at the limiter burst so WaitN never fails on large buffers.
func (c *Controller) chunk(n int) int {
	if c == nil || c.ioLimiter == nil {
		return n
	}
	if b := c.ioLimiter.Burst(); n > b {
		return b
	}
	return n
}
