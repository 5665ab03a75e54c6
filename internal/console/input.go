package console

import (
	"bufio"
	"context"
	"io"
)

// heldLine is input consumed while a monitor was running, replayed by the
// next call to next.
type heldLine struct {
	text string
	err  error
}

// lineReader reads r on its own goroutine so that a running monitor can be
// interrupted by the next line of input.
type lineReader struct {
	lines chan string
	stop  chan struct{}
	// err is set before lines is closed.
	err  error
	held *heldLine
}

func newLineReader(r io.Reader) *lineReader {
	lr := &lineReader{
		lines: make(chan string),
		stop:  make(chan struct{}),
	}
	go func() {
		defer close(lr.lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			select {
			case lr.lines <- scanner.Text():
			case <-lr.stop:
				return
			}
		}
		lr.err = scanner.Err()
	}()
	return lr
}

// next returns the next input line. It returns io.EOF at the end of input,
// the read error if reading failed, or ctx.Err() if ctx ends first.
func (lr *lineReader) next(ctx context.Context) (string, error) {
	if h := lr.held; h != nil {
		lr.held = nil
		return h.text, h.err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lr.lines:
		if !ok {
			return "", lr.closedErr()
		}
		return line, nil
	}
}

// interrupted waits for input or the end of ctx. Input that arrives first is
// held for next and reported as true.
func (lr *lineReader) interrupted(ctx context.Context) bool {
	select {
	case <-ctx.Done():
		return false
	case line, ok := <-lr.lines:
		h := &heldLine{text: line}
		if !ok {
			h.err = lr.closedErr()
		}
		lr.held = h
		return true
	}
}

func (lr *lineReader) closedErr() error {
	if lr.err != nil {
		return lr.err
	}
	return io.EOF
}

// close releases the reading goroutine once it has a line to hand over. A
// read blocked in r stays blocked until r returns.
func (lr *lineReader) close() {
	close(lr.stop)
}
