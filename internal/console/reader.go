package console

import (
	"bufio"
	"context"
	"io"
)

type lineResult struct {
	line string
	err  error
}

// LineReader reads lines in the background so a read can be abandoned when
// ctx ends. The background goroutine lives until the input reaches EOF.
type LineReader struct {
	results chan lineResult
	err     error
}

// NewLineReader starts reading r.
func NewLineReader(r io.Reader) *LineReader {
	lr := &LineReader{results: make(chan lineResult)}
	go func() {
		defer close(lr.results)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			lr.results <- lineResult{line: scanner.Text()}
		}
		if err := scanner.Err(); err != nil {
			lr.results <- lineResult{err: err}
		}
	}()
	return lr
}

// ReadLine returns the next line without its terminator, io.EOF at the end
// of input, or ctx.Err() when ctx ends first.
func (lr *LineReader) ReadLine(ctx context.Context) (string, error) {
	if lr.err != nil {
		return "", lr.err
	}
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res, ok := <-lr.results:
		if !ok {
			lr.err = io.EOF
			return "", io.EOF
		}
		if res.err != nil {
			lr.err = res.err
			return "", res.err
		}
		return res.line, nil
	}
}
