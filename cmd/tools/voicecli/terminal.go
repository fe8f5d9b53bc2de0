package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"sync"
)

// lineRecognizer stands in for speech recognition: each line typed on
// the terminal is one final utterance.
type lineRecognizer struct {
	out    io.Writer
	lines  chan string
	errMu  sync.Mutex
	err    error
	closed chan struct{}
}

func newLineRecognizer(in io.Reader, out io.Writer) *lineRecognizer {
	r := &lineRecognizer{
		out:    out,
		lines:  make(chan string),
		closed: make(chan struct{}),
	}
	go r.scan(in)
	return r
}

func (r *lineRecognizer) scan(in io.Reader) {
	defer close(r.closed)
	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		r.lines <- scanner.Text()
	}
	r.errMu.Lock()
	r.err = scanner.Err()
	r.errMu.Unlock()
}

func (r *lineRecognizer) Recognize(ctx context.Context, _ string) (string, error) {
	fmt.Fprint(r.out, "you> ")
	select {
	case line := <-r.lines:
		return line, nil
	case <-ctx.Done():
		return "", nil
	case <-r.closed:
		r.errMu.Lock()
		defer r.errMu.Unlock()
		if r.err != nil {
			return "", r.err
		}
		return "", io.EOF
	}
}

// printSynthesizer writes replies instead of speaking them.
type printSynthesizer struct {
	out io.Writer
}

func (s *printSynthesizer) Speak(_ context.Context, text string) error {
	_, err := fmt.Fprintf(s.out, "assistant> %s\n", text)
	return err
}
