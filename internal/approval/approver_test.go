package approval

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestAuto(t *testing.T) {
	ok, err := Auto(true).Confirm(context.Background(), Request{Action: "start"})
	if err != nil || !ok {
		t.Errorf("Auto(true) = (%v, %v)", ok, err)
	}
	ok, err = Auto(false).Confirm(context.Background(), Request{Action: "start"})
	if err != nil || ok {
		t.Errorf("Auto(false) = (%v, %v)", ok, err)
	}
}

func TestPromptYes(t *testing.T) {
	var out bytes.Buffer
	p := &Prompt{In: strings.NewReader("y\n"), Out: &out}

	ok, err := p.Confirm(context.Background(), Request{
		Action:   "start_stdio_to_sse_gateway",
		Resource: "echo hello",
	})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if !ok {
		t.Error("expected approval for 'y'")
	}
	if !strings.Contains(out.String(), "echo hello") {
		t.Errorf("prompt should name the resource: %q", out.String())
	}
}

func TestPromptDefaultIsNo(t *testing.T) {
	p := &Prompt{In: strings.NewReader("\n"), Out: &bytes.Buffer{}}
	ok, err := p.Confirm(context.Background(), Request{Action: "start"})
	if err != nil {
		t.Fatalf("confirm: %v", err)
	}
	if ok {
		t.Error("bare newline must decline")
	}
}

func TestPromptHonorsContext(t *testing.T) {
	// A reader that never delivers a line simulates an absent operator.
	r, _ := neverReader()
	p := &Prompt{In: r, Out: &bytes.Buffer{}}

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := p.Confirm(ctx, Request{Action: "start"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("expected deadline exceeded, got %v", err)
	}
}

// neverReader returns a reader whose Read blocks until the test ends.
func neverReader() (*blockingReader, func()) {
	br := &blockingReader{ch: make(chan struct{})}
	return br, func() { close(br.ch) }
}

type blockingReader struct{ ch chan struct{} }

func (b *blockingReader) Read([]byte) (int, error) {
	<-b.ch
	return 0, errors.New("closed")
}
