// Package approval gates gateway starts behind an operator decision.
// The decision source is injected: tests use Auto, the CLI uses Prompt,
// deployments can plug in anything satisfying Approver.
package approval

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// Request describes the action awaiting confirmation.
type Request struct {
	Action   string // e.g. "start_stdio_to_sse_gateway"
	Resource string // command or URL being bridged
	Detail   string // extra context shown to the operator
}

// Approver decides whether a gated action may proceed.
type Approver interface {
	Confirm(ctx context.Context, req Request) (bool, error)
}

// Auto always returns its fixed decision. Auto(true) is the non-interactive
// default; Auto(false) rejects everything.
type Auto bool

func (a Auto) Confirm(context.Context, Request) (bool, error) {
	return bool(a), nil
}

// Prompt asks for a y/N confirmation on the given streams. The read honors
// ctx so a gated start cannot stall its caller forever.
type Prompt struct {
	In  io.Reader
	Out io.Writer
}

func (p *Prompt) Confirm(ctx context.Context, req Request) (bool, error) {
	fmt.Fprintf(p.Out, "approve %s for %q", req.Action, req.Resource)
	if req.Detail != "" {
		fmt.Fprintf(p.Out, " (%s)", req.Detail)
	}
	fmt.Fprint(p.Out, "? [y/N] ")

	type answer struct {
		line string
		err  error
	}
	ch := make(chan answer, 1)
	go func() {
		line, err := bufio.NewReader(p.In).ReadString('\n')
		ch <- answer{line: line, err: err}
	}()

	select {
	case <-ctx.Done():
		return false, ctx.Err()
	case a := <-ch:
		if a.err != nil && a.line == "" {
			return false, a.err
		}
		switch strings.ToLower(strings.TrimSpace(a.line)) {
		case "y", "yes":
			return true, nil
		default:
			return false, nil
		}
	}
}
