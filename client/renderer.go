package client

import (
	"fmt"
	"io"
)

// Renderer receives assistant output as it streams in. Fragment is called
// for every displayed piece of text; Done marks the end of a turn.
type Renderer interface {
	Fragment(text string)
	Done()
}

// WriterRenderer streams fragments straight to an io.Writer.
type WriterRenderer struct {
	Out io.Writer
}

func (r *WriterRenderer) Fragment(text string) {
	fmt.Fprint(r.Out, text)
}

func (r *WriterRenderer) Done() {
	fmt.Fprintln(r.Out)
}
