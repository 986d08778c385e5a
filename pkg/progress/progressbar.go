// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package progress

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"

	"github.com/nonlogicaldev/stgit-go/modules/plumbing"
	"github.com/nonlogicaldev/stgit-go/modules/term"
	"github.com/nonlogicaldev/stgit-go/pkg/tr"
)

var (
	blueColorMap = map[term.ColorMode]string{
		term.HasColor: "\x1b[36m",
	}
	endColorMap = map[term.ColorMode]string{
		term.HasColor: "\x1b[0m",
	}
)

// Bar wraps a single mpb progress bar. It degrades to a no-op when quiet or
// when stderr is not a terminal, so callers never need to branch on it.
type Bar struct {
	container *mpb.Progress
	bar       *mpb.Bar
	total     int
}

func wrapDescription(description string) string {
	if term.StderrMode == term.HasColor {
		return fmt.Sprintf("\x1b[0m%s...", description)
	}
	return description + "..."
}

// NewBar renders a known-length progress bar for work over a known number
// of items.
func NewBar(description string, total int, quiet bool) *Bar {
	if quiet || term.StderrMode == term.NoColor {
		return &Bar{total: total}
	}
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	bar := p.AddBar(int64(total),
		mpb.PrependDecorators(decor.Name(wrapDescription(description))),
		mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
	)
	return &Bar{container: p, bar: bar, total: total}
}

// NewUnknownBar renders a spinner-style bar for operations of unknown
// length, such as walking first-parent history back to the stack base.
func NewUnknownBar(description string, quiet bool) *Bar {
	if quiet || term.StderrMode == term.NoColor {
		return &Bar{}
	}
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40))
	bar := p.AddSpinner(-1, mpb.SpinnerOnLeft,
		mpb.PrependDecorators(decor.Name(tr.W(description)+"...")),
		mpb.AppendDecorators(decor.Elapsed(decor.ET_STYLE_GO)),
	)
	return &Bar{container: p, bar: bar}
}

func (b *Bar) NewTeeReader(r io.Reader) io.Reader {
	if b.bar == nil {
		return r
	}
	return io.TeeReader(r, b)
}

// Write satisfies io.Writer so Bar can itself back a TeeReader.
func (b *Bar) Write(p []byte) (int, error) {
	b.Add(len(p))
	return len(p), nil
}

func (b *Bar) Add(n int) {
	if b.bar != nil {
		b.bar.IncrBy(n)
	}
}

func (b *Bar) Finish() {
	if b.bar != nil {
		b.bar.SetCurrent(int64(b.total))
		b.container.Wait()
	}
}

func (b *Bar) Exit() {
	if b.bar != nil {
		b.bar.Abort(true)
		b.container.Wait()
	}
}

func makeSingleBarDesc(oid plumbing.Hash, round int) string {
	if round == 0 {
		return fmt.Sprintf("%s %s ...", tr.W("scanning"), oid.Shorten())
	}
	return fmt.Sprintf("%s %s [%s] ...", tr.W("scanning"), oid.Shorten(), tr.W("retrying"))
}

// NewSingleBar reports byte-level progress while r is read, labelled by the
// commit it is scanning.
func NewSingleBar(r io.Reader, total int64, current int64, oid plumbing.Hash, round int) (io.Reader, io.Closer) {
	p := mpb.New(mpb.WithOutput(os.Stderr), mpb.WithWidth(40), mpb.WithRefreshRate(65*time.Millisecond))
	bar := p.AddBar(total,
		mpb.PrependDecorators(decor.Name(makeSingleBarDesc(oid, round))),
		mpb.AppendDecorators(decor.CountersKibiByte("% .2f / % .2f")),
	)
	bar.SetCurrent(current)
	b := &Bar{container: p, bar: bar, total: int(total)}
	return io.TeeReader(r, b), closerFunc(func() error {
		b.Finish()
		return nil
	})
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }
