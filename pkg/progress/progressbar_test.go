package progress

import (
	"testing"
	"time"

	"github.com/nonlogicaldev/stgit-go/modules/term"
)

func TestNewBar(t *testing.T) {
	term.StderrMode = term.HasColor
	b := NewBar("init", 100, true)
	for i := 0; i < 100; i++ {
		time.Sleep(time.Millisecond)
		b.Add(1)
	}
	b.Finish()
}
