package trace

import (
	"testing"

	"github.com/nonlogicaldev/stgit-go/modules/term"
)

func TestDebug(t *testing.T) {
	term.StderrMode = term.HasColor
	d := NewDebuger(true)
	d.DbgPrint("jack")
}
