package tr

import (
	"fmt"
	"os"
	"runtime"
	"testing"
)

func TestFS(t *testing.T) {
	_ = Initialize()
	fmt.Fprintf(os.Stderr, "load ok={%v}\n", W("ok"))
	_, _ = Fprintf(os.Stderr, "current os '%s'\n", runtime.GOOS)
}

func TestLANG(t *testing.T) {
	_ = os.Setenv("LC_ALL", "zh_CN.UTF8")
	fmt.Fprintf(os.Stderr, "lang=%s\n", Language())
}
