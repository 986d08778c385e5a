// Copyright ©️ Ant Group. All rights reserved.
// SPDX-License-Identifier: Apache-2.0

package tr

import (
	"embed"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"
)

//go:embed languages
var langFS embed.FS

var (
	langTable = make(map[string]any)
)

// localeFromEnv mimics gettext's search order over the POSIX locale
// environment variables, without pulling in a full CLDR-aware detector.
func localeFromEnv() string {
	for _, name := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		if v := os.Getenv(name); v != "" && v != "C" && v != "POSIX" {
			return v
		}
	}
	return ""
}

var (
	Language = sync.OnceValue(func() string {
		lang := localeFromEnv()
		lang = strings.SplitN(lang, ".", 2)[0]
		lang = strings.ReplaceAll(lang, "_", "-")
		switch {
		case strings.HasPrefix(lang, "zh-Hans"), strings.HasPrefix(lang, "zh-CN"):
			return "zh-CN"
		case lang == "":
			return "en-US"
		}
		return lang
	})
)

var (
	Initialize = sync.OnceValue(func() error {
		fd, err := langFS.Open(path.Join("languages", Language()+".toml"))
		if err != nil {
			return err
		}
		defer fd.Close() // nolint
		if _, err := toml.NewDecoder(fd).Decode(&langTable); err != nil {
			return err
		}
		return nil
	})
)

func translate(k string) string {
	if v, ok := langTable[k]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return k
}

func W(k string) string {
	return translate(k)
}

func Fprintf(w io.Writer, format string, a ...any) (n int, err error) {
	return fmt.Fprintf(w, translate(format), a...)
}

func Sprintf(format string, a ...any) string {
	return fmt.Sprintf(translate(format), a...)
}
