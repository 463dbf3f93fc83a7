package main

import (
	"fmt"

	"github.com/swarmguard/sigscan/internal/engine"
	"github.com/swarmguard/sigscan/internal/engine/ac"
	"github.com/swarmguard/sigscan/internal/engine/bm"
	"github.com/swarmguard/sigscan/internal/engine/sh"
	"github.com/swarmguard/sigscan/internal/engine/wm"
)

// algorithms maps the CLI's single-letter algorithm codes to engine
// constructors and display names, in the fixed order bench runs them.
var algorithms = []struct {
	code string
	name string
	new  func() engine.Engine
}{
	{"a", "aho-corasick", func() engine.Engine { return ac.New() }},
	{"d", "wu-manber-det", func() engine.Engine { return wm.New(wm.Config{Bloom: false}) }},
	{"p", "wu-manber-prob", func() engine.Engine { return wm.New(wm.Config{Bloom: true}) }},
	{"h", "set-horspool", func() engine.Engine { return sh.New() }},
	{"b", "boyer-moore", func() engine.Engine { return bm.New() }},
}

func resolveEngine(code string) (engine.Engine, string, error) {
	for _, a := range algorithms {
		if a.code == code {
			return a.new(), a.name, nil
		}
	}
	return nil, "", fmt.Errorf("unknown algorithm %q (want one of a, d, p, h, b)", code)
}
