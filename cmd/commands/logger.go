package commands

import (
	"fmt"
	"io"

	"github.com/go-kit/kit/log/term"
	"github.com/tendermint/tendermint/libs/log"
)

var agentColors = []term.Color{
	term.Green, term.Cyan, term.Magenta, term.Yellow, term.Blue,
	term.DarkGreen, term.DarkCyan, term.DarkMagenta, term.Brown, term.DarkBlue,
}

// newColorLogger colors every line by the agent it belongs to; errors are red.
func newColorLogger(w io.Writer, agents []string) log.Logger {
	index := make(map[string]int, len(agents))
	for i, a := range agents {
		index[a] = i
	}

	return log.NewTMLoggerWithColorFn(log.NewSyncWriter(w), func(keyvals ...interface{}) term.FgBgColor {
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] == "err" || keyvals[i] == "error" {
				return term.FgBgColor{Fg: term.Red}
			}
		}
		for i := 0; i < len(keyvals)-1; i += 2 {
			if keyvals[i] != "agent" {
				continue
			}
			if idx, ok := index[fmt.Sprint(keyvals[i+1])]; ok {
				return term.FgBgColor{Fg: agentColors[idx%len(agentColors)]}
			}
		}
		return term.FgBgColor{}
	})
}
