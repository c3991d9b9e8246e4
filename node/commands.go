package node

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
)

// Command is one entry of a node's HTTP surface
type Command[N any] struct {
	Method      string
	Pattern     string
	Params      string
	Description string
	Run         func(N, http.ResponseWriter, *http.Request)
}

// HelpText lists the commands, one per line
func HelpText[N any](commands []*Command[N]) string {
	var sb strings.Builder
	sb.WriteString("Available Commands:\n")
	for _, cmd := range commands {
		fmt.Fprintf(&sb, "%s %s", cmd.Method, cmd.Pattern)
		if cmd.Params != "" {
			fmt.Fprintf(&sb, " [%s]", cmd.Params)
		}
		sb.WriteString(": " + cmd.Description + "\n")
	}
	return sb.String()
}

// Mount registers every command on r plus GET / for the help text
func Mount[N any](r chi.Router, n N, commands []*Command[N]) {
	help := HelpText(commands)
	r.Get("/", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(help))
	})

	for _, cmd := range commands {
		r.Method(cmd.Method, cmd.Pattern, http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			cmd.Run(n, w, req)
		}))
	}
}
