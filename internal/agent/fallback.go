package agent

import (
	"fmt"
	"strings"

	"github.com/harborbank/concierge/internal/task"
)

// fallbackRouter produces the deterministic replies used when classification
// has no verdict. It needs no collaborator and no network, so the assistant
// stays operable with the NLU service entirely disabled.
type fallbackRouter struct {
	library *task.Library
}

// menuText lists every task the assistant can run, in stable order.
func (f fallbackRouter) menuText() string {
	var b strings.Builder
	b.WriteString("Here's what I can help you with:\n")
	titles := f.library.Titles()
	for i, t := range f.library.Types() {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, titles[t])
	}
	b.WriteString("Just tell me what you'd like to do.")
	return b.String()
}

func (f fallbackRouter) menuHint() string {
	return "Let me know if there's anything else I can help with."
}
