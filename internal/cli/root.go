package cli

import (
	"bufio"
	"context"
	"fmt"
	"os"
)

func (a *App) getStatus() string {
	if !a.unlocked {
		return "(locked)"
	}
	return fmt.Sprintf("(%s)", shortHex(a.fingerprint.Base))
}

// Run starts the interactive loop on stdin and shuts the vault down on
// exit.
func (a *App) Run(ctx context.Context) {
	defer a.Close()

	fmt.Println("HashFS CLI (type 'help' for commands)")
	scanner := bufio.NewScanner(os.Stdin)
	runREPL(ctx, a, a.getStatus, scanner)
}
