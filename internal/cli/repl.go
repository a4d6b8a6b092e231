package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	isUnlocked() bool
	Unlock(ctx context.Context) error
	List(ctx context.Context) error
	Put(ctx context.Context, path, name string) error
	Cat(ctx context.Context, name, version string) error
	History(ctx context.Context, name string) error
	Remove(ctx context.Context, name string) error
	Move(ctx context.Context, oldName, newName string) error
	Export(ctx context.Context, path string) error
	Import(ctx context.Context, path string) error
	Check(ctx context.Context) error
}

// runREPL starts a simple read–eval–print loop for the HashFS CLI.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Prompt & Commands
//
// The prompt shows the current status (from statusFn) and accepts commands:
//
//	Locked:
//	  - help             — show available commands
//	  - unlock           — derive keys and open the vault
//	  - exit | quit      — leave the program
//
//	Unlocked:
//	  - help             — show available commands
//	  - ls               — list files
//	  - put <file> [name]   — store a local file
//	  - cat <name> [ver]    — print a file (optionally a past version)
//	  - history <name>      — list retained versions
//	  - rm <name>           — delete a file and its history
//	  - mv <old> <new>      — rename a file
//	  - export <zip>        — write the vault as a ZIP archive
//	  - import <zip>        — load a ZIP archive into the vault
//	  - check               — run the integrity check
//	  - exit | quit         — leave the program
//
// Any errors returned by command handlers are ignored here; handlers should
// log their own errors. This keeps the REPL loop resilient and focused on I/O.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("hashfs> %s > ", statusFn()))
		if !scanner.Scan() {
			return
		}
		line := scanner.Text()
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]
		args := parts[1:]

		if !a.isUnlocked() {
			switch cmd {
			case "help":
				printlnFn("Available commands: unlock, exit")
			case "unlock":
				_ = a.Unlock(ctx)
			case "exit", "quit":
				printlnFn("Bye!")
				return
			default:
				printlnFn("Vault is locked; type 'unlock' first")
			}
			continue
		}

		switch cmd {
		case "help":
			printlnFn("Available commands: (l)s, put <file> [name], cat <name> [version], history <name>, rm <name>, mv <old> <new>, export <zip>, import <zip>, check, exit")

		case "unlock":
			_ = a.Unlock(ctx)

		case "l", "ls":
			_ = a.List(ctx)

		case "put":
			if len(args) == 0 {
				printlnFn("Usage: put <file> [name]")
				continue
			}
			name := ""
			if len(args) > 1 {
				name = args[1]
			}
			_ = a.Put(ctx, args[0], name)

		case "cat":
			if len(args) == 0 {
				printlnFn("Usage: cat <name> [version]")
				continue
			}
			version := ""
			if len(args) > 1 {
				version = args[1]
			}
			_ = a.Cat(ctx, args[0], version)

		case "history":
			if len(args) == 0 {
				printlnFn("Usage: history <name>")
				continue
			}
			_ = a.History(ctx, args[0])

		case "rm":
			if len(args) == 0 {
				printlnFn("Usage: rm <name>")
				continue
			}
			_ = a.Remove(ctx, args[0])

		case "mv":
			if len(args) < 2 {
				printlnFn("Usage: mv <old> <new>")
				continue
			}
			_ = a.Move(ctx, args[0], args[1])

		case "export":
			if len(args) == 0 {
				printlnFn("Usage: export <zip>")
				continue
			}
			_ = a.Export(ctx, args[0])

		case "import":
			if len(args) == 0 {
				printlnFn("Usage: import <zip>")
				continue
			}
			_ = a.Import(ctx, args[0])

		case "check":
			_ = a.Check(ctx)

		case "exit", "quit":
			printlnFn("Bye!")
			return

		default:
			printlnFn("Unknown command:", cmd)
		}
	}
}
