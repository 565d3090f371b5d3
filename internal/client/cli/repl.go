package cli

import (
	"bufio"
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/gophscan/internal/client/models"
)

// printlnFn is a test seam for user-facing output. In tests, replace it with a stub.
var printlnFn = fmt.Println

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a lightweight stub.
type execIface interface {
	Redeem(ctx context.Context, dir models.Direction, args []string) error
	Search(ctx context.Context, query string) error
	Status(ctx context.Context) error
	Questions(ctx context.Context, args []string) error
	Sync(ctx context.Context) error
	Pending(ctx context.Context) error
	Use(ctx context.Context, args []string) error
	Mode(ctx context.Context, args []string) error
	Import(ctx context.Context, args []string) error
}

const helpText = `Available commands:
  scan [<secret>] [--force]                 redeem in the configured direction
  in <secret> [--force] [--ignore-unpaid]   check a ticket in
  out <secret>                              check a ticket out
  search <text>                             find tickets by name, e-mail, order or secret
  status                                    show the check-in list status
  questions <item id>                       show the check-in questions of a product
  sync                                      upload queued scans now
  pending                                   show the number of queued uploads
  use [<event> <list id>]                   select the event and check-in list
  mode [online|offline|signed|autosync on|off]
  import <file>                             load an event data bundle
  help | quit`

// runREPL starts a simple read–eval–print loop for the gate client.
//
// It reads a line from the provided scanner, parses the first token as the
// command, and dispatches to methods on 'a'. Unknown commands are reported
// back to the user. The loop exits on scanner EOF or when the user types
// "exit" or "quit".
//
// Errors returned by command handlers are printed and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, scanner *bufio.Scanner) {
	for {
		printlnFn(fmt.Sprintf("gs %s> ", statusFn()))
		if !scanner.Scan() {
			return
		}
		parts := strings.Fields(scanner.Text())
		if len(parts) == 0 {
			continue
		}
		cmd, args := parts[0], parts[1:]

		var err error
		switch cmd {
		case "help", "?":
			printlnFn(helpText)
		case "scan":
			err = a.Redeem(ctx, "", args)
		case "in":
			err = a.Redeem(ctx, models.DirectionEntry, args)
		case "out":
			err = a.Redeem(ctx, models.DirectionExit, args)
		case "s", "search":
			err = a.Search(ctx, strings.Join(args, " "))
		case "status":
			err = a.Status(ctx)
		case "questions":
			err = a.Questions(ctx, args)
		case "sync":
			err = a.Sync(ctx)
		case "pending":
			err = a.Pending(ctx)
		case "use":
			err = a.Use(ctx, args)
		case "mode":
			err = a.Mode(ctx, args)
		case "import":
			err = a.Import(ctx, args)
		case "exit", "quit":
			printlnFn("Bye!")
			return
		default:
			printlnFn("Unknown command:", cmd)
		}
		if err != nil {
			printlnFn("Error:", err)
		}
	}
}
