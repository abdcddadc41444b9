package repl

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/chzyer/readline"
	"github.com/fatih/color"

	"github.com/steveyegge/pnpsetup/internal/apply"
	"github.com/steveyegge/pnpsetup/internal/events"
	"github.com/steveyegge/pnpsetup/internal/solutions"
)

// REPL represents the interactive setup session
type REPL struct {
	solutions *solutions.Solutions
	runner    *apply.Runner
	store     events.EventStore
	onChange  func(apply.StateChange) error
	history   string
	out       io.Writer

	ctx      context.Context
	commands map[string]CommandHandler
	pending  sync.WaitGroup

	mu sync.Mutex
	rl *readline.Instance
}

// CommandHandler handles a specific command
type CommandHandler func(args []string) error

// Config holds REPL configuration
type Config struct {
	Solutions *solutions.Solutions
	// Runner executes accept/revert/dismiss off the input loop. It must be started.
	Runner *apply.Runner
	// Store records transitions and backs the history command (optional)
	Store events.EventStore
	// OnChange runs on the worker after every successful transition,
	// typically to persist the machine configuration (optional)
	OnChange func(apply.StateChange) error
	// HistoryFile persists the input history (optional)
	HistoryFile string
	// Out receives command output. Default: os.Stdout
	Out io.Writer
}

// New creates a new REPL instance
func New(cfg *Config) (*REPL, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if cfg.Solutions == nil {
		return nil, fmt.Errorf("solutions are required")
	}
	if cfg.Runner == nil {
		return nil, fmt.Errorf("runner is required")
	}

	out := cfg.Out
	if out == nil {
		out = os.Stdout
	}

	r := &REPL{
		solutions: cfg.Solutions,
		runner:    cfg.Runner,
		store:     cfg.Store,
		onChange:  cfg.OnChange,
		history:   cfg.HistoryFile,
		out:       out,
		ctx:       context.Background(),
		commands:  make(map[string]CommandHandler),
	}
	r.registerCommands()
	return r, nil
}

// Run starts the REPL loop
func (r *REPL) Run(ctx context.Context) error {
	r.ctx = ctx

	cyan := color.New(color.FgCyan).SprintFunc()
	rl, err := readline.NewEx(&readline.Config{
		Prompt:            cyan("pnp> "),
		HistoryFile:       r.history,
		AutoComplete:      r.completer(),
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		return fmt.Errorf("failed to create readline: %w", err)
	}
	defer rl.Close()

	r.mu.Lock()
	r.rl = rl
	r.mu.Unlock()
	defer func() {
		r.mu.Lock()
		r.rl = nil
		r.mu.Unlock()
	}()

	r.printWelcome()

	for {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			} else if err == io.EOF {
				r.Wait()
				fmt.Fprintln(r.out, "\nGoodbye!")
				return nil
			}
			return err
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if err := r.processInput(line); err != nil {
			if err == io.EOF {
				return nil
			}
			red := color.New(color.FgRed).SprintFunc()
			fmt.Fprintf(r.out, "%s %v\n", red("Error:"), err)
		}
	}
}

// Wait blocks until all submitted transitions have reported.
func (r *REPL) Wait() {
	r.pending.Wait()
}

// processInput processes a single line of input
func (r *REPL) processInput(line string) error {
	parts := strings.Fields(line)
	if len(parts) == 0 {
		return nil
	}

	command := strings.ToLower(parts[0])
	args := parts[1:]

	if handler, ok := r.commands[command]; ok {
		return handler(args)
	}

	yellow := color.New(color.FgYellow).SprintFunc()
	fmt.Fprintf(r.out, "%s Unknown command %q. Use 'help' for available commands.\n", yellow("Note:"), command)
	return nil
}

// registerCommands registers all built-in commands
func (r *REPL) registerCommands() {
	r.commands["help"] = r.cmdHelp
	r.commands["?"] = r.cmdHelp
	r.commands["exit"] = r.cmdExit
	r.commands["quit"] = r.cmdExit

	r.commands["list"] = r.cmdList
	r.commands["ls"] = r.cmdList
	r.commands["show"] = r.cmdShow
	r.commands["accept"] = r.cmdAccept
	r.commands["revert"] = r.cmdRevert
	r.commands["dismiss"] = r.cmdDismiss
	r.commands["detect"] = r.cmdDetect
	r.commands["milestone"] = r.cmdMilestone
	r.commands["status"] = r.cmdStatus
	r.commands["history"] = r.cmdHistory
}

func (r *REPL) completer() *readline.PrefixCompleter {
	var milestones []readline.PrefixCompleterInterface
	for _, m := range solutions.Milestones() {
		milestones = append(milestones, readline.PcItem(m.String()))
	}
	return readline.NewPrefixCompleter(
		readline.PcItem("help"),
		readline.PcItem("list"),
		readline.PcItem("show"),
		readline.PcItem("accept"),
		readline.PcItem("revert"),
		readline.PcItem("dismiss"),
		readline.PcItem("detect"),
		readline.PcItem("milestone", milestones...),
		readline.PcItem("status"),
		readline.PcItem("history"),
		readline.PcItem("exit"),
	)
}

// asyncOut is where worker goroutines print, so their output does not
// garble the prompt line.
func (r *REPL) asyncOut() io.Writer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.rl != nil {
		return r.rl.Stdout()
	}
	return r.out
}

// printWelcome prints the welcome message
func (r *REPL) printWelcome() {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n", cyan("Machine setup"))
	fmt.Fprintf(r.out, "Targeting milestone %s, %d issue(s) found\n", r.solutions.TargetMilestone(), len(r.solutions.Issues()))
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Type 'help' for available commands, 'exit' to quit")
	fmt.Fprintln(r.out)
}

// cmdHelp shows help information
func (r *REPL) cmdHelp(args []string) error {
	cyan := color.New(color.FgCyan, color.Bold).SprintFunc()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s\n\n", cyan("Available Commands:"))

	commands := []struct {
		name string
		desc string
	}{
		{"list, ls", "List issues, most severe first"},
		{"show <n|id>", "Show the full description of an issue"},
		{"accept <n|id>", "Apply the automatic fix of an issue"},
		{"revert <n|id>", "Undo an applied fix"},
		{"dismiss <n|id>", "Ignore an open issue"},
		{"detect", "Run issue detection again"},
		{"milestone [name]", "Show or change the targeted milestone"},
		{"status", "Show issue counts and running fixes"},
		{"history [n]", "Show the most recent events"},
		{"help, ?", "Show this help message"},
		{"exit, quit", "Exit the session"},
	}
	for _, cmd := range commands {
		fmt.Fprintf(r.out, "  %-18s %s\n", green(cmd.name), cmd.desc)
	}
	fmt.Fprintln(r.out)
	return nil
}

// cmdExit waits for running fixes, then exits the REPL
func (r *REPL) cmdExit(args []string) error {
	r.Wait()
	green := color.New(color.FgGreen).SprintFunc()
	fmt.Fprintf(r.out, "\n%s Goodbye!\n", green("✓"))
	return io.EOF
}
