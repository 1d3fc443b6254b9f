package terminal

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/go-delve/liner"
	"github.com/mattn/go-isatty"

	"github.com/ChesterMargery/PVZTrain/pkg/config"
	"github.com/ChesterMargery/PVZTrain/service"
)

const historyFile string = ".pvztrain_history"

// Term represents the interactive trainer console.
type Term struct {
	client *service.Client
	conf   *config.Config
	prompt string
	line   *liner.State
	cmds   *Commands
	dumb   bool
	stdout io.Writer

	// InitFile, when set, is a command script executed before the first
	// prompt.
	InitFile string
}

// New returns a new Term wrapping client.
func New(client *service.Client, conf *config.Config) *Term {
	cmds := TrainCommands(client)
	if conf != nil && conf.Aliases != nil {
		cmds.Merge(conf.Aliases)
	}
	if conf == nil {
		conf = &config.Config{}
	}

	var w io.Writer
	dumb := strings.ToLower(os.Getenv("TERM")) == "dumb" || !isatty.IsTerminal(os.Stdout.Fd())
	if dumb {
		w = os.Stdout
	} else {
		w = getColorableWriter()
	}

	return &Term{
		client: client,
		conf:   conf,
		prompt: "(pvztrain) ",
		line:   liner.NewLiner(),
		cmds:   cmds,
		dumb:   dumb,
		stdout: w,
	}
}

// Close returns the terminal to its previous mode.
func (t *Term) Close() {
	t.line.Close()
}

// Run begins the trainer console read/dispatch loop.
func (t *Term) Run() (int, error) {
	defer t.Close()

	t.line.SetCompleter(func(line string) (c []string) {
		for _, cmd := range t.cmds.cmds {
			for _, alias := range cmd.aliases {
				if strings.HasPrefix(alias, strings.ToLower(line)) {
					c = append(c, alias)
				}
			}
		}
		return
	})

	fullHistoryFile, err := config.GetConfigFilePath(historyFile)
	if err != nil {
		fmt.Printf("Unable to load history file: %v.\n", err)
	}
	f, err := os.Open(fullHistoryFile)
	if err != nil {
		f, err = os.Create(fullHistoryFile)
		if err != nil {
			fmt.Printf("Unable to open history file: %v. History will not be saved for this session.\n", err)
		}
	}
	t.line.ReadHistory(f)
	f.Close()
	fmt.Println("Type 'help' for list of commands.")

	if t.InitFile != "" {
		err := t.cmds.executeFile(t, t.InitFile)
		if err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Error executing init file: %s\n", err)
		}
	}

	for {
		cmdstr, err := t.promptForInput()
		if err != nil {
			if err == io.EOF {
				fmt.Println("exit")
				return t.handleExit()
			}
			if err == liner.ErrPromptAborted {
				continue
			}
			return 1, fmt.Errorf("Prompt for input failed.\n")
		}

		if err := t.cmds.Call(cmdstr, t); err != nil {
			if _, ok := err.(ExitRequestError); ok {
				return t.handleExit()
			}
			fmt.Fprintf(os.Stderr, "Command failed: %s\n", err)
		}
	}
}

// Println prints a line to the terminal.
func (t *Term) Println(prefix, str string) {
	fmt.Fprintf(t.stdout, "%s%s\n", prefix, str)
}

func (t *Term) promptForInput() (string, error) {
	l, err := t.line.Prompt(t.prompt)
	if err != nil {
		return "", err
	}
	l = strings.TrimSuffix(l, "\n")
	if l != "" {
		t.line.AppendHistory(l)
	}
	return l, nil
}

func (t *Term) handleExit() (int, error) {
	if fullHistoryFile, err := config.GetConfigFilePath(historyFile); err == nil {
		if f, err := os.OpenFile(fullHistoryFile, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0600); err == nil {
			_, _ = t.line.WriteHistory(f)
			f.Close()
		}
	}
	return 0, nil
}
