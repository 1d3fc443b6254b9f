// Package terminal implements the interactive console for a trainer
// bridge: it reads user input and dispatches to bridge commands.
package terminal

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cosiner/argv"

	"github.com/ChesterMargery/PVZTrain/service"
)

type cmdfunc func(t *Term, args []string) error

type command struct {
	aliases        []string
	builtinAliases []string
	helpMsg        string
	cmdFn          cmdfunc
}

// Returns true if the command string matches one of the aliases for this command
func (c command) match(cmdstr string) bool {
	for _, v := range c.aliases {
		if v == cmdstr {
			return true
		}
	}
	return false
}

// Commands represents the commands of the trainer console.
type Commands struct {
	cmds   []command
	client *service.Client
}

// TrainCommands returns a Commands struct with the default trainer commands.
func TrainCommands(client *service.Client) *Commands {
	c := &Commands{client: client}

	c.cmds = []command{
		{aliases: []string{"help", "h"}, cmdFn: c.help, helpMsg: `Prints the help message.

	help [command]

Type "help" followed by the name of a command for more information about it.`},
		{aliases: []string{"state", "st"}, cmdFn: c.state, helpMsg: "Print the current game state."},
		{aliases: []string{"plant", "p"}, cmdFn: c.plant, helpMsg: `Put a plant on the lawn.

	plant <row> <col> <type>

Rows and columns are zero based. Type is the plant's seed index.`},
		{aliases: []string{"shovel", "sh"}, cmdFn: c.shovel, helpMsg: `Remove the plant at a grid cell.

	shovel <row> <col>`},
		{aliases: []string{"fire"}, cmdFn: c.fire, helpMsg: `Fire a cob cannon at screen coordinates.

	fire <x> <y>`},
		{aliases: []string{"reset"}, cmdFn: c.reset, helpMsg: "Restart the current level from scratch."},
		{aliases: []string{"enter"}, cmdFn: c.enter, helpMsg: `Enter a level from the main menu.

	enter <mode>

Mode 70 is Adventure level 1-1; see the mode table for others.`},
		{aliases: []string{"choose", "ch"}, cmdFn: c.choose, helpMsg: `Pick a card in the seed chooser.

	choose <type>`},
		{aliases: []string{"rock"}, cmdFn: c.rock, helpMsg: "Confirm the seed selection and start the level."},
		{aliases: []string{"back"}, cmdFn: c.back, helpMsg: "Leave the current level and return to the main menu."},
		{aliases: []string{"speed"}, cmdFn: c.speed, helpMsg: `Set the game tick interval.

	speed <ms>

The stock game runs at 10ms per tick. Smaller is faster.`},
		{aliases: []string{"raw"}, cmdFn: c.raw, helpMsg: `Send a raw protocol line to the bridge and print the response.

	raw <verb> [args...]`},
		{aliases: []string{"source"}, cmdFn: c.source, helpMsg: `Executes a file containing a list of trainer commands.

	source <path>`},
		{aliases: []string{"exit", "quit", "q"}, cmdFn: exitCommand, helpMsg: "Exit the trainer console."},
	}

	return c
}

// Merge takes aliases defined in the config struct and merges them with the default aliases.
func (c *Commands) Merge(allAliases map[string][]string) {
	for i := range c.cmds {
		if c.cmds[i].builtinAliases != nil {
			c.cmds[i].aliases = append(c.cmds[i].aliases[:0], c.cmds[i].builtinAliases...)
		}
	}
	for i := range c.cmds {
		if aliases, ok := allAliases[c.cmds[i].aliases[0]]; ok {
			if c.cmds[i].builtinAliases == nil {
				c.cmds[i].builtinAliases = make([]string, len(c.cmds[i].aliases))
				copy(c.cmds[i].builtinAliases, c.cmds[i].aliases)
			}
			c.cmds[i].aliases = append(c.cmds[i].aliases, aliases...)
		}
	}
}

// Find will look up the command function for the given command input.
// If it cannot find the command it will default to noCmdAvailable().
func (c *Commands) Find(cmdstr string) cmdfunc {
	if cmdstr == "" {
		return nullCommand
	}
	for _, v := range c.cmds {
		if v.match(cmdstr) {
			return v.cmdFn
		}
	}
	return noCmdAvailable
}

// Call takes a command to execute.
func (c *Commands) Call(cmdstr string, t *Term) error {
	words, err := argv.Argv(cmdstr, func(s string) (string, error) { return s, nil }, nil)
	if err != nil {
		return err
	}
	if len(words) == 0 || len(words[0]) == 0 {
		return nil
	}
	return c.Find(words[0][0])(t, words[0][1:])
}

var noCmdError = errors.New("command not available")

func noCmdAvailable(t *Term, args []string) error {
	return noCmdError
}

func nullCommand(t *Term, args []string) error {
	return nil
}

func (c *Commands) help(t *Term, args []string) error {
	if len(args) > 0 {
		for _, cmd := range c.cmds {
			for _, alias := range cmd.aliases {
				if alias == args[0] {
					fmt.Println(cmd.helpMsg)
					return nil
				}
			}
		}
		return noCmdError
	}

	fmt.Println("The following commands are available:")
	w := new(tabwriter.Writer)
	w.Init(os.Stdout, 0, 8, 0, '-', 0)
	for _, cmd := range c.cmds {
		h := cmd.helpMsg
		if idx := strings.Index(h, "\n"); idx >= 0 {
			h = h[:idx]
		}
		if len(cmd.aliases) > 1 {
			fmt.Fprintf(w, "    %s (alias: %s) \t %s\n", cmd.aliases[0], strings.Join(cmd.aliases[1:], " | "), h)
		} else {
			fmt.Fprintf(w, "    %s \t %s\n", cmd.aliases[0], h)
		}
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Println()
	return nil
}

func (c *Commands) state(t *Term, args []string) error {
	snap, err := c.client.State()
	if err != nil {
		return err
	}
	if !snap.InGame {
		t.Println("", "no game loaded")
		return nil
	}
	t.Println("", fmt.Sprintf("sun:     %d", snap.Sun))
	t.Println("", fmt.Sprintf("wave:    %d/%d", snap.Wave, snap.TotalWaves))
	t.Println("", fmt.Sprintf("clock:   %d", snap.GameClock))
	t.Println("", fmt.Sprintf("scene:   %d", snap.Scene))
	t.Println("", fmt.Sprintf("plants:  %d", snap.PlantCount))
	t.Println("", fmt.Sprintf("zombies: %d", snap.ZombieCount))
	return nil
}

func (c *Commands) plant(t *Term, args []string) error {
	v, err := intArgs(args, 3, "plant <row> <col> <type>")
	if err != nil {
		return err
	}
	return c.client.Plant(v[0], v[1], v[2])
}

func (c *Commands) shovel(t *Term, args []string) error {
	v, err := intArgs(args, 2, "shovel <row> <col>")
	if err != nil {
		return err
	}
	return c.client.Shovel(v[0], v[1])
}

func (c *Commands) fire(t *Term, args []string) error {
	v, err := intArgs(args, 2, "fire <x> <y>")
	if err != nil {
		return err
	}
	return c.client.Fire(v[0], v[1])
}

func (c *Commands) reset(t *Term, args []string) error {
	return c.client.Reset()
}

func (c *Commands) enter(t *Term, args []string) error {
	v, err := intArgs(args, 1, "enter <mode>")
	if err != nil {
		return err
	}
	return c.client.Enter(v[0])
}

func (c *Commands) choose(t *Term, args []string) error {
	v, err := intArgs(args, 1, "choose <type>")
	if err != nil {
		return err
	}
	return c.client.Choose(v[0])
}

func (c *Commands) rock(t *Term, args []string) error {
	return c.client.Rock()
}

func (c *Commands) back(t *Term, args []string) error {
	return c.client.Back()
}

func (c *Commands) speed(t *Term, args []string) error {
	v, err := intArgs(args, 1, "speed <ms>")
	if err != nil {
		return err
	}
	return c.client.Speed(v[0])
}

func (c *Commands) raw(t *Term, args []string) error {
	if len(args) == 0 {
		return errors.New("usage: raw <verb> [args...]")
	}
	resp, err := c.client.Send(strings.Join(args, " "))
	if err != nil {
		return err
	}
	t.Println("", resp)
	return nil
}

func (c *Commands) source(t *Term, args []string) error {
	if len(args) != 1 {
		return errors.New("wrong number of arguments: source <path>")
	}
	return c.executeFile(t, args[0])
}

func (c *Commands) executeFile(t *Term, name string) error {
	fh, err := os.Open(name)
	if err != nil {
		return err
	}
	defer fh.Close()

	scanner := bufio.NewScanner(fh)
	lineno := 0
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		lineno++

		if line == "" || line[0] == '#' {
			continue
		}

		if err := c.Call(line, t); err != nil {
			if _, isExitRequest := err.(ExitRequestError); isExitRequest {
				return err
			}
			fmt.Printf("%s:%d: %v\n", name, lineno, err)
		}
	}

	return scanner.Err()
}

// ExitRequestError is returned when the user
// exits the trainer console.
type ExitRequestError struct{}

func (ere ExitRequestError) Error() string {
	return ""
}

func exitCommand(t *Term, args []string) error {
	return ExitRequestError{}
}

func intArgs(args []string, n int, usage string) ([]int, error) {
	if len(args) != n {
		return nil, fmt.Errorf("wrong number of arguments: %s", usage)
	}
	v := make([]int, n)
	for i := range args {
		x, err := strconv.Atoi(args[i])
		if err != nil {
			return nil, fmt.Errorf("%q is not a number: %s", args[i], usage)
		}
		v[i] = x
	}
	return v, nil
}
