package cmds

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ChesterMargery/PVZTrain/pkg/config"
	"github.com/ChesterMargery/PVZTrain/pkg/game"
	"github.com/ChesterMargery/PVZTrain/pkg/hook"
	"github.com/ChesterMargery/PVZTrain/pkg/layout"
	"github.com/ChesterMargery/PVZTrain/pkg/logflags"
	"github.com/ChesterMargery/PVZTrain/pkg/proc"
	"github.com/ChesterMargery/PVZTrain/pkg/terminal"
	"github.com/ChesterMargery/PVZTrain/pkg/terminal/starbind"
	"github.com/ChesterMargery/PVZTrain/pkg/version"
	"github.com/ChesterMargery/PVZTrain/service"
)

const defaultAddr = "localhost:12345"

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// addr is the bridge listen or connect address.
	addr string
	// layoutFile is the path of a layout descriptor to load instead of the
	// built-in one.
	layoutFile string
	// strategy overrides the interception strategy of the layout.
	strategy string
	// initFile is the path to initialization file.
	initFile string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config
)

const pvztrainLongDesc = `pvztrain is a process trainer for Plants vs. Zombies.

It attaches to a running game process, intercepts the game's main loop and
serves a line-oriented command bridge over TCP. Commands plant, shovel and
fire, restart levels, pick seed cards and read out the live game state, all
executed inside the game's own update tick so the engine never observes a
concurrent mutation.

Start a server with 'pvztrain attach <pid>', then drive it interactively
with 'pvztrain connect' or from a starlark script with 'pvztrain script'.`

// New returns an initialized command tree.
func New() *cobra.Command {
	// Config setup and load.
	conf = config.LoadConfig()
	addrDefault := conf.Addr
	if addrDefault == "" {
		addrDefault = defaultAddr
	}

	// Main pvztrain root command.
	rootCommand = &cobra.Command{
		Use:   "pvztrain",
		Short: "pvztrain is a trainer for Plants vs. Zombies.",
		Long:  pvztrainLongDesc,
	}

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debug logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", "Comma separated list of components that should produce debug output (bridge, proc, hook, fncall).")

	// 'attach' subcommand.
	attachCommand := &cobra.Command{
		Use:   "attach pid",
		Short: "Attach to a running game process and serve the bridge.",
		Long: `Attach to an already running game process and serve the command bridge.

This command will cause pvztrain to take control of the running process,
install the loop interception and answer bridge commands until interrupted.
On exit the interception is removed and the process is detached, leaving
the game running unmodified.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a PID")
			}
			return nil
		},
		Run: attachCmd,
	}
	attachCommand.Flags().StringVarP(&addr, "listen", "l", addrDefault, "Bridge listen address.")
	attachCommand.Flags().StringVar(&layoutFile, "layout", "", "Layout descriptor file. Defaults to the built-in PvZ 1.0.0.1051 layout.")
	attachCommand.Flags().StringVar(&strategy, "strategy", "", `Override the interception strategy ("patch" or "slot").`)
	rootCommand.AddCommand(attachCommand)

	// 'connect' subcommand.
	connectCommand := &cobra.Command{
		Use:   "connect [addr]",
		Short: "Connect to a running bridge server.",
		Long:  "Connect to a running bridge server and start the interactive console.",
		Run:   connectCmd,
	}
	connectCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed before the first prompt.")
	rootCommand.AddCommand(connectCommand)

	// 'script' subcommand.
	scriptCommand := &cobra.Command{
		Use:   "script <file>",
		Short: "Run a starlark script against a bridge server.",
		Long: `Run a starlark script against a running bridge server.

The script can call plant, shovel, fire, reset, enter, choose, rock, back,
speed, state, raw_command and sleep. See the starlark documentation for the
language itself.`,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return errors.New("you must provide a script file")
			}
			return nil
		},
		Run: scriptCmd,
	}
	scriptCommand.Flags().StringVar(&addr, "addr", addrDefault, "Bridge address to connect to.")
	rootCommand.AddCommand(scriptCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("pvztrain\n%s\n", version.TrainVersion)
		},
	}
	rootCommand.AddCommand(versionCommand)

	return rootCommand
}

func attachCmd(cmd *cobra.Command, args []string) {
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid pid: %s\n", args[0])
		os.Exit(1)
	}
	os.Exit(serve(pid))
}

func connectCmd(cmd *cobra.Command, args []string) {
	target := conf.Addr
	if target == "" {
		target = defaultAddr
	}
	if len(args) > 0 {
		target = args[0]
	}
	os.Exit(connect(target))
}

func scriptCmd(cmd *cobra.Command, args []string) {
	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	client, err := service.Dial(addr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to %s: %v\n", addr, err)
		os.Exit(1)
	}
	defer client.Close()

	env := starbind.New(client, os.Stdout)
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	go func() {
		for range ch {
			env.Cancel()
		}
	}()

	if _, err := env.Execute(args[0], nil); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	os.Exit(0)
}

// serve attaches to pid and runs the bridge until SIGINT or target exit.
func serve(pid int) int {
	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	lay, err := loadLayout()
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}

	p, err := proc.Attach(pid)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not attach to pid %d: %v\n", pid, err)
		return 1
	}
	defer p.Detach()
	p.SetPointerSize(lay.PointerSize)
	p.SetReturnTrap(lay.Hook.RetTrap)

	acc := game.NewAccessor(p, p, lay)

	srv, err := service.NewServer(addr, acc)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not start bridge: %v\n", err)
		return 1
	}
	defer srv.Stop()
	fmt.Printf("Bridge listening at: %s\n", srv.Addr())

	var icp hook.Interceptor
	switch lay.Hook.Strategy {
	case layout.StrategySlot:
		icp = hook.NewSlotInterceptor(p, lay.Hook.Slot, lay.Hook.Trampoline, lay.PointerSize)
	default:
		icp = hook.NewPatchInterceptor(p, lay.Hook.Loop, lay.PointerSize*8)
	}

	pump := hook.NewPump(p, icp, srv.Poll)

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		pump.Stop()
	}()

	if err := pump.Run(); err != nil {
		if _, exited := err.(proc.ProcessExitedError); exited {
			fmt.Println(err)
			return 0
		}
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

func loadLayout() (*layout.Layout, error) {
	var lay *layout.Layout
	if layoutFile == "" && conf.Layout != "" {
		layoutFile = conf.Layout
	}
	if layoutFile == "" {
		lay = layout.Default()
	} else {
		var err error
		lay, err = layout.LoadFile(layoutFile)
		if err != nil {
			return nil, err
		}
	}
	if strategy != "" {
		lay.Hook.Strategy = strategy
		if err := lay.Validate(); err != nil {
			return nil, err
		}
	}
	return lay, nil
}

func connect(target string) int {
	if err := logflags.Setup(log, logOutput); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	client, err := service.Dial(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "could not connect to %s: %v\n", target, err)
		return 1
	}
	defer client.Close()

	term := terminal.New(client, conf)
	term.InitFile = initFile
	status, err := term.Run()
	if err != nil {
		fmt.Println(err)
	}
	return status
}
