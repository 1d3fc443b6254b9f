// Package starbind exposes the trainer bridge to starlark scripts.
package starbind

import (
	"context"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	startime "go.starlark.net/lib/time"
	"go.starlark.net/resolve"
	"go.starlark.net/starlark"

	"github.com/ChesterMargery/PVZTrain/service"
)

const trainContextName = "train_context"

func init() {
	resolve.AllowNestedDef = true
	resolve.AllowLambda = true
	resolve.AllowFloat = true
	resolve.AllowSet = true
	resolve.AllowBitwise = true
	resolve.AllowRecursion = true
	resolve.AllowGlobalReassign = true
}

// Env is the environment used to evaluate starlark scripts.
type Env struct {
	env       starlark.StringDict
	contextMu sync.Mutex
	thread    *starlark.Thread
	cancelfn  context.CancelFunc

	client *service.Client
	out    io.Writer
}

// New creates a new starlark binding environment around client.
func New(client *service.Client, out io.Writer) *Env {
	env := &Env{client: client, out: out}

	// Make the "time" module available to starlark scripts.
	starlark.Universe["time"] = startime.Module

	env.env = starlark.StringDict{}

	intBuiltin := func(name string, nargs int, fn func(v []int) error) {
		env.env[name] = starlark.NewBuiltin(name, func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := isCancelled(thread); err != nil {
				return starlark.None, err
			}
			if len(args) != nargs {
				return nil, decorateError(thread, fmt.Errorf("%s takes %d arguments", name, nargs))
			}
			v := make([]int, nargs)
			for i := range args {
				x, err := starlark.AsInt32(args[i])
				if err != nil {
					return nil, decorateError(thread, fmt.Errorf("argument %d of %s is not an integer", i, name))
				}
				v[i] = x
			}
			return starlark.None, decorateError(thread, fn(v))
		})
	}

	intBuiltin("plant", 3, func(v []int) error { return client.Plant(v[0], v[1], v[2]) })
	intBuiltin("shovel", 2, func(v []int) error { return client.Shovel(v[0], v[1]) })
	intBuiltin("fire", 2, func(v []int) error { return client.Fire(v[0], v[1]) })
	intBuiltin("reset", 0, func(v []int) error { return client.Reset() })
	intBuiltin("enter", 1, func(v []int) error { return client.Enter(v[0]) })
	intBuiltin("choose", 1, func(v []int) error { return client.Choose(v[0]) })
	intBuiltin("rock", 0, func(v []int) error { return client.Rock() })
	intBuiltin("back", 0, func(v []int) error { return client.Back() })
	intBuiltin("speed", 1, func(v []int) error { return client.Speed(v[0]) })

	env.env["state"] = starlark.NewBuiltin("state", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		snap, err := client.State()
		if err != nil {
			return nil, decorateError(thread, err)
		}
		d := starlark.NewDict(8)
		d.SetKey(starlark.String("sun"), starlark.MakeInt(int(snap.Sun)))
		d.SetKey(starlark.String("wave"), starlark.MakeInt(int(snap.Wave)))
		d.SetKey(starlark.String("total_waves"), starlark.MakeInt(int(snap.TotalWaves)))
		d.SetKey(starlark.String("scene"), starlark.MakeInt(int(snap.Scene)))
		d.SetKey(starlark.String("game_clock"), starlark.MakeInt(int(snap.GameClock)))
		d.SetKey(starlark.String("in_game"), starlark.Bool(snap.InGame))
		d.SetKey(starlark.String("zombie_count"), starlark.MakeInt(snap.ZombieCount))
		d.SetKey(starlark.String("plant_count"), starlark.MakeInt(snap.PlantCount))
		return d, nil
	})

	env.env["raw_command"] = starlark.NewBuiltin("raw_command", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if err := isCancelled(thread); err != nil {
			return starlark.None, err
		}
		if len(args) != 1 {
			return nil, decorateError(thread, fmt.Errorf("raw_command takes 1 argument"))
		}
		line, ok := args[0].(starlark.String)
		if !ok {
			return nil, decorateError(thread, fmt.Errorf("argument of raw_command is not a string"))
		}
		resp, err := client.Send(string(line))
		if err != nil {
			return nil, decorateError(thread, err)
		}
		return starlark.String(resp), nil
	})

	env.env["sleep"] = starlark.NewBuiltin("sleep", func(thread *starlark.Thread, _ *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(args) != 1 {
			return nil, decorateError(thread, fmt.Errorf("sleep takes 1 argument"))
		}
		ms, err := starlark.AsInt32(args[0])
		if err != nil {
			return nil, decorateError(thread, fmt.Errorf("argument of sleep is not an integer"))
		}
		d := time.Duration(ms) * time.Millisecond
		if ctx, ok := thread.Local(trainContextName).(context.Context); ok {
			select {
			case <-time.After(d):
			case <-ctx.Done():
				return starlark.None, ctx.Err()
			}
		} else {
			time.Sleep(d)
		}
		return starlark.None, nil
	})

	return env
}

func (env *Env) printFunc() func(_ *starlark.Thread, msg string) {
	return func(_ *starlark.Thread, msg string) { fmt.Fprintln(env.out, msg) }
}

// Execute executes a script. Path is the name of the file to execute and
// source is the source code to execute.
// Source can be either a []byte, a string or a io.Reader. If source is nil
// Execute will execute the file specified by 'path'.
func (env *Env) Execute(path string, source interface{}) (_ starlark.Value, _err error) {
	defer func() {
		err := recover()
		if err == nil {
			return
		}
		_err = fmt.Errorf("panic executing starlark script: %v", err)
		fmt.Fprintf(env.out, "panic executing starlark script: %v\n", err)
		for i := 0; ; i++ {
			pc, file, line, ok := runtime.Caller(i)
			if !ok {
				break
			}
			fname := "<unknown>"
			fn := runtime.FuncForPC(pc)
			if fn != nil {
				fname = fn.Name()
			}
			fmt.Fprintf(env.out, "%s\n\tin %s:%d\n", fname, file, line)
		}
	}()

	thread := env.newThread()
	_, err := starlark.ExecFile(thread, path, source, env.env)
	return starlark.None, err
}

// Cancel cancels the execution of a currently running script.
func (env *Env) Cancel() {
	if env == nil {
		return
	}
	env.contextMu.Lock()
	if env.cancelfn != nil {
		env.cancelfn()
		env.cancelfn = nil
	}
	if env.thread != nil {
		env.thread.Cancel("user interrupt")
	}
	env.contextMu.Unlock()
}

func (env *Env) newThread() *starlark.Thread {
	thread := &starlark.Thread{
		Print: env.printFunc(),
	}
	env.contextMu.Lock()
	var ctx context.Context
	ctx, env.cancelfn = context.WithCancel(context.Background())
	env.thread = thread
	env.contextMu.Unlock()
	thread.SetLocal(trainContextName, ctx)
	return thread
}

func isCancelled(thread *starlark.Thread) error {
	if ctx, ok := thread.Local(trainContextName).(context.Context); ok {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
	return nil
}

func decorateError(thread *starlark.Thread, err error) error {
	if err == nil {
		return nil
	}
	pos := thread.CallFrame(1).Pos
	if pos.Col > 0 {
		return fmt.Errorf("%s:%d:%d: %v", pos.Filename(), pos.Line, pos.Col, err)
	}
	return fmt.Errorf("%s:%d: %v", pos.Filename(), pos.Line, err)
}
