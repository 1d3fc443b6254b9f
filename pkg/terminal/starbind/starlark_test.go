package starbind

import (
	"bufio"
	"bytes"
	"net"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ChesterMargery/PVZTrain/service"
)

// lineRecorder collects the command lines a fake bridge received.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) add(line string) {
	r.mu.Lock()
	r.lines = append(r.lines, line)
	r.mu.Unlock()
}

func (r *lineRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}

// fakeBridge answers every command with OK, except STATE which gets a
// canned snapshot.
func fakeBridge(t *testing.T) (addr string, rec *lineRecorder) {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })

	rec = &lineRecorder{}
	go func() {
		conn, err := l.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		sc := bufio.NewScanner(conn)
		for sc.Scan() {
			line := sc.Text()
			rec.add(line)
			if strings.HasPrefix(line, "STATE") {
				conn.Write([]byte(`{"sun":1234,"wave":5,"total_waves":20,"scene":0,"game_clock":99,"in_game":true,"zombie_count":3,"plant_count":8}` + "\n"))
			} else {
				conn.Write([]byte("OK\n"))
			}
		}
	}()
	return l.Addr().String(), rec
}

func testEnv(t *testing.T) (*Env, *lineRecorder, *bytes.Buffer) {
	addr, rec := fakeBridge(t)
	client, err := service.Dial(addr)
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	out := &bytes.Buffer{}
	return New(client, out), rec, out
}

func TestBuiltinsSendCommands(t *testing.T) {
	env, rec, _ := testEnv(t)

	_, err := env.Execute("test.star", `
plant(2, 5, 0)
shovel(2, 5)
enter(70)
rock()
speed(5)
`)
	require.NoError(t, err)
	assert.Equal(t, []string{"PLANT 2 5 0", "SHOVEL 2 5", "ENTER 70", "ROCK", "SPEED 5"}, rec.all())
}

func TestStateBuiltin(t *testing.T) {
	env, _, out := testEnv(t)

	_, err := env.Execute("test.star", `
s = state()
print(s["sun"])
print(s["in_game"])
`)
	require.NoError(t, err)
	assert.Equal(t, "1234\nTrue\n", out.String())
}

func TestRawCommand(t *testing.T) {
	env, rec, out := testEnv(t)

	_, err := env.Execute("test.star", `print(raw_command("BACK"))`)
	require.NoError(t, err)
	assert.Equal(t, []string{"BACK"}, rec.all())
	assert.Equal(t, "OK\n", out.String())
}

func TestBadArguments(t *testing.T) {
	env, _, _ := testEnv(t)

	_, err := env.Execute("test.star", `plant(1, 2)`)
	require.Error(t, err)
	_, err = env.Execute("test.star", `enter("seventy")`)
	require.Error(t, err)
}
