package service

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ChesterMargery/PVZTrain/pkg/game"
)

// Client talks to a bridge server. Calls are synchronous: one line out,
// one line back. It is not safe for concurrent use.
type Client struct {
	conn net.Conn
	rd   *bufio.Reader
}

// Dial connects to a bridge listening on addr.
func Dial(addr string) (*Client, error) {
	conn, err := net.Dial("tcp", addr)
	if err != nil {
		return nil, err
	}
	return &Client{conn: conn, rd: bufio.NewReader(conn)}, nil
}

// Close tears down the connection.
func (c *Client) Close() error {
	return c.conn.Close()
}

// Send writes one raw command line and returns the response line with the
// terminator stripped.
func (c *Client) Send(line string) (string, error) {
	if _, err := fmt.Fprintf(c.conn, "%s\n", line); err != nil {
		return "", err
	}
	resp, err := c.rd.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimRight(resp, "\r\n"), nil
}

// command sends a line and converts an ERR response into an error.
func (c *Client) command(line string) error {
	resp, err := c.Send(line)
	if err != nil {
		return err
	}
	if resp != respOK {
		return errors.New(strings.TrimPrefix(resp, "ERR "))
	}
	return nil
}

func (c *Client) Plant(row, col, typ int) error {
	return c.command(fmt.Sprintf("PLANT %d %d %d", row, col, typ))
}

func (c *Client) Shovel(row, col int) error {
	return c.command(fmt.Sprintf("SHOVEL %d %d", row, col))
}

func (c *Client) Fire(x, y int) error {
	return c.command(fmt.Sprintf("FIRE %d %d", x, y))
}

func (c *Client) Reset() error {
	return c.command("RESET")
}

func (c *Client) Enter(mode int) error {
	return c.command(fmt.Sprintf("ENTER %d", mode))
}

func (c *Client) Choose(typ int) error {
	return c.command(fmt.Sprintf("CHOOSE %d", typ))
}

func (c *Client) Rock() error {
	return c.command("ROCK")
}

func (c *Client) Back() error {
	return c.command("BACK")
}

func (c *Client) Speed(ms int) error {
	return c.command(fmt.Sprintf("SPEED %d", ms))
}

// State requests a snapshot of the target's observable state.
func (c *Client) State() (game.Snapshot, error) {
	var snap game.Snapshot
	resp, err := c.Send("STATE")
	if err != nil {
		return snap, err
	}
	if strings.HasPrefix(resp, "ERR ") {
		return snap, errors.New(strings.TrimPrefix(resp, "ERR "))
	}
	if err := json.Unmarshal([]byte(resp), &snap); err != nil {
		return snap, err
	}
	return snap, nil
}
