package control

import (
	"bufio"
	"context"
	"io"
)

// Command is a user command sampled once per pipeline cycle.
type Command int

const (
	Quit Command = iota + 1
	Save
	Info
)

func (c Command) String() string {
	switch c {
	case Quit:
		return "quit"
	case Save:
		return "save"
	case Info:
		return "info"
	default:
		return "unknown"
	}
}

// ParseKey maps a key press to a command.
func ParseKey(key byte) (Command, bool) {
	switch key {
	case 'q', 'Q':
		return Quit, true
	case 's', 'S':
		return Save, true
	case 'i', 'I':
		return Info, true
	default:
		return 0, false
	}
}

// Send delivers cmd without blocking; it reports false when the slot is full.
func Send(commands chan<- Command, cmd Command) bool {
	select {
	case commands <- cmd:
		return true
	default:
		return false
	}
}

// KeyReader turns bytes read from r (usually stdin) into commands.
type KeyReader struct {
	r        *bufio.Reader
	commands chan<- Command
}

func NewKeyReader(r io.Reader, commands chan<- Command) *KeyReader {
	return &KeyReader{r: bufio.NewReader(r), commands: commands}
}

// Run reads until EOF, a read error or ctx cancellation. Keys arriving while
// the command slot is full are dropped.
func (k *KeyReader) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return nil
		}

		b, err := k.r.ReadByte()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}

		if cmd, ok := ParseKey(b); ok {
			Send(k.commands, cmd)
		}
	}
}
