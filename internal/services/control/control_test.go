package control

import (
	"context"
	"strings"
	"testing"
)

func TestParseKey(t *testing.T) {
	tests := []struct {
		key      byte
		expected Command
		ok       bool
	}{
		{'q', Quit, true},
		{'Q', Quit, true},
		{'s', Save, true},
		{'i', Info, true},
		{'x', 0, false},
		{'\n', 0, false},
	}

	for _, tt := range tests {
		cmd, ok := ParseKey(tt.key)
		if cmd != tt.expected || ok != tt.ok {
			t.Errorf("ParseKey(%q) = %v, %v; expected %v, %v", tt.key, cmd, ok, tt.expected, tt.ok)
		}
	}
}

func TestKeyReader_ForwardsCommands(t *testing.T) {
	commands := make(chan Command, 4)
	reader := NewKeyReader(strings.NewReader("i\nzs\nq\n"), commands)

	if err := reader.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	expected := []Command{Info, Save, Quit}
	for _, want := range expected {
		select {
		case got := <-commands:
			if got != want {
				t.Errorf("Expected %v, got %v", want, got)
			}
		default:
			t.Fatalf("Expected command %v, channel empty", want)
		}
	}
}

func TestKeyReader_DropsWhenFull(t *testing.T) {
	commands := make(chan Command, 1)
	reader := NewKeyReader(strings.NewReader("sssq"), commands)

	if err := reader.Run(context.Background()); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	if len(commands) != 1 {
		t.Fatalf("Expected exactly one buffered command, got %d", len(commands))
	}
	if got := <-commands; got != Save {
		t.Errorf("Expected first command to be kept, got %v", got)
	}
}
