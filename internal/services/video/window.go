package video

import (
	"animalcensus/internal/models"
	"animalcensus/internal/services/control"

	"gocv.io/x/gocv"
)

// Window shows annotated frames and forwards key presses as commands.
type Window struct {
	window   *gocv.Window
	commands chan<- control.Command
}

func NewWindow(title string, commands chan<- control.Command) *Window {
	return &Window{
		window:   gocv.NewWindow(title),
		commands: commands,
	}
}

// Show displays the frame and polls the keyboard for one millisecond.
func (w *Window) Show(frame models.Frame) {
	mat, err := ToMat(frame)
	if err != nil {
		return
	}
	defer mat.Close()

	w.window.IMShow(mat)

	key := w.window.WaitKey(1)
	if key < 0 {
		return
	}
	if cmd, ok := control.ParseKey(byte(key & 0xFF)); ok {
		control.Send(w.commands, cmd)
	}
}

func (w *Window) Close() error {
	return w.window.Close()
}
