package video

import (
	"fmt"
	"image"
	"image/color"

	"animalcensus/internal/models"

	"gocv.io/x/gocv"
)

var (
	clrWhite = color.RGBA{R: 255, G: 255, B: 255, A: 255}
	clrGreen = color.RGBA{G: 255, A: 255}
	clrBlack = color.RGBA{A: 255}
)

// Annotator draws detections and the statistics panel onto frame copies.
type Annotator struct {
	whitelist     *models.Whitelist
	font          gocv.HersheyFont
	fontScale     float64
	fontThickness int
	lineThickness int
	padding       int
}

func NewAnnotator(whitelist *models.Whitelist) *Annotator {
	return &Annotator{
		whitelist:     whitelist,
		font:          gocv.FontHersheySimplex,
		fontScale:     0.6,
		fontThickness: 2,
		lineThickness: 2,
		padding:       5,
	}
}

// Annotate returns a new frame with a box and label per detection. The input
// frame is never modified; an unusable frame is returned as a plain copy.
func (a *Annotator) Annotate(frame models.Frame, detections []models.Detection) models.Frame {
	mat, err := ToMat(frame)
	if err != nil {
		return frame.Clone()
	}
	defer mat.Close()

	for _, det := range detections {
		box := det.Box.Clamp(frame.Width, frame.Height)
		clr := a.whitelist.ColorOf(det.ClassName)

		rect := image.Rect(box.X, box.Y, box.X+box.Width, box.Y+box.Height)
		gocv.Rectangle(&mat, rect, clr, a.lineThickness)

		label := det.Label()
		textSize := gocv.GetTextSize(label, a.font, a.fontScale, a.fontThickness)

		// etykieta nad ramką, a jeśli brak miejsca to wewnątrz
		top := box.Y - textSize.Y - a.padding
		if top < 0 {
			top = box.Y
		}
		labelRect := image.Rect(box.X, top, box.X+textSize.X, top+textSize.Y+a.padding)
		gocv.Rectangle(&mat, labelRect, clr, -1)
		gocv.PutText(&mat, label, image.Pt(box.X, top+textSize.Y), a.font, a.fontScale, textColorOn(clr), a.fontThickness)
	}

	return a.toFrame(mat, frame)
}

// DrawOverlay returns a new frame with the per-class statistics panel and
// the FPS / frame / detections counters in the top right corner.
func (a *Annotator) DrawOverlay(frame models.Frame, overlay models.Overlay) models.Frame {
	mat, err := ToMat(frame)
	if err != nil {
		return frame.Clone()
	}
	defer mat.Close()

	classes := a.whitelist.Classes()
	panelHeight := 60 + len(classes)*25 + 20

	panel := mat.Clone()
	defer panel.Close()
	gocv.Rectangle(&panel, image.Rect(10, 10, 400, panelHeight), clrBlack, -1)
	gocv.AddWeighted(panel, 0.7, mat, 0.3, 0, &mat)

	gocv.PutText(&mat, "Animal Detection", image.Pt(20, 30), a.font, 0.7, clrWhite, 2)

	y := 60
	totalCurrent, totalMax := 0, 0
	for _, c := range classes {
		current := overlay.Current[c.Name]
		maximum := overlay.MaxPerFrame[c.Name]
		totalCurrent += current
		totalMax += maximum

		text := fmt.Sprintf("%s: %d (Max: %d)", c.Name, current, maximum)
		gocv.PutText(&mat, text, image.Pt(20, y), a.font, 0.5, c.Color, 2)
		y += 25
	}
	gocv.PutText(&mat, fmt.Sprintf("Total: %d (Max Total: %d)", totalCurrent, totalMax),
		image.Pt(20, y+10), a.font, 0.6, clrWhite, 2)

	right := frame.Width - 150
	gocv.PutText(&mat, fmt.Sprintf("FPS: %.1f", overlay.RollingFPS), image.Pt(right, 30), a.font, 0.7, clrGreen, 2)
	gocv.PutText(&mat, fmt.Sprintf("Frame: %d", overlay.FrameSeq), image.Pt(right, 60), a.font, 0.5, clrWhite, 2)
	gocv.PutText(&mat, fmt.Sprintf("Detections: %d", overlay.Detections), image.Pt(right, 85), a.font, 0.5, clrWhite, 2)

	return a.toFrame(mat, frame)
}

func (a *Annotator) toFrame(mat gocv.Mat, src models.Frame) models.Frame {
	out := src
	out.Data = mat.ToBytes()
	return out
}

// textColorOn picks black or white text for readability on a background.
func textColorOn(bg color.RGBA) color.RGBA {
	luma := 0.299*float64(bg.R) + 0.587*float64(bg.G) + 0.114*float64(bg.B)
	if luma > 150 {
		return clrBlack
	}
	return clrWhite
}
