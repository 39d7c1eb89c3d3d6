package websocket

import (
	"encoding/base64"
	"encoding/json"

	"animalcensus/internal/logger"
	"animalcensus/internal/models"
	"animalcensus/internal/services/counting"
)

// ViewerMessage is the JSON sent to live viewers for each frame.
type ViewerMessage struct {
	Seq       uint64               `json:"seq"`
	Image     string               `json:"image"`
	Frame     models.FrameCount    `json:"frame"`
	Totals    models.SessionTotals `json:"totals"`
	Processed uint64               `json:"frames_processed"`
}

// Publisher turns annotated frames into viewer messages.
type Publisher struct {
	hub      *HubService
	encode   func(models.Frame) ([]byte, error)
	snapshot func() counting.Snapshot
	logger   *logger.Logger
}

func NewPublisher(hub *HubService, encode func(models.Frame) ([]byte, error), snapshot func() counting.Snapshot, log *logger.Logger) *Publisher {
	if log == nil {
		log = logger.NewNop()
	}
	return &Publisher{hub: hub, encode: encode, snapshot: snapshot, logger: log}
}

// Show broadcasts the frame. Encoding is skipped when nobody is watching.
func (p *Publisher) Show(frame models.Frame) {
	if p.hub.GetClientCount() == 0 {
		return
	}

	image, err := p.encode(frame)
	if err != nil {
		p.logger.Warning("Failed to encode frame %d for viewers: %v", frame.Seq, err)
		return
	}

	snap := p.snapshot()
	msg, err := json.Marshal(ViewerMessage{
		Seq:       frame.Seq,
		Image:     base64.StdEncoding.EncodeToString(image),
		Frame:     snap.LastFrame,
		Totals:    snap.Totals,
		Processed: snap.Frames,
	})
	if err != nil {
		p.logger.Warning("Failed to marshal viewer message: %v", err)
		return
	}

	p.hub.Broadcast(msg)
}
