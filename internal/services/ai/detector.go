package ai

import (
	"context"
	"fmt"
	"image"
	"os"
	"sync"

	"animalcensus/internal/logger"
	"animalcensus/internal/models"
	"animalcensus/internal/services/video"

	"gocv.io/x/gocv"
)

// NetModel runs an SSD-style detection network (1x1xNx7 output) through OpenCV DNN.
type NetModel struct {
	net        gocv.Net
	modelPath  string
	configPath string
	inputSize  image.Point
	logger     *logger.Logger
	mu         sync.Mutex
}

// NewNetModel loads the network from model and config files.
func NewNetModel(modelPath, configPath string, logger *logger.Logger) (*NetModel, error) {
	m := &NetModel{
		modelPath:  modelPath,
		configPath: configPath,
		inputSize:  image.Pt(300, 300),
		logger:     logger,
	}

	if err := m.initializeNet(); err != nil {
		return nil, err
	}
	return m, nil
}

// initializeNet inicjalizuje sieć detekcji z plików modelu i konfiguracji
func (m *NetModel) initializeNet() error {
	if _, err := os.Stat(m.modelPath); os.IsNotExist(err) {
		return fmt.Errorf("model file not found: %s", m.modelPath)
	}

	if _, err := os.Stat(m.configPath); os.IsNotExist(err) {
		return fmt.Errorf("config file not found: %s", m.configPath)
	}

	net := gocv.ReadNet(m.modelPath, m.configPath)
	if net.Empty() {
		return fmt.Errorf("failed to load network")
	}

	errBackend := net.SetPreferableBackend(gocv.NetBackendDefault)
	errTarget := net.SetPreferableTarget(gocv.NetTargetCPU)
	if errBackend != nil || errTarget != nil {
		net.Close()
		return fmt.Errorf("failed to set preferable backend or target")
	}

	m.net = net
	m.logger.Info("Detection network initialized from %s", m.modelPath)
	return nil
}

// Infer runs the network on one frame. Boxes are returned in pixel space.
func (m *NetModel) Infer(ctx context.Context, frame models.Frame) ([]models.RawDetection, error) {
	mat, err := video.ToMat(frame)
	if err != nil {
		return nil, err
	}
	defer mat.Close()

	m.mu.Lock()
	defer m.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	blob := gocv.BlobFromImage(mat, 1.0/127.5, m.inputSize, gocv.NewScalar(127.5, 127.5, 127.5, 0), true, false)
	defer blob.Close()

	m.net.SetInput(blob, "")

	output := m.net.Forward("")
	defer output.Close()

	if output.Total()%7 != 0 {
		return nil, fmt.Errorf("unexpected output size %d", output.Total())
	}

	rows := output.Reshape(1, output.Total()/7)
	defer rows.Close()

	cols := float32(mat.Cols())
	height := float32(mat.Rows())

	results := make([]models.RawDetection, 0, rows.Rows())
	for i := 0; i < rows.Rows(); i++ {
		left := rows.GetFloatAt(i, 3) * cols
		top := rows.GetFloatAt(i, 4) * height
		right := rows.GetFloatAt(i, 5) * cols
		bottom := rows.GetFloatAt(i, 6) * height

		results = append(results, models.RawDetection{
			ClassID:    int(rows.GetFloatAt(i, 1)),
			Confidence: float64(rows.GetFloatAt(i, 2)),
			Box: models.BoundingBox{
				X:      int(left),
				Y:      int(top),
				Width:  int(right - left),
				Height: int(bottom - top),
			},
		})
	}

	return results, nil
}

// Close releases the network.
func (m *NetModel) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.net.Close()
}
