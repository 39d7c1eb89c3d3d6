package evaluation

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"animalcensus/internal/logger"
	"animalcensus/internal/models"
	"animalcensus/internal/services/counting"

	"gonum.org/v1/gonum/floats"
)

// GroundTruth maps a video path to the expected number of animals per class.
type GroundTruth map[string]map[string]int

// Result scores one video. Predicted holds the largest per-frame count of
// each class seen anywhere in the video.
type Result struct {
	Video         string         `json:"video"`
	Predicted     map[string]int `json:"predicted"`
	GroundTruth   map[string]int `json:"ground_truth"`
	Frames        uint64         `json:"frames"`
	MAE           float64        `json:"mae"`
	MAPE          float64        `json:"mape"`
	Accuracy      float64        `json:"accuracy"`
	CorrectCounts int            `json:"correct_counts"`
	TotalClasses  int            `json:"total_classes"`
}

// Summary averages the per-video metrics.
type Summary struct {
	Videos   int
	MAE      float64
	MAPE     float64
	Accuracy float64
}

type Source interface {
	Next(ctx context.Context) (models.Frame, error)
}

type Detector interface {
	Detect(ctx context.Context, frame models.Frame) ([]models.Detection, error)
}

// LoadGroundTruth reads {"video.mp4": {"zebra": 3}, ...}.
func LoadGroundTruth(path string) (GroundTruth, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read ground truth: %w", err)
	}

	var gt GroundTruth
	if err := json.Unmarshal(data, &gt); err != nil {
		return nil, fmt.Errorf("invalid ground truth %s: %w", path, err)
	}
	for video, counts := range gt {
		for class, n := range counts {
			if n < 0 {
				return nil, fmt.Errorf("negative count for %s in %s", class, video)
			}
		}
	}
	return gt, nil
}

// Videos returns the ground truth keys in a stable order.
func (gt GroundTruth) Videos() []string {
	videos := make([]string, 0, len(gt))
	for v := range gt {
		videos = append(videos, v)
	}
	sort.Strings(videos)
	return videos
}

// ResolveVideo joins relative paths onto dir.
func ResolveVideo(video, dir string) string {
	if filepath.IsAbs(video) || dir == "" {
		return video
	}
	return filepath.Join(dir, video)
}

// CountVideo runs every frame of src through det and returns the per-class
// maximum seen in a single frame. A failed detection counts as an empty frame.
func CountVideo(ctx context.Context, src Source, det Detector, log *logger.Logger) (map[string]int, uint64, error) {
	if log == nil {
		log = logger.NewNop()
	}
	agg := counting.NewAggregator()

	for {
		if err := ctx.Err(); err != nil {
			return nil, 0, err
		}

		frame, err := src.Next(ctx)
		if errors.Is(err, models.ErrEndOfStream) {
			break
		}
		if err != nil {
			return nil, 0, fmt.Errorf("failed to read frame: %w", err)
		}

		detections, err := det.Detect(ctx, frame)
		if err != nil {
			if ctx.Err() != nil {
				return nil, 0, ctx.Err()
			}
			log.Warning("Detection failed on frame %d: %v", frame.Seq, err)
			detections = nil
		}
		agg.Fold(agg.Tally(detections))
	}

	snap := agg.Snapshot()
	return snap.MaxPerFrame, snap.Frames, nil
}

// Score compares predicted counts against the ground truth classes. Classes
// the ground truth does not list are ignored. MAPE skips classes with a
// ground truth of zero. Metrics are rounded to two decimals.
func Score(video string, predicted, truth map[string]int) Result {
	res := Result{
		Video:       filepath.Base(video),
		Predicted:   make(map[string]int, len(predicted)),
		GroundTruth: make(map[string]int, len(truth)),
	}
	for k, v := range predicted {
		res.Predicted[k] = v
	}

	var absErrors, pctErrors []float64
	for class, want := range truth {
		res.GroundTruth[class] = want
		got := predicted[class]

		diff := math.Abs(float64(got - want))
		absErrors = append(absErrors, diff)
		if want > 0 {
			pctErrors = append(pctErrors, diff/float64(want)*100)
		}
		if got == want {
			res.CorrectCounts++
		}
		res.TotalClasses++
	}

	res.MAE = round2(mean(absErrors))
	res.MAPE = round2(mean(pctErrors))
	if res.TotalClasses > 0 {
		res.Accuracy = round2(float64(res.CorrectCounts) / float64(res.TotalClasses) * 100)
	}
	return res
}

// Summarize averages MAE, MAPE and accuracy over all results.
func Summarize(results []Result) Summary {
	s := Summary{Videos: len(results)}
	if len(results) == 0 {
		return s
	}

	mae := make([]float64, len(results))
	mape := make([]float64, len(results))
	acc := make([]float64, len(results))
	for i, r := range results {
		mae[i], mape[i], acc[i] = r.MAE, r.MAPE, r.Accuracy
	}
	s.MAE, s.MAPE, s.Accuracy = mean(mae), mean(mape), mean(acc)
	return s
}

// WriteReport prints the per-video details and the overall averages.
func WriteReport(w io.Writer, results []Result) {
	rule := strings.Repeat("=", 60)
	if len(results) == 0 {
		fmt.Fprintln(w, "No results to display")
		return
	}

	fmt.Fprintf(w, "%s\nRESULTS SUMMARY\n%s\n", rule, rule)
	for _, r := range results {
		fmt.Fprintf(w, "\nVideo: %s (%d frames)\n", r.Video, r.Frames)
		fmt.Fprintf(w, "   MAE:      %.2f animals\n", r.MAE)
		fmt.Fprintf(w, "   MAPE:     %.2f%%\n", r.MAPE)
		fmt.Fprintf(w, "   Accuracy: %.2f%% (%d/%d exact)\n", r.Accuracy, r.CorrectCounts, r.TotalClasses)

		classes := make([]string, 0, len(r.GroundTruth))
		for c := range r.GroundTruth {
			classes = append(classes, c)
		}
		sort.Strings(classes)

		fmt.Fprintln(w, "\n   Details:")
		for _, c := range classes {
			pred, gt := r.Predicted[c], r.GroundTruth[c]
			status := "[OK]"
			if pred != gt {
				status = "[MISS]"
			}
			fmt.Fprintf(w, "     %-6s %-10s: Predicted=%2d, Ground Truth=%2d, Diff=%+3d\n", status, c, pred, gt, pred-gt)
		}
	}

	s := Summarize(results)
	fmt.Fprintf(w, "\n%s\nOVERALL METRICS\n%s\n", rule, rule)
	fmt.Fprintf(w, "Average MAE:      %.2f animals\n", s.MAE)
	fmt.Fprintf(w, "Average MAPE:     %.2f%%\n", s.MAPE)
	fmt.Fprintf(w, "Average Accuracy: %.2f%%\n", s.Accuracy)
	fmt.Fprintln(w, rule)
}

// SaveResults writes results as indented JSON, creating the directory.
func SaveResults(path string, results []Result) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create results directory: %w", err)
	}

	if results == nil {
		results = []Result{}
	}
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode results: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write results: %w", err)
	}
	return nil
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return floats.Sum(values) / float64(len(values))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
