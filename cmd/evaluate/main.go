package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"animalcensus/internal/config"
	"animalcensus/internal/logger"
	"animalcensus/internal/services/ai"
	"animalcensus/internal/services/detection"
	"animalcensus/internal/services/evaluation"
	"animalcensus/internal/services/video"
)

func main() {
	groundTruth := flag.String("ground-truth", "evaluation/ground_truth_counts.json", "Ground truth counts JSON")
	videoDir := flag.String("videos", "data/videos", "Directory for relative video paths")
	output := flag.String("output", "evaluation/counting_results.json", "Where to write the results")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := config.LoadEnvFile(".env"); err != nil {
		log.Fatalf("%v", err)
	}
	cfg := config.Load()
	logs := logger.New(os.Stderr)

	gt, err := evaluation.LoadGroundTruth(*groundTruth)
	if err != nil {
		log.Fatalf("%v", err)
	}

	whitelist, err := config.LoadClasses(cfg.ClassesPath)
	if err != nil {
		log.Fatalf("Failed to load classes: %v", err)
	}
	model, err := ai.NewNetModel(cfg.ModelPath, cfg.ModelConfigPath, logs)
	if err != nil {
		log.Fatalf("Failed to load model: %v", err)
	}
	defer model.Close()

	adapter, err := detection.NewAdapter(model, whitelist, cfg.ConfidenceThreshold, cfg.DetectionTimeout)
	if err != nil {
		log.Fatalf("%v", err)
	}

	var results []evaluation.Result
	for _, name := range gt.Videos() {
		path := evaluation.ResolveVideo(name, *videoDir)
		logs.Info("Evaluating: %s", path)

		src, err := video.OpenSource(path, 0)
		if err != nil {
			logs.Warning("Skipping %s: %v", path, err)
			continue
		}
		predicted, frames, err := evaluation.CountVideo(ctx, src, adapter, logs)
		src.Close()
		if err != nil {
			if ctx.Err() != nil {
				logs.Warning("Evaluation interrupted")
				break
			}
			logs.Warning("Skipping %s: %v", path, err)
			continue
		}

		result := evaluation.Score(path, predicted, gt[name])
		result.Frames = frames
		results = append(results, result)
	}

	evaluation.WriteReport(os.Stdout, results)

	if err := evaluation.SaveResults(*output, results); err != nil {
		log.Fatalf("%v", err)
	}
	logs.Info("Results saved to: %s", *output)
}
