package main

import (
	"flag"
	"fmt"
	"log"

	"EffortLab/internal/di"
	"EffortLab/internal/usecase"
	"EffortLab/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	out := flag.String("out", "schedule.csv", "output file, .csv or .xlsx")
	seed := flag.Int64("seed", 0, "random seed, 0 uses schedule.seed or the clock")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	svc := usecase.NewScheduleService(di.ScheduleFactors(cfg), cfg.Schedule.Seed)
	n, used, err := svc.WriteFile(*out, *seed)
	if err != nil {
		log.Fatalf("schedule: %v", err)
	}
	fmt.Printf("wrote %d trials to %s (seed %d)\n", n, *out, used)
}
