package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/roster"
)

// runEnroll registers an employee from a JSON file of embedding samples.
// The file holds an array of float64 arrays, one per captured face sample.
func runEnroll(args []string) {
	fs := flag.NewFlagSet("enroll", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	id := fs.String("id", "", "employee identifier (required)")
	name := fs.String("name", "", "employee name (required)")
	department := fs.String("department", "", "department")
	shift := fs.String("shift", "", "shift name")
	consent := fs.Bool("consent", false, "employee consented to monitoring")
	samplesPath := fs.String("samples", "", "path to JSON file of embedding samples (required)")
	_ = fs.Parse(args)

	if *id == "" || *name == "" || *samplesPath == "" {
		fmt.Fprintln(os.Stderr, "enroll requires -id, -name and -samples")
		fs.Usage()
		os.Exit(2)
	}
	if !*consent {
		fmt.Fprintln(os.Stderr, "enrollment without -consent is not permitted")
		os.Exit(2)
	}

	samples, err := readSamples(*samplesPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to read samples: %v\n", err)
		os.Exit(1)
	}

	env, err := newEnvironment(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer env.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, modules, err := env.buildRegistry(ctx)
	if err != nil {
		env.Logger.Fatal("module startup failed", zap.Error(err))
	}
	defer reg.StopAll(ctx)

	emp := &roster.Employee{
		ID:           *id,
		Name:         *name,
		Department:   *department,
		Shift:        *shift,
		ConsentGiven: true,
		Active:       true,
		EnrolledAt:   time.Now().UTC(),
	}
	if err := modules.Roster.Enroll(ctx, emp, samples); err != nil {
		env.Logger.Fatal("enrollment failed", zap.Error(err))
	}
	fmt.Printf("enrolled %s (%s) with %d samples\n", emp.Name, emp.ID, len(samples))
}

func readSamples(path string) ([][]float64, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var samples [][]float64
	if err := json.Unmarshal(data, &samples); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if len(samples) == 0 {
		return nil, fmt.Errorf("%s holds no samples", path)
	}
	return samples, nil
}
