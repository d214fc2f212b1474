package main

import (
	"context"
	"flag"
	"fmt"
	"math"
	"math/rand"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/stressvision/stressvision/internal/roster"
	"github.com/stressvision/stressvision/pkg/models"
)

const embeddingDim = 128

// Emotion mix for the simulator, weighted toward neutral with occasional
// stress-class labels so alert rules can fire on longer runs.
var simulatedEmotions = []struct {
	emotion models.Emotion
	weight  int
}{
	{models.EmotionNeutral, 50},
	{models.EmotionHappy, 15},
	{models.EmotionSurprise, 5},
	{models.EmotionSad, 8},
	{models.EmotionAngry, 8},
	{models.EmotionFear, 4},
	{models.EmotionStressHigh, 5},
	{models.EmotionFatigue, 5},
}

// runSimulate feeds synthetic observations through the full pipeline. It
// enrolls placeholder employees when the roster is empty, so a fresh
// database produces recognizable identities out of the box.
func runSimulate(args []string) {
	fs := flag.NewFlagSet("simulate", flag.ExitOnError)
	configPath := fs.String("config", "", "path to configuration file")
	duration := fs.Duration("duration", time.Minute, "how long to run the simulation")
	fps := fs.Int("fps", 5, "observations per second")
	employees := fs.Int("employees", 3, "number of placeholder employees to enroll when the roster is empty")
	unknownPct := fs.Int("unknown-pct", 10, "percentage of observations with an unenrolled face")
	seed := fs.Int64("seed", time.Now().UnixNano(), "random seed")
	_ = fs.Parse(args)

	env, err := newEnvironment(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	defer env.Close()
	logger := env.Logger

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	reg, modules, err := env.buildRegistry(ctx)
	if err != nil {
		logger.Fatal("module startup failed", zap.Error(err))
	}
	defer reg.StopAll(ctx)

	rng := rand.New(rand.NewSource(*seed))
	bases, err := ensureEnrolled(ctx, modules.Roster, *employees, rng)
	if err != nil {
		logger.Fatal("placeholder enrollment failed", zap.Error(err))
	}

	sess, err := modules.Eventlog.StartSession(ctx, "simulator")
	if err != nil {
		logger.Fatal("failed to start session", zap.Error(err))
	}
	logger.Info("simulation started",
		zap.String("session_id", sess.ID),
		zap.Duration("duration", *duration),
		zap.Int("fps", *fps),
	)

	recorder := modules.Eventlog.Recorder()
	deadline := time.Now().Add(*duration)
	interval := time.Second / time.Duration(*fps)
	var sent, dropped int
	for time.Now().Before(deadline) {
		obs := syntheticObservation(bases, *unknownPct, rng)
		if recorder.Record(obs) {
			sent++
		} else {
			dropped++
		}
		time.Sleep(interval)
	}

	if err := modules.Eventlog.EndSession(ctx); err != nil {
		logger.Warn("failed to end session", zap.Error(err))
	}

	snap := modules.Console.DashboardSnapshot(ctx)
	fmt.Printf("simulation complete: %d sent, %d dropped\n", sent, dropped)
	fmt.Printf("last hour: %d detections, %d employees, %.1f%% stress, %d pending alerts\n",
		snap.LastHourDetections, snap.ActiveEmployees, snap.OverallStressPct, snap.PendingAlertCount)
}

// ensureEnrolled returns the embedding base vector per enrolled employee,
// enrolling placeholders first when the roster is empty.
func ensureEnrolled(ctx context.Context, mod *roster.Module, n int, rng *rand.Rand) (map[string][]float64, error) {
	existing, err := mod.Store().ListEmployees(ctx, true)
	if err != nil {
		return nil, err
	}

	bases := make(map[string][]float64)
	if len(existing) > 0 {
		enrolled, err := mod.Store().ListEnrollments(ctx)
		if err != nil {
			return nil, err
		}
		for _, e := range enrolled {
			bases[e.EmployeeID] = e.Samples[0]
		}
		return bases, nil
	}

	for i := 1; i <= n; i++ {
		id := fmt.Sprintf("sim-%03d", i)
		base := randomUnitVector(rng)
		samples := make([][]float64, 3)
		for j := range samples {
			samples[j] = jitter(base, 0.01, rng)
		}
		emp := &roster.Employee{
			ID:           id,
			Name:         fmt.Sprintf("Simulated Employee %d", i),
			Department:   "simulation",
			ConsentGiven: true,
			Active:       true,
			EnrolledAt:   time.Now().UTC(),
		}
		if err := mod.Enroll(ctx, emp, samples); err != nil {
			return nil, err
		}
		bases[id] = base
	}
	return bases, nil
}

func syntheticObservation(bases map[string][]float64, unknownPct int, rng *rand.Rand) models.Observation {
	var embedding []float64
	if rng.Intn(100) < unknownPct || len(bases) == 0 {
		embedding = randomUnitVector(rng)
	} else {
		pick := rng.Intn(len(bases))
		for _, base := range bases {
			if pick == 0 {
				embedding = jitter(base, 0.02, rng)
				break
			}
			pick--
		}
	}

	return models.Observation{
		Embedding:  embedding,
		Emotion:    pickEmotion(rng),
		Confidence: 0.5 + rng.Float64()*0.5,
		Region: models.FaceRegion{
			X: rng.Intn(500), Y: rng.Intn(300), Width: 120, Height: 120,
		},
		ObservedAt: time.Now().UTC(),
	}
}

func pickEmotion(rng *rand.Rand) models.Emotion {
	total := 0
	for _, e := range simulatedEmotions {
		total += e.weight
	}
	roll := rng.Intn(total)
	for _, e := range simulatedEmotions {
		if roll < e.weight {
			return e.emotion
		}
		roll -= e.weight
	}
	return models.EmotionNeutral
}

func randomUnitVector(rng *rand.Rand) []float64 {
	v := make([]float64, embeddingDim)
	var norm float64
	for i := range v {
		v[i] = rng.NormFloat64()
		norm += v[i] * v[i]
	}
	norm = 1 / (1e-12 + math.Sqrt(norm))
	for i := range v {
		v[i] *= norm
	}
	return v
}

func jitter(base []float64, scale float64, rng *rand.Rand) []float64 {
	v := make([]float64, len(base))
	for i := range base {
		v[i] = base[i] + rng.NormFloat64()*scale
	}
	return v
}
