// Command aecsim runs the echo cancellation engine against a synthetic echo
// path and exports the captured tracks and statistics.
//
// A far-end noise source is played through a simulated loudspeaker-to-
// microphone path (delay, attenuation, noise floor) and fed back as the
// near-end input. The selected strategy processes the streams in hardware-
// sized quanta, exactly as it would inside an audio callback.
//
// Examples:
//
//	aecsim -mode align -duration 5s -out ./tracks
//	aecsim -mode nlms -delay-ms 100 -attenuation 0.3 -export-filter nlms.json
//	aecsim -mode rir -config aec.yaml
package main

import (
	"flag"
	"fmt"
	"math"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/cwbudde/algo-aec"
	"github.com/cwbudde/algo-aec/config"
	"github.com/cwbudde/algo-aec/engine"
	"github.com/cwbudde/algo-aec/export"
)

func main() {
	var (
		mode         = flag.String("mode", aec.ModeAlign, "cancellation strategy")
		configPath   = flag.String("config", "", "optional YAML parameter file")
		duration     = flag.Duration("duration", 5*time.Second, "simulated duration")
		sampleRate   = flag.Float64("rate", 48000, "sample rate in Hz")
		quantum      = flag.Int("quantum", 128, "samples per audio callback")
		batchFrames  = flag.Int("batch", 1, "callbacks per logical frame")
		delayMs      = flag.Float64("delay-ms", 100, "simulated echo delay")
		attenuation  = flag.Float64("attenuation", 0.3, "simulated echo attenuation")
		noiseFloorDB = flag.Float64("noise-db", -40, "near-end noise floor in dBFS")
		outDir       = flag.String("out", "", "directory for WAV track export")
		filterPath   = flag.String("export-filter", "", "JSON path for NLMS filter export")
	)
	flag.Parse()

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnixMs
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.InfoLevel)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		if lvl, err := zerolog.ParseLevel(v); err == nil {
			log.Logger = log.Logger.Level(lvl)
		}
	}

	opts := aec.Options{
		SampleRate:  *sampleRate,
		Quantum:     *quantum,
		BatchFrames: *batchFrames,
		Mode:        *mode,
		Logger:      &log.Logger,
	}

	if *configPath != "" {
		file, err := config.Load(*configPath)
		if err != nil {
			log.Fatal().Err(err).Str("path", *configPath).Msg("loading config")
		}

		opts.Overrides = file.Overrides()
	}

	eng, err := aec.New(opts)
	if err != nil {
		log.Fatal().Err(err).Msg("building engine")
	}

	sim := simulation{
		engine:       eng,
		sampleRate:   *sampleRate,
		quantum:      *quantum,
		duration:     *duration,
		delayMs:      *delayMs,
		attenuation:  *attenuation,
		noiseFloor:   math.Pow(10, *noiseFloorDB/20),
		exportFilter: *filterPath != "" && *mode == aec.ModeNLMS,
	}

	res := sim.run()
	printStats(res.stats)

	if *outDir != "" {
		if err := export.WriteTracks(*outDir, res.dump.Tracks, res.dump.SampleRate); err != nil {
			log.Fatal().Err(err).Str("dir", *outDir).Msg("writing tracks")
		}

		log.Info().Str("dir", *outDir).Int("tracks", len(res.dump.Tracks)).Msg("tracks exported")
	}

	if *filterPath != "" {
		if !sim.exportFilter {
			log.Warn().Str("mode", *mode).Msg("filter export requires nlms mode, skipping")
			return
		}

		if err := export.WriteFilter(*filterPath, res.filter); err != nil {
			log.Fatal().Err(err).Str("path", *filterPath).Msg("writing filter")
		}

		log.Info().Str("path", *filterPath).Int("taps", res.filter.FilterLength).Msg("filter exported")
	}
}

// simulation drives the engine with a noise far-end signal and a delayed,
// attenuated copy of it on the near end, plus a low-level noise floor.
type simulation struct {
	engine       *engine.Engine
	sampleRate   float64
	quantum      int
	duration     time.Duration
	delayMs      float64
	attenuation  float64
	noiseFloor   float64
	exportFilter bool
}

type simResult struct {
	dump   engine.TrackDump
	stats  engine.Stats
	filter engine.FilterExport
}

func (s simulation) run() simResult {
	delaySamples := int(math.Round(s.delayMs / 1000 * s.sampleRate))
	totalSamples := int(s.duration.Seconds() * s.sampleRate)
	callbacks := totalSamples / s.quantum

	far := make([]float64, s.quantum)
	near := make([]float64, s.quantum)
	out := make([]float64, s.quantum)
	test := make([]float64, s.quantum)
	echoLine := make([]float64, delaySamples+s.quantum)

	// Deterministic noise source so repeated runs are comparable.
	rng := uint64(0x2545F4914F6CDD1D)
	next := func() float64 {
		rng ^= rng << 13
		rng ^= rng >> 7
		rng ^= rng << 17
		return float64(int64(rng))/float64(math.MaxInt64)*0.5 - 0.25
	}

	s.engine.StartDebugRecording()

	for c := 0; c < callbacks; c++ {
		for i := 0; i < s.quantum; i++ {
			far[i] = next()
		}

		// Advance the echo line by one quantum; samples that have aged past
		// the delay emerge on the near end.
		copy(echoLine, echoLine[s.quantum:])
		copy(echoLine[delaySamples:], far)

		for i := 0; i < s.quantum; i++ {
			near[i] = s.attenuation*echoLine[i] + s.noiseFloor*next()
		}

		s.engine.Process(near, far, out, test)

		// The test channel feeds back through the simulated room so
		// measurement strategies hear their own probe.
		for i := 0; i < s.quantum; i++ {
			echoLine[delaySamples+i] += test[i]
		}
	}

	// Stats, track and filter retrieval all resolve at the next frame
	// boundary, so the callback loop must keep running while the control
	// requests are in flight.
	done := make(chan simResult, 1)

	go func() {
		var res simResult
		res.dump = s.engine.StopDebugRecording()
		if s.exportFilter {
			res.filter = s.engine.ExportFilter(aec.ModeNLMS)
		}
		res.stats = s.engine.Stats()
		done <- res
	}()

	for i := range near {
		near[i] = 0
		far[i] = 0
	}

	for {
		select {
		case res := <-done:
			return res
		default:
			s.engine.Process(near, far, out, test)
		}
	}
}

func printStats(st engine.Stats) {
	fmt.Printf("mode:      %s\n", st.Mode)
	fmt.Printf("frames:    %d\n", st.FrameCount)
	fmt.Printf("overruns:  %d\n", st.OverrunCount)
	fmt.Printf("median:    %.3f ms\n", st.MedianProcessingTimeMs)
	fmt.Printf("p95:       %.3f ms\n", st.P95ProcessingTimeMs)

	if len(st.Strategy) == 0 {
		return
	}

	keys := make([]string, 0, len(st.Strategy))
	for k := range st.Strategy {
		keys = append(keys, k)
	}

	sort.Strings(keys)

	for _, k := range keys {
		fmt.Printf("  %s: %.4f\n", k, st.Strategy[k])
	}
}
