// Package service runs the promotional video assembly pipeline: two clips
// and a product description in, one narrated and scored video out.
package service

import (
	"context"
	"fmt"
	"strings"
	"sync/atomic"

	"stone-promo/metrics"
	"stone-promo/models"
	"stone-promo/storage"
	"stone-promo/transcode"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"
)

// Transformer performs the media transforms the pipeline is built from.
type Transformer interface {
	Reverse(ctx context.Context, input, output string) error
	Concatenate(ctx context.Context, job transcode.ConcatJob) error
	MixAudio(ctx context.Context, job transcode.MixJob) error
	MuxAudioOntoVideo(ctx context.Context, job transcode.MuxJob) error
}

// Narrator turns a script into speech audio.
type Narrator interface {
	Narrate(ctx context.Context, script string) ([]byte, error)
}

// Composer turns a mood prompt into music audio.
type Composer interface {
	Compose(ctx context.Context, prompt string, durationSeconds, promptInfluence float64) ([]byte, error)
}

// ScriptSource derives narration text from a product.
type ScriptSource interface {
	Script(ctx context.Context, p models.Product) (string, error)
}

// ScoreSettings controls the background music request and its level in the mix.
type ScoreSettings struct {
	Prompt          string
	DurationSeconds float64
	PromptInfluence float64
	Gain            float64
}

// Options tunes an Assembler.
type Options struct {
	MaxConcurrent int64
	Score         ScoreSettings
	Metrics       *metrics.Collector
}

// Request is one assembly job. Clips are decoded video payloads.
type Request struct {
	Clips   [][]byte
	Product models.Product
}

// Result is a finished assembly.
type Result struct {
	RunKey   string
	VideoURL string
	Script   string
}

// Assembler executes the assembly pipeline.
type Assembler struct {
	ws       *storage.Workspace
	engine   Transformer
	narrator Narrator
	composer Composer
	scripts  ScriptSource
	score    ScoreSettings
	metrics  *metrics.Collector
	sem      *semaphore.Weighted
	inFlight atomic.Int64
}

// NewAssembler wires the pipeline collaborators.
func NewAssembler(ws *storage.Workspace, engine Transformer, narrator Narrator, composer Composer, scripts ScriptSource, opts Options) *Assembler {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 1
	}
	if opts.Score.Gain == 0 {
		opts.Score.Gain = transcode.DefaultScoreGain
	}
	if opts.Metrics == nil {
		opts.Metrics = metrics.NewCollector()
	}
	return &Assembler{
		ws:       ws,
		engine:   engine,
		narrator: narrator,
		composer: composer,
		scripts:  scripts,
		score:    opts.Score,
		metrics:  opts.Metrics,
		sem:      semaphore.NewWeighted(opts.MaxConcurrent),
	}
}

// InFlight returns the number of runs currently executing.
func (a *Assembler) InFlight() int64 { return a.inFlight.Load() }

// Validate checks req without side effects.
func Validate(req Request) error {
	if len(req.Clips) != 2 {
		return &ValidationError{Field: "videos", Message: fmt.Sprintf("exactly 2 videos are required, got %d", len(req.Clips))}
	}
	for i, clip := range req.Clips {
		if len(clip) == 0 {
			return &ValidationError{Field: fmt.Sprintf("videos[%d]", i), Message: "empty video payload"}
		}
	}
	if strings.TrimSpace(req.Product.Title) == "" {
		return &ValidationError{Field: "productDescription.title", Message: "is required"}
	}
	return nil
}

// Assemble runs the pipeline for req. Every artifact the run creates is
// deleted before Assemble returns, whatever the outcome.
func (a *Assembler) Assemble(ctx context.Context, req Request) (*Result, error) {
	if err := Validate(req); err != nil {
		return nil, err
	}

	if err := a.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for an assembly slot: %w", err)
	}
	defer a.sem.Release(1)
	a.inFlight.Add(1)
	defer a.inFlight.Add(-1)

	// Once started a run goes to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)

	run := a.ws.NewRun()
	defer run.Cleanup()

	m := a.metrics.StartRun(run.Key())
	defer m.Finalize()

	log.Info().Str("run", run.Key()).Str("product", req.Product.Title).Msg("Starting video assembly")

	p := newPipeline(a, run, m)
	return p.execute(ctx, req)
}

// pipeline holds the artifact paths of one run.
type pipeline struct {
	a   *Assembler
	run *storage.Run
	m   *metrics.RunMetrics

	clipA, clipB, reversed string
	concatList, composite  string
	narration, score, mix  string
	final                  string
}

func newPipeline(a *Assembler, run *storage.Run, m *metrics.RunMetrics) *pipeline {
	key := run.Key()
	return &pipeline{
		a:          a,
		run:        run,
		m:          m,
		clipA:      fmt.Sprintf("video_%s_0.mp4", key),
		clipB:      fmt.Sprintf("video_%s_1.mp4", key),
		reversed:   fmt.Sprintf("video_%s_0_reversed.mp4", key),
		concatList: fmt.Sprintf("concat_list_%s.txt", key),
		composite:  fmt.Sprintf("concatenated_no_audio_%s.mp4", key),
		narration:  fmt.Sprintf("voice_%s.mp3", key),
		score:      fmt.Sprintf("music_%s.mp3", key),
		mix:        fmt.Sprintf("mixed_audio_%s.m4a", key),
		final:      fmt.Sprintf("final_%s.mp4", key),
	}
}

func (p *pipeline) stage(s Stage, fn func() error) error {
	p.m.StartStage(string(s))
	if err := fn(); err != nil {
		p.m.FailStage()
		log.Error().Err(err).Str("run", p.run.Key()).Str("stage", string(s)).Msg("Assembly stage failed")
		return &StageError{Stage: s, Err: err}
	}
	p.m.EndStage()
	return nil
}

func (p *pipeline) execute(ctx context.Context, req Request) (*Result, error) {
	a := p.a
	var (
		clipA, clipB, reversed, composite string
		narration, score, mix, final      string
		script                            string
		video                             []byte
	)

	if err := p.stage(StagePersist, func() error {
		if err := a.ws.EnsureWorkspace(); err != nil {
			return err
		}
		var err error
		if clipA, err = p.run.Write(p.clipA, req.Clips[0]); err != nil {
			return err
		}
		clipB, err = p.run.Write(p.clipB, req.Clips[1])
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageReverse, func() error {
		reversed = p.run.Path(p.reversed)
		return a.engine.Reverse(ctx, clipA, reversed)
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageConcatenate, func() error {
		composite = p.run.Path(p.composite)
		return a.engine.Concatenate(ctx, transcode.ConcatJob{
			Inputs:    []string{clipA, clipB, reversed},
			ListPath:  p.run.Path(p.concatList),
			Output:    composite,
			DropAudio: true,
		})
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageScript, func() error {
		var err error
		script, err = a.scripts.Script(ctx, req.Product)
		if err == nil && strings.TrimSpace(script) == "" {
			err = fmt.Errorf("empty narration script")
		}
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageNarration, func() error {
		audio, err := a.narrator.Narrate(ctx, script)
		if err != nil {
			return err
		}
		narration, err = p.run.Write(p.narration, audio)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageScore, func() error {
		audio, err := a.composer.Compose(ctx, a.score.Prompt, a.score.DurationSeconds, a.score.PromptInfluence)
		if err != nil {
			return err
		}
		score, err = p.run.Write(p.score, audio)
		return err
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageMix, func() error {
		mix = p.run.Path(p.mix)
		return a.engine.MixAudio(ctx, transcode.MixJob{
			Primary:       narration,
			Secondary:     score,
			SecondaryGain: a.score.Gain,
			Output:        mix,
		})
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageMux, func() error {
		final = p.run.Path(p.final)
		return a.engine.MuxAudioOntoVideo(ctx, transcode.MuxJob{
			Video:  composite,
			Audio:  mix,
			Output: final,
		})
	}); err != nil {
		return nil, err
	}

	if err := p.stage(StageReadback, func() error {
		var err error
		video, err = p.run.Read(final)
		return err
	}); err != nil {
		return nil, err
	}

	log.Info().Str("run", p.run.Key()).Int("bytes", len(video)).Msg("Video assembly complete")
	return &Result{
		RunKey:   p.run.Key(),
		VideoURL: EncodeDataURI(VideoMIMEType, video),
		Script:   script,
	}, nil
}
