package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/lexiqai/interpreter/internal/config"
	"github.com/lexiqai/interpreter/internal/device"
	"github.com/lexiqai/interpreter/internal/pipeline"
	"github.com/lexiqai/interpreter/internal/playback"
	"github.com/lexiqai/interpreter/internal/status"
	"github.com/lexiqai/interpreter/internal/transcript"
)

const fileSink = "file"

type renderOptions struct {
	vttPath   string
	meetingID string
	outPath   string
	drain     time.Duration
}

func newRenderCmd() *cobra.Command {
	var opts renderOptions

	cmd := &cobra.Command{
		Use:   "render",
		Short: "Translate a transcript offline into a WAV file",
		Long: `Translate a transcript offline into a WAV file.

Runs the same pipeline as a live session with a file output: every
sentence is translated, synthesized and laid out back to back.

Examples:
  server render --vtt meeting.vtt --out meeting.es.wav
  server render --meeting 85312345678 --out standup.wav`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if (opts.vttPath == "") == (opts.meetingID == "") {
				return errors.New("exactly one of --vtt or --meeting is required")
			}

			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			return runRender(cmd.Context(), cfg, logger, opts)
		},
	}

	cmd.Flags().StringVar(&opts.vttPath, "vtt", "", "caption document to translate")
	cmd.Flags().StringVar(&opts.meetingID, "meeting", "", "meeting whose recorded transcript to translate")
	cmd.Flags().StringVarP(&opts.outPath, "out", "o", "", "output WAV file")
	cmd.Flags().DurationVar(&opts.drain, "drain-timeout", 30*time.Minute, "maximum time to wait for the pipeline to finish")
	cmd.MarkFlagRequired("out")
	return cmd
}

func runRender(ctx context.Context, cfg *config.Config, logger zerolog.Logger, opts renderOptions) error {
	svc, err := newServices(ctx, cfg, logger)
	if err != nil {
		return err
	}

	var doc string
	if opts.vttPath != "" {
		data, err := os.ReadFile(opts.vttPath)
		if err != nil {
			return fmt.Errorf("failed to read transcript: %w", err)
		}
		doc = string(data)
	} else {
		doc, err = svc.archives.FetchTranscript(ctx, opts.meetingID)
		if err != nil {
			return fmt.Errorf("failed to fetch meeting transcript: %w", err)
		}
	}

	broadcaster := status.NewBroadcaster(logger)
	events := &status.Recorder{}
	broadcaster.Subscribe(events.Report)

	registry := device.NewRegistry(device.StaticProvider{Devices: []device.Device{
		{ID: fileSink, Label: opts.outPath, Kind: device.KindOutput},
	}}, broadcaster, logger)
	if err := registry.Refresh(ctx); err != nil {
		return err
	}

	output := playback.NewWAVOutput(cfg.SynthesisSampleRate)
	translator, synthesizer := svc.stages(broadcaster)
	session := pipeline.NewSession(pipeline.Deps{
		Translator:  translator,
		Synthesizer: synthesizer,
		Output:      output.Factory(),
		SampleRate:  cfg.SynthesisSampleRate,
		MaxPending:  cfg.QueueMaxPending,
		Reporter:    broadcaster,
		Logger:      logger,
	})

	sink, _ := registry.Lookup(fileSink)
	if err := session.SetOutputDevice(ctx, sink.ID); err != nil {
		return err
	}
	if err := session.Resume(ctx); err != nil {
		return err
	}

	// Offline there is no reason to throttle submissions
	n, err := transcript.NewImporter(session, 0, logger).Import(ctx, doc)
	if err != nil {
		session.Close(context.Background())
		return fmt.Errorf("failed to import transcript: %w", err)
	}

	drainCtx, cancel := context.WithTimeout(ctx, opts.drain)
	defer cancel()
	if err := session.Close(drainCtx); err != nil {
		return fmt.Errorf("pipeline did not finish: %w", err)
	}

	f, err := os.Create(opts.outPath)
	if err != nil {
		return fmt.Errorf("failed to create output: %w", err)
	}
	defer f.Close()
	if err := output.WriteWAV(f); err != nil {
		return fmt.Errorf("failed to write WAV: %w", err)
	}

	failures := 0
	for _, e := range events.Events() {
		if e.IsFailure() {
			failures++
		}
	}
	logger.Info().
		Int("segments", n).
		Int("failures", failures).
		Dur("duration", output.Duration()).
		Str("out", opts.outPath).
		Msg("Render complete")

	if lost := events.Count(status.KindPlayback); lost > 0 {
		return fmt.Errorf("%d buffers could not be placed; %s is incomplete", lost, opts.outPath)
	}
	return nil
}
