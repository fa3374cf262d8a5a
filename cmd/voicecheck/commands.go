package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"voicecheck/internal/audio"
	"voicecheck/internal/bootstrap"
	"voicecheck/internal/domain"
	"voicecheck/internal/usecase"
)

type reportFlags struct {
	part   int
	topic  string
	format string
}

func (f *reportFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&f.part, "part", 1, "speaking test part the answer belongs to (1, 2 or 3)")
	cmd.Flags().StringVar(&f.topic, "topic", "", "topic or question the answer responds to")
	cmd.Flags().StringVar(&f.format, "format", "json", "report format: json or yaml")
}

func (f *reportFlags) request() usecase.AnalysisRequest {
	return usecase.AnalysisRequest{Part: f.part, Topic: f.topic}
}

func (f *reportFlags) validate() error {
	switch f.format {
	case "json", "yaml":
		return nil
	default:
		return fmt.Errorf("unsupported format %q", f.format)
	}
}

func newRootCommand(out, errOut io.Writer) *cobra.Command {
	root := &cobra.Command{
		Use:           "voicecheck",
		Short:         "Record and assess spoken answers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(out)
	root.SetErr(errOut)
	root.AddCommand(newAnalyzeCommand(out, errOut), newRecordCommand(out, errOut))
	return root
}

func newAnalyzeCommand(out, errOut io.Writer) *cobra.Command {
	flags := &reportFlags{}
	cmd := &cobra.Command{
		Use:   "analyze <file.wav>",
		Short: "Analyze an existing 16-bit PCM WAV recording",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			data, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read recording: %w", err)
			}
			artifact, err := audio.ArtifactFromWAV(data)
			if err != nil {
				return fmt.Errorf("failed to load recording %q: %w", args[0], err)
			}

			services, err := bootstrap.Build(nil, errOut)
			if err != nil {
				return err
			}
			report, err := services.Analysis.Analyze(cmd.Context(), artifact, flags.request())
			if err != nil {
				return err
			}
			return writeReport(out, report, flags.format)
		},
	}
	flags.register(cmd)
	return cmd
}

func newRecordCommand(out, errOut io.Writer) *cobra.Command {
	flags := &reportFlags{}
	var (
		seconds int
		meter   bool
	)
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record from the microphone, then analyze the answer",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := flags.validate(); err != nil {
				return err
			}
			if seconds <= 0 {
				return fmt.Errorf("--seconds must be positive, got %d", seconds)
			}

			services, err := bootstrap.Build(newConsoleEvents(errOut, meter), errOut)
			if err != nil {
				return err
			}
			recorder := services.Recorder
			if err := recorder.Begin(cmd.Context()); err != nil {
				return err
			}

			waitCtx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
			timer := time.NewTimer(time.Duration(seconds) * time.Second)
			select {
			case <-timer.C:
			case <-waitCtx.Done():
				timer.Stop()
			}
			stop()

			report, err := recorder.Finish(context.WithoutCancel(cmd.Context()), flags.request())
			if err != nil {
				return err
			}
			return writeReport(out, report, flags.format)
		},
	}
	flags.register(cmd)
	cmd.Flags().IntVar(&seconds, "seconds", 30, "maximum recording length; Ctrl-C stops early")
	cmd.Flags().BoolVar(&meter, "meter", false, "print live volume and pitch while recording")
	return cmd
}

func writeReport(w io.Writer, report domain.AnalysisReport, format string) error {
	switch format {
	case "yaml":
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(report); err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		return enc.Close()
	default:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
}
