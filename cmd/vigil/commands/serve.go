package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/spf13/cobra"

	"github.com/vigil-voice/vigil/pkg/archive"
	"github.com/vigil-voice/vigil/pkg/calllog"
	"github.com/vigil-voice/vigil/pkg/dialog"
	"github.com/vigil-voice/vigil/pkg/emergency"
	"github.com/vigil-voice/vigil/pkg/server"
	"github.com/vigil-voice/vigil/pkg/session"
	"github.com/vigil-voice/vigil/pkg/telephony"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the voice agent server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func runServe(ctx context.Context) error {
	cfg := getConfig()
	logger := slog.Default()

	pipeline, err := buildPipeline(ctx, cfg, logger)
	if err != nil {
		return err
	}

	store, err := openCallLog(cfg)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
		if hours := cfg.CallLog.RetentionHours; hours > 0 {
			if n, err := store.CleanupOlderThan(ctx, time.Duration(hours)*time.Hour); err != nil {
				logger.Warn("call log cleanup failed", "error", err)
			} else if n > 0 {
				logger.Info("call log cleaned up", "removed", n)
			}
		}
	}

	archiveStore, err := buildArchive(cfg)
	if err != nil {
		return err
	}

	phone := telephony.NewClient(cfg.Telephony.AccountSID,
		telephony.WithAuthToken(cfg.Telephony.AuthToken),
	)
	if cfg.Telephony.BaseURL != "" {
		phone = telephony.NewClient(cfg.Telephony.AccountSID,
			telephony.WithAuthToken(cfg.Telephony.AuthToken),
			telephony.WithBaseURL(cfg.Telephony.BaseURL),
		)
	}
	if !phone.Configured() {
		logger.Warn("telephony credentials missing; emergency calls will be simulated")
	}

	orchestrator := emergency.New(phone, store, logger, emergency.Config{
		DispatchNumber: cfg.Telephony.DispatchNumber,
		CallerNumber:   cfg.Telephony.CallerNumber,
		PollInterval:   seconds(cfg.Telephony.PollInterval),
		MaxPolls:       cfg.Telephony.MaxPolls,
	})

	sessions := session.NewManager(pipeline, orchestrator, archiveStore, logger, session.Config{
		EscalationTimeout: seconds(cfg.Escalation.Timeout),
		CheckInterval:     seconds(cfg.Escalation.CheckInterval),
		MaxSilence:        cfg.Escalation.MaxSilence,
		HistoryLimit:      cfg.Escalation.HistoryLimit,
		InputSampleRate:   cfg.Audio.SampleRate,
		InputStereo:       cfg.Audio.Stereo,
	})

	srv := server.New(sessions, logger, server.Config{
		Addr:            cfg.Server.Addr,
		Path:            cfg.Server.Path,
		PingInterval:    seconds(cfg.Server.PingInterval),
		WriteTimeout:    seconds(cfg.Server.WriteTimeout),
		MaxMessageBytes: cfg.Server.MaxMessageBytes,
	})

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
	case <-ctx.Done():
		logger.Info("shutting down", "reason", "context cancelled")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func buildPipeline(ctx context.Context, cfg *Config, logger *slog.Logger) (*dialog.Pipeline, error) {
	pipeline := &dialog.Pipeline{Logger: logger}

	if cfg.OpenAI.APIKey != "" {
		client := dialog.NewOpenAIClient(cfg.OpenAI.APIKey, cfg.OpenAI.BaseURL)
		pipeline.Transcriber = &dialog.OpenAITranscriber{
			Client:   client,
			Model:    cfg.OpenAI.TranscribeModel,
			Language: cfg.OpenAI.Language,
		}
		pipeline.Synthesizer = &dialog.OpenAISpeech{
			Client: client,
			Model:  cfg.OpenAI.SpeechModel,
			Voice:  cfg.OpenAI.Voice,
		}
		pipeline.Generator = &dialog.OpenAIGenerator{
			Client:      client,
			Model:       chatModel(cfg),
			MaxTokens:   cfg.Dialog.MaxTokens,
			Temperature: cfg.Dialog.Temperature,
		}
	}

	if cfg.Dialog.Backend == "gemini" {
		if cfg.Gemini.APIKey == "" {
			return nil, fmt.Errorf("dialog backend is gemini but gemini.api_key is empty")
		}
		client, err := dialog.NewGeminiClient(ctx, cfg.Gemini.APIKey)
		if err != nil {
			return nil, err
		}
		pipeline.Generator = &dialog.GeminiGenerator{
			Client:      client,
			Model:       cfg.Gemini.Model,
			MaxTokens:   cfg.Dialog.MaxTokens,
			Temperature: float32(cfg.Dialog.Temperature),
		}
	}

	if pipeline.Generator == nil {
		return nil, fmt.Errorf("no dialogue backend configured: set openai.api_key or gemini.api_key")
	}
	return pipeline, nil
}

func chatModel(cfg *Config) string {
	if cfg.OpenAI.ChatModel != "" {
		return cfg.OpenAI.ChatModel
	}
	return "gpt-4o-mini"
}

func openCallLog(cfg *Config) (*calllog.Store, error) {
	if cfg.CallLog.Dir == "" {
		return calllog.OpenInMemory()
	}
	return calllog.Open(cfg.CallLog.Dir)
}

func buildArchive(cfg *Config) (archive.Store, error) {
	switch cfg.Archive.Backend {
	case "", "none":
		return nil, nil
	case "local":
		dir := cfg.Archive.Dir
		if dir == "" {
			dir = "conversations"
		}
		return archive.NewLocal(dir)
	case "s3":
		if cfg.Archive.Bucket == "" {
			return nil, fmt.Errorf("archive backend s3 requires archive.bucket")
		}
		opts := s3.Options{Region: cfg.Archive.Region}
		if cfg.Archive.Endpoint != "" {
			opts.BaseEndpoint = aws.String(cfg.Archive.Endpoint)
			opts.UsePathStyle = true
		}
		if cfg.Archive.AccessKey != "" {
			key, secret := cfg.Archive.AccessKey, cfg.Archive.SecretKey
			opts.Credentials = aws.CredentialsProviderFunc(
				func(context.Context) (aws.Credentials, error) {
					return aws.Credentials{
						AccessKeyID:     key,
						SecretAccessKey: secret,
					}, nil
				})
		}
		return archive.NewS3(s3.New(opts), cfg.Archive.Bucket, cfg.Archive.Prefix), nil
	default:
		return nil, fmt.Errorf("unknown archive backend %q", cfg.Archive.Backend)
	}
}
