package generate

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"
)

var ErrFileTooLarge = errors.New("file too large")

type ServiceConfig struct {
	Runner         Runner
	DefaultModel   string
	Extractor      Extractor
	MaxUploadBytes int64
}

// Service produces pipeline sources from prompts and uploaded documents.
type Service struct {
	runner         Runner
	defaultModel   string
	extractor      Extractor
	maxUploadBytes int64
}

func NewService(cfg ServiceConfig) *Service {
	maxUpload := cfg.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = 10 << 20
	}
	return &Service{
		runner:         cfg.Runner,
		defaultModel:   cfg.DefaultModel,
		extractor:      cfg.Extractor,
		maxUploadBytes: maxUpload,
	}
}

func (s *Service) MaxUploadBytes() int64 {
	return s.maxUploadBytes
}

// FromPrompt asks the model for questions about req.Prompt.
func (s *Service) FromPrompt(ctx context.Context, req Request) (Source, error) {
	norm, difficulty, err := req.Normalize(s.defaultModel)
	if err != nil {
		return Source{}, err
	}
	if s.runner == nil {
		return Source{}, ErrProviderUnavailable
	}

	prompt := BuildPrompt(norm.Prompt, norm.Count, norm.OptionsPerQuestion, difficulty)
	start := time.Now()
	text, err := s.runner.Generate(ctx, norm.Model, prompt)
	if err != nil {
		log.Printf("generate: model=%s count=%d failed after %s: %v", norm.Model, norm.Count, time.Since(start).Round(time.Millisecond), err)
		return Source{}, err
	}
	log.Printf("generate: model=%s count=%d options=%d difficulty=%s chars=%d took=%s",
		norm.Model, norm.Count, norm.OptionsPerQuestion, difficulty, len(text), time.Since(start).Round(time.Millisecond))

	return Source{
		Origin:     "prompt",
		Text:       text,
		Requested:  norm.Count,
		Difficulty: difficulty,
		Shuffle:    norm.ShuffleOptions,
	}, nil
}

// FromFile extracts the document text and uses it as the prompt content.
func (s *Service) FromFile(ctx context.Context, name string, data []byte, req Request) (Source, error) {
	if int64(len(data)) > s.maxUploadBytes {
		return Source{}, fmt.Errorf("%w: limit is %d bytes", ErrFileTooLarge, s.maxUploadBytes)
	}
	content, err := s.extractor.Extract(ctx, name, data)
	if err != nil {
		return Source{}, err
	}
	if req.Count == 0 {
		req.Count = DefaultFileCount
	}
	req.Prompt = content

	src, err := s.FromPrompt(ctx, req)
	if err != nil {
		return Source{}, err
	}
	src.Origin = "file"
	return src, nil
}
