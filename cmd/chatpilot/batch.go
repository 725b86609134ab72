package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"chatpilot/internal/domain"

	"gopkg.in/yaml.v3"
)

// batchFile is the YAML layout read by send-batch:
//
//	jobs:
//	  - chat: Alice
//	    text: hello
//	  - chat: "+31 6 1234 5678"
//	    image: ./flyer.png
//	    caption: see you friday
type batchFile struct {
	Jobs []batchJob `yaml:"jobs"`
}

type batchJob struct {
	Chat    string `yaml:"chat"`
	Text    string `yaml:"text,omitempty"`
	Image   string `yaml:"image,omitempty"`
	Caption string `yaml:"caption,omitempty"`
}

func (j batchJob) payload() domain.MessagePayload {
	if j.Image != "" {
		return domain.ImagePayload{StoredImagePath: j.Image, Caption: j.Caption}
	}
	return domain.TextPayload{Body: j.Text}
}

// loadBatch parses a job file. Relative image paths are resolved against the
// file's directory. Any malformed job rejects the whole file.
func loadBatch(path string) ([]batchJob, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, domain.NewFailure(domain.KindInvalidArgument, "read batch file: %v", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var f batchFile
	if err := dec.Decode(&f); err != nil && !errors.Is(err, io.EOF) {
		return nil, domain.NewFailure(domain.KindInvalidArgument, "parse batch file %s: %v", path, err)
	}
	if len(f.Jobs) == 0 {
		return nil, domain.NewFailure(domain.KindInvalidArgument, "batch file %s has no jobs", path)
	}

	base := filepath.Dir(path)
	var problems []string
	for i := range f.Jobs {
		j := &f.Jobs[i]
		j.Chat = strings.TrimSpace(j.Chat)
		switch {
		case j.Chat == "":
			problems = append(problems, fmt.Sprintf("job %d: chat is required", i+1))
		case j.Text != "" && j.Image != "":
			problems = append(problems, fmt.Sprintf("job %d: set either text or image, not both", i+1))
		case j.Text == "" && j.Image == "":
			problems = append(problems, fmt.Sprintf("job %d: text or image is required", i+1))
		case j.Caption != "" && j.Image == "":
			problems = append(problems, fmt.Sprintf("job %d: caption needs an image", i+1))
		}
		if j.Image != "" && !filepath.IsAbs(j.Image) {
			j.Image = filepath.Join(base, j.Image)
		}
	}
	if len(problems) > 0 {
		return nil, domain.NewFailure(domain.KindInvalidArgument, "batch file %s: %s", path, strings.Join(problems, "; "))
	}
	return f.Jobs, nil
}

type messageSender interface {
	SendMessage(ctx context.Context, target domain.ChatTarget, payload domain.MessagePayload, spec domain.PollSpec) domain.Result[domain.Unit]
}

type batchSummary struct {
	Total       int
	Sent        int
	Failed      int
	Unconfirmed int
	Skipped     int
}

// runBatch sends jobs one after another. A failed job never stops the run and
// is never retried here; only cancellation of ctx stops it early.
func runBatch(ctx context.Context, s messageSender, jobs []batchJob, spec domain.PollSpec, w io.Writer) batchSummary {
	sum := batchSummary{Total: len(jobs)}
	for i, job := range jobs {
		if ctx.Err() != nil {
			sum.Skipped = len(jobs) - i
			fmt.Fprintf(w, "stopped: %d job(s) skipped\n", sum.Skipped)
			break
		}

		r := s.SendMessage(ctx, domain.ChatTarget(job.Chat), job.payload(), spec)
		switch {
		case r.IsOK():
			sum.Sent++
			fmt.Fprintf(w, "[%d/%d] ok    %s: %s\n", i+1, len(jobs), job.Chat, r.Message)
		case r.Err.Kind == domain.KindSendUnconfirmed:
			sum.Unconfirmed++
			fmt.Fprintf(w, "[%d/%d] UNCONFIRMED %s: %s (hint: %s)\n", i+1, len(jobs), job.Chat, r.Err.Message, r.Err.Hint)
		default:
			sum.Failed++
			fmt.Fprintf(w, "[%d/%d] FAIL  %s: %s (hint: %s)\n", i+1, len(jobs), job.Chat, r.Err.Message, r.Err.Hint)
		}
	}
	return sum
}

func (s batchSummary) String() string {
	return fmt.Sprintf("%d sent, %d failed, %d unconfirmed, %d skipped (of %d)", s.Sent, s.Failed, s.Unconfirmed, s.Skipped, s.Total)
}

// err reports the batch outcome. Unconfirmed sends dominate: the operator
// must check those chats before resending anything.
func (s batchSummary) err() error {
	switch {
	case s.Unconfirmed > 0:
		return &domain.Failure{
			Kind:    domain.KindSendUnconfirmed,
			Message: fmt.Sprintf("%d job(s) may or may not have been delivered", s.Unconfirmed),
			Hint:    domain.HintVerifyBeforeRetry,
		}
	case s.Failed > 0 || s.Skipped > 0:
		return fmt.Errorf("%d of %d job(s) not delivered", s.Failed+s.Skipped, s.Total)
	}
	return nil
}
