package ingest

// This file contains the worker pool used to convert many report files at once.

import (
	"context"
	"fmt"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/rs/zerolog"

	"github.com/perfgo/testinsight/model"
)

type fileJob struct {
	index int
	path  string
}

type fileResult struct {
	index   int
	path    string
	session *model.Session
	err     error
}

// ImportFiles converts each JUnit file into its own session using concurrency workers.
// Sessions are returned in the order of paths. Files that fail are skipped and their
// errors are returned together. When opts.SessionID is set and several files are given,
// each session id gets a "-<n>" suffix.
func ImportFiles(ctx context.Context, logger zerolog.Logger, paths []string, opts Options, concurrency int) ([]*model.Session, error) {
	if len(paths) == 0 {
		return []*model.Session{}, nil
	}
	if concurrency < 1 {
		concurrency = 1
	}

	jobChan := make(chan fileJob, len(paths))
	resultChan := make(chan fileResult, len(paths))

	var wg sync.WaitGroup
	for range concurrency {
		wg.Add(1)
		go worker(ctx, logger, opts, len(paths), jobChan, resultChan, &wg)
	}

	for i, p := range paths {
		jobChan <- fileJob{index: i, path: p}
	}
	close(jobChan)

	go func() {
		wg.Wait()
		close(resultChan)
	}()

	sessions := make([]*model.Session, len(paths))
	var result *multierror.Error
	for r := range resultChan {
		if r.err != nil {
			result = multierror.Append(result, r.err)
			continue
		}
		sessions[r.index] = r.session
	}

	out := make([]*model.Session, 0, len(paths))
	for _, s := range sessions {
		if s != nil {
			out = append(out, s)
		}
	}

	logger.Debug().Int("files", len(paths)).Int("sessions", len(out)).Msg("Imported JUnit reports")
	return out, result.ErrorOrNil()
}

func worker(ctx context.Context, logger zerolog.Logger, opts Options, total int, jobs <-chan fileJob, results chan<- fileResult, wg *sync.WaitGroup) {
	defer wg.Done()

	for job := range jobs {
		results <- convertFile(ctx, logger, opts, total, job)
	}
}

func convertFile(ctx context.Context, logger zerolog.Logger, opts Options, total int, job fileJob) fileResult {
	result := fileResult{index: job.index, path: job.path}

	if err := ctx.Err(); err != nil {
		result.err = fmt.Errorf("%s: %w", job.path, err)
		return result
	}

	suites, err := ParseJUnitFile(job.path)
	if err != nil {
		logger.Warn().Err(err).Str("path", job.path).Msg("Failed to parse JUnit report")
		result.err = err
		return result
	}

	if opts.SessionID != "" && total > 1 {
		opts.SessionID = fmt.Sprintf("%s-%d", opts.SessionID, job.index+1)
	}
	s, err := FromJUnit(suites, opts)
	if err != nil {
		result.err = fmt.Errorf("%s: %w", job.path, err)
		return result
	}

	logger.Debug().Str("path", job.path).Str("session", s.SessionID).Int("tests", len(s.TestResults)).Msg("Converted JUnit report")
	result.session = s
	return result
}
