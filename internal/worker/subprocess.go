package worker

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"strings"
	"time"

	"github.com/sovrium/sovrium-sub014/pkg/models"
)

// SubprocessRuntime runs a local worker binary: stdin = JSON assignment,
// stdout = free-form progress lines with a one-line JSON report at the tail.
// Progress lines are passed through to the log; only the last line that
// decodes as a report counts.
type SubprocessRuntime struct {
	Command string
	Args    []string
	Timeout time.Duration // 0 = use context only
}

func (r SubprocessRuntime) Name() string { return "subprocess" }

func (r SubprocessRuntime) Run(ctx context.Context, a Assignment) (models.WorkerReport, error) {
	if r.Command == "" {
		return models.WorkerReport{}, errors.New("worker command is required")
	}
	if r.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, r.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, r.Command, r.Args...)
	in, err := json.Marshal(a)
	if err != nil {
		return models.WorkerReport{}, err
	}
	cmd.Stdin = strings.NewReader(string(in) + "\n")
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return models.WorkerReport{}, err
	}
	if err := cmd.Start(); err != nil {
		return models.WorkerReport{}, fmt.Errorf("start worker: %w", err)
	}

	var (
		report models.WorkerReport
		found  bool
	)
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		var rep models.WorkerReport
		if err := json.Unmarshal([]byte(line), &rep); err == nil && rep.Class != "" {
			report, found = rep, true
			continue
		}
		slog.Debug("worker output", "spec_id", a.SpecID, "line", line)
	}
	scanErr := sc.Err()
	waitErr := cmd.Wait()
	if ctx.Err() != nil {
		return models.WorkerReport{}, fmt.Errorf("worker timed out: %w", ctx.Err())
	}
	if scanErr != nil {
		return models.WorkerReport{}, fmt.Errorf("read worker output: %w", scanErr)
	}
	if waitErr != nil {
		return models.WorkerReport{}, fmt.Errorf("worker exited: %w", waitErr)
	}
	if !found {
		return models.WorkerReport{}, fmt.Errorf("worker produced no report for %s", a.SpecID)
	}
	if report.SpecID == "" {
		report.SpecID = a.SpecID
	}
	if report.SpecID != a.SpecID {
		return models.WorkerReport{}, fmt.Errorf("worker reported %s, assigned %s", report.SpecID, a.SpecID)
	}
	report.Class = models.ParseFailureClass(report.Class)
	return report, nil
}
