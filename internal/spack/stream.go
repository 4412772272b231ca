package spack

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/hgi-dev/spackbridge/internal/logfields"
)

// Streamer runs long installs and turns their output into an ordered
// ProgressEvent sequence: exactly one start event, the interleaved output
// and error lines, and exactly one terminal event (complete, or error when
// the process could not be spawned).
type Streamer struct {
	collector *LogCollector
}

func NewStreamer(collector *LogCollector) *Streamer {
	return &Streamer{collector: collector}
}

// Stream spawns argv and emits progress events on the returned channel. The
// channel is closed after the terminal event. Cancelling ctx kills the whole
// process group, so an abandoned consumer never leaks a build.
func (s *Streamer) Stream(ctx context.Context, argv []string, pkg, spec string, timeout time.Duration) <-chan ProgressEvent {
	events := make(chan ProgressEvent, 64)
	go s.run(ctx, argv, pkg, spec, timeout, events)
	return events
}

func (s *Streamer) run(parent context.Context, argv []string, pkg, spec string, timeout time.Duration, events chan<- ProgressEvent) {
	defer close(events)

	emit := func(ev ProgressEvent) {
		select {
		case events <- ev:
		case <-parent.Done():
		}
	}

	emit(ProgressEvent{
		Type:      EventStart,
		Data:      fmt.Sprintf("Starting installation of %s", pkg),
		Timestamp: unixSeconds(),
		Package:   pkg,
		Spec:      spec,
	})

	ctx := parent
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(parent, timeout)
		defer cancel()
	}

	if len(argv) == 0 {
		emit(errorEvent(pkg, spec, "empty command"))
		return
	}

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error {
		return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
	}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		emit(errorEvent(pkg, spec, err.Error()))
		return
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		emit(errorEvent(pkg, spec, err.Error()))
		return
	}

	if err := cmd.Start(); err != nil {
		slog.Error("install spawn failed", logfields.Package(pkg), logfields.Error(err))
		emit(errorEvent(pkg, spec, err.Error()))
		return
	}
	slog.Info("install started",
		logfields.Package(pkg),
		logfields.Spec(spec),
		logfields.Command(strings.Join(argv, " ")))

	// Two readers feed one FIFO channel; it closes once both hit EOF, which
	// is the signal that no further line events can arrive.
	fifo := make(chan ProgressEvent, 64)
	var wg sync.WaitGroup
	wg.Add(2)
	go readLines(&wg, stdout, EventOutput, pkg, spec, fifo)
	go readLines(&wg, stderr, EventError, pkg, spec, fifo)
	go func() {
		wg.Wait()
		close(fifo)
	}()

	var combined strings.Builder
	for ev := range fifo {
		combined.WriteString(ev.Data)
		combined.WriteByte('\n')
		emit(ev)
	}

	waitErr := cmd.Wait()
	exitCode := 0
	if waitErr != nil {
		exitCode = -1
		if exitErr, ok := waitErr.(*exec.ExitError); ok {
			exitCode = exitErr.ExitCode()
		}
	}

	output := combined.String()
	success := waitErr == nil && exitCode == 0
	complete := ProgressEvent{
		Type:      EventComplete,
		Timestamp: unixSeconds(),
		Package:   pkg,
		Spec:      spec,
		Success:   &success,
	}
	// Only a recovered hash goes on the wire; the sentinel stays internal so
	// omitempty drops the field on a miss.
	if digest := ExtractDigest(output); digest != DigestNotFound {
		complete.Digest = digest
	}
	switch {
	case success:
		complete.Data = fmt.Sprintf("Installation of %s completed successfully", pkg)
	case ctx.Err() == context.DeadlineExceeded:
		complete.Data = fmt.Sprintf("Installation of %s timed out after %s", pkg, timeout)
	default:
		complete.Data = fmt.Sprintf("Installation of %s failed with exit code %d", pkg, exitCode)
	}
	if !success && s.collector != nil {
		complete.FailureLog = s.collector.Collect(output)
	}

	slog.Info("install finished",
		logfields.Package(pkg),
		logfields.ExitCode(exitCode),
		slog.Bool("success", success))
	emit(complete)
}

func readLines(wg *sync.WaitGroup, r io.Reader, typ EventType, pkg, spec string, fifo chan<- ProgressEvent) {
	defer wg.Done()
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		fifo <- ProgressEvent{
			Type:      typ,
			Data:      scanner.Text(),
			Timestamp: unixSeconds(),
			Package:   pkg,
			Spec:      spec,
		}
	}
}

func errorEvent(pkg, spec, msg string) ProgressEvent {
	return ProgressEvent{
		Type:      EventError,
		Data:      msg,
		Timestamp: unixSeconds(),
		Package:   pkg,
		Spec:      spec,
	}
}

func unixSeconds() float64 {
	return float64(time.Now().UnixNano()) / float64(time.Second)
}
