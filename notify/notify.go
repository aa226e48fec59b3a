// Package notify hands a finished report to external programs: a mail
// sender and an arbitrary shell command. Each delivery writes the report to
// the program's standard input and waits for it to exit.
package notify

import (
	"bytes"
	"context"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/opendata-tools/freshness/utils/log"
)

const (
	// DefaultMailer is the mail program used when none is configured.
	DefaultMailer = "mail"
	// SubjectPrefix starts the subject line of every notification email.
	SubjectPrefix = "stale dataset report"
	// DefaultTimeout bounds a single delivery.
	DefaultTimeout = 60 * time.Second

	shell     = "/bin/sh"
	waitDelay = time.Second
)

// Deliverer delivers a rendered report.
type Deliverer interface {
	Deliver(ctx context.Context, report string) error
}

// DelivererFunc adapts an ordinary function to the Deliverer interface.
type DelivererFunc func(ctx context.Context, report string) error

func (f DelivererFunc) Deliver(ctx context.Context, report string) error {
	return f(ctx, report)
}

// Subject returns the notification subject line for a dataset.
func Subject(datasetName string) string {
	return SubjectPrefix + " [" + datasetName + "]"
}

// MailDeliverer runs `Mailer -s Subject Recipients...` with the report on stdin.
type MailDeliverer struct {
	Mailer     string
	Subject    string
	Recipients []string
	Timeout    time.Duration
	// Stdout and Stderr receive the output of the mail program. nil discards it.
	Stdout, Stderr io.Writer
}

// Args returns the arguments passed to the mail program.
func (m *MailDeliverer) Args() []string {
	return append([]string{"-s", m.Subject}, m.Recipients...)
}

func (m *MailDeliverer) Deliver(ctx context.Context, report string) error {
	if len(m.Recipients) == 0 {
		return errors.New("no mail recipients")
	}
	mailer := m.Mailer
	if mailer == "" {
		mailer = DefaultMailer
	}
	log.Info("[notify] mailing report to %s", strings.Join(m.Recipients, ", "))
	err := pipe(ctx, m.Timeout, report, m.Stdout, m.Stderr, mailer, m.Args()...)
	return errors.Wrapf(err, "mail command %q", mailer)
}

// CommandDeliverer runs Command through /bin/sh with the report on stdin.
type CommandDeliverer struct {
	Command string
	Timeout time.Duration
	// Stdout and Stderr receive the output of the command. nil discards it.
	Stdout, Stderr io.Writer
}

func (c *CommandDeliverer) Deliver(ctx context.Context, report string) error {
	if strings.TrimSpace(c.Command) == "" {
		return errors.New("empty report command")
	}
	log.Info("[notify] piping report into %q", c.Command)
	err := pipe(ctx, c.Timeout, report, c.Stdout, c.Stderr, shell, "-c", c.Command)
	return errors.Wrapf(err, "report command %q", c.Command)
}

func pipe(ctx context.Context, timeout time.Duration, input string,
	stdout, stderr io.Writer, name string, args ...string,
) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var errBuf bytes.Buffer
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Stdin = strings.NewReader(input)
	cmd.WaitDelay = waitDelay
	cmd.Stdout = stdout
	if stderr != nil {
		cmd.Stderr = io.MultiWriter(stderr, &errBuf)
	} else {
		cmd.Stderr = &errBuf
	}

	start := time.Now()
	if err := cmd.Start(); err != nil {
		return errors.Wrap(err, "failed to start")
	}
	if err := cmd.Wait(); err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return errors.Errorf("timed out after %s", timeout)
		}
		if msg := strings.TrimSpace(errBuf.String()); msg != "" {
			return errors.Wrap(err, msg)
		}
		return err
	}
	log.Debug("[notify] %s finished in %s", name, time.Since(start))
	return nil
}
