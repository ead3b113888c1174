package executor

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"regexp"
	"runtime"
	"strings"
	"time"
)

const outputTail = 8000

var shellBlockPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\b\s+-rf\b`),
	regexp.MustCompile(`(?i)\bmkfs\b`),
	regexp.MustCompile(`(?i)\bformat\b\s+`),
	regexp.MustCompile(`(?i)\bshutdown\b`),
	regexp.MustCompile(`(?i)\breboot\b`),
	regexp.MustCompile(`(?i)\bsudo\b`),
	regexp.MustCompile(`(?i)curl\b.*\|\s*bash`),
	regexp.MustCompile(`(?i)wget\b.*\|\s*bash`),
	regexp.MustCompile(`(?i)powershell\b.*iex\b`),
	regexp.MustCompile(`(?i)Invoke-Expression`),
	regexp.MustCompile(`(?i)\bnc\b|netcat\b`),
}

var (
	ErrDangerousDisabled = errors.New("dangerous tools are disabled; set executor.enable_dangerous_tools")
	ErrEmptyCommand      = errors.New("empty command")
	ErrBlockedCommand    = errors.New("command rejected by safety block pattern")
)

type ShellResult struct {
	ReturnCode int    `json:"returncode"`
	Stdout     string `json:"stdout"`
	Stderr     string `json:"stderr"`
	TimedOut   bool   `json:"timed_out,omitempty"`
}

// Shell runs commands through the platform shell inside the repo root.
type Shell struct {
	Enabled        bool
	Dir            string
	DefaultTimeout time.Duration
}

func (s *Shell) Validate(cmd string) error {
	if !s.Enabled {
		return ErrDangerousDisabled
	}
	c := strings.TrimSpace(cmd)
	if c == "" {
		return ErrEmptyCommand
	}
	for _, re := range shellBlockPatterns {
		if re.MatchString(c) {
			return ErrBlockedCommand
		}
	}
	return nil
}

// Run executes cmd. A non-zero exit is reported in the result, not as an error.
func (s *Shell) Run(ctx context.Context, cmd string, timeout time.Duration) (ShellResult, error) {
	if err := s.Validate(cmd); err != nil {
		return ShellResult{}, err
	}
	if timeout <= 0 {
		timeout = s.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var c *exec.Cmd
	if runtime.GOOS == "windows" {
		c = exec.CommandContext(ctx, "cmd", "/C", cmd)
	} else {
		c = exec.CommandContext(ctx, "sh", "-c", cmd)
	}
	c.Dir = s.Dir
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	err := c.Run()
	res := ShellResult{Stdout: tail(stdout.String(), outputTail), Stderr: tail(stderr.String(), outputTail)}
	if ctx.Err() == context.DeadlineExceeded {
		res.TimedOut = true
		res.ReturnCode = -1
		return res, nil
	}
	var exitErr *exec.ExitError
	switch {
	case err == nil:
	case errors.As(err, &exitErr):
		res.ReturnCode = exitErr.ExitCode()
	default:
		return res, err
	}
	return res, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
