package system

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

var ErrToolFailed = errors.New("external tool failed")

// Command: один вызов внешней программы.
type Command struct {
	Name  string
	Args  []string
	Dir   string
	Env   []string // добавляется к os.Environ()
	Stdin io.Reader
}

func (c Command) String() string {
	return c.Name + " " + strings.Join(Quote(c.Args), " ")
}

type Result struct {
	Stdout []byte
	Stderr []byte
}

// Runner запускает внешние программы. Все стадии конвейера ходят через него,
// в тестах подменяется фейком.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ToolError содержит вывод упавшей программы.
type ToolError struct {
	Command  string
	ExitCode int
	Stdout   string
	Stderr   string
	Err      error
}

func (e *ToolError) Error() string {
	msg := strings.TrimSpace(e.Stderr)
	if len(msg) > 2000 {
		msg = "..." + msg[len(msg)-2000:]
	}
	return fmt.Sprintf("%s: exit %d: %v, output: %s", e.Command, e.ExitCode, e.Err, msg)
}

func (e *ToolError) Unwrap() error { return e.Err }

func (e *ToolError) Is(target error) bool { return target == ErrToolFailed }

type ExecRunner struct {
	Logger *zap.Logger
}

func NewExecRunner(logger *zap.Logger) *ExecRunner {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecRunner{Logger: logger}
}

func (r *ExecRunner) Run(ctx context.Context, c Command) (Result, error) {
	r.Logger.Debug("exec", zap.String("cmd", c.String()), zap.String("dir", c.Dir))

	cmd := exec.CommandContext(ctx, c.Name, c.Args...)
	cmd.Dir = c.Dir
	if len(c.Env) > 0 {
		cmd.Env = append(os.Environ(), c.Env...)
	}
	cmd.Stdin = c.Stdin

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	res := Result{Stdout: stdout.Bytes(), Stderr: stderr.Bytes()}
	if ce := r.Logger.Check(zap.DebugLevel, "exec output"); ce != nil {
		ce.Write(
			zap.String("cmd", c.Name),
			zap.String("stdout", stdout.String()),
			zap.String("stderr", stderr.String()),
			zap.Error(err),
		)
	}
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		err = fmt.Errorf("%w: %v", ctx.Err(), err)
	}
	code := -1
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.ExitCode()
	}
	return res, &ToolError{
		Command:  c.Name,
		ExitCode: code,
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Err:      err,
	}
}

// Quote экранирует аргументы для вывода в лог.
func Quote(args []string) []string {
	res := make([]string, len(args))
	for i, v := range args {
		if v == "" || strings.ContainsAny(v, " \t\"'") {
			res[i] = strconv.Quote(v)
		} else {
			res[i] = v
		}
	}
	return res
}
