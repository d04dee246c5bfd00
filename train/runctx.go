package train

import (
	"io"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// RunContext carries the log sinks and configuration of one run. Every
// component logs through Log instead of writing to process-wide streams.
// Output goes to the caller's stdout and <name>_output; warnings and errors
// additionally go to the caller's stderr and <name>_errors.
type RunContext struct {
	Params RunParams
	Name   string
	Log    *logrus.Logger
	Store  *ArtifactStore

	closers []io.Closer
}

// NewRunContext opens the run's append-only log files in store and builds a
// logger at level that writes to stdout and the output log, with warnings and
// errors copied to stderr and the error log.
func NewRunContext(params RunParams, store *ArtifactStore, level logrus.Level, stdout, stderr io.Writer) (*RunContext, error) {
	out, err := store.OpenLog(store.OutputLogPath())
	if err != nil {
		return nil, err
	}
	errLog, err := store.OpenLog(store.ErrorLogPath())
	if err != nil {
		_ = out.Close()
		return nil, err
	}

	log := logrus.New()
	log.SetLevel(level)
	log.SetOutput(io.MultiWriter(stdout, out))
	log.AddHook(&errorSinkHook{writer: io.MultiWriter(stderr, errLog), formatter: &logrus.TextFormatter{DisableColors: true}})

	return &RunContext{
		Params:  params,
		Name:    store.Name,
		Log:     log,
		Store:   store,
		closers: []io.Closer{out, errLog},
	}, nil
}

// Fatal logs err, with the stack trace recorded by pkg/errors, to the error sinks.
func (rc *RunContext) Fatal(err error) {
	rc.Log.Errorf("%+v", errors.WithStack(err))
}

// Close closes the log files. Close in reverse order of opening.
func (rc *RunContext) Close() error {
	var closeErr error
	for i := len(rc.closers) - 1; i >= 0; i-- {
		if err := rc.closers[i].Close(); err != nil {
			closeErr = err
		}
	}
	rc.closers = nil
	return closeErr
}

// errorSinkHook copies warning and error entries to a separate writer.
type errorSinkHook struct {
	writer    io.Writer
	formatter logrus.Formatter
}

func (h *errorSinkHook) Levels() []logrus.Level {
	return []logrus.Level{logrus.PanicLevel, logrus.FatalLevel, logrus.ErrorLevel, logrus.WarnLevel}
}

func (h *errorSinkHook) Fire(entry *logrus.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}
	_, err = h.writer.Write(line)
	return err
}
