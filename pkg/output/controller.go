// Package output owns the on-disk layout of a run: one directory per run
// holding the result tables, diagnostic streams, the execution log, a copy
// of the protocol and a summary. It also ships runs elsewhere, to S3 and to
// PostgreSQL.
package output

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"github.com/dd0wney/netharness/pkg/logging"
	"github.com/golang/snappy"
	"github.com/google/uuid"
)

// Well-known file names of a run directory.
const (
	LogFile     = "execution.log"
	SummaryFile = "summary.txt"
	// ProtocolFile is the protocol copy; the source extension is kept.
	ProtocolFile = "protocol"
	// CompressedSuffix marks snappy-framed streams.
	CompressedSuffix = ".sz"
)

var (
	// ErrStreamExists is returned when a stream would overwrite a file.
	ErrStreamExists = errors.New("output file destination already exists")
	// ErrBadName is returned for names that leave the run directory.
	ErrBadName = errors.New("output name must be a plain file name")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("output controller closed")

	errTagSeparator = errors.New("tag must not contain path separators")
)

type stream struct {
	file *os.File
	buf  *bufio.Writer
	sz   *snappy.Writer // nil when uncompressed
}

func (s *stream) Write(p []byte) (int, error) {
	if s.sz != nil {
		return s.sz.Write(p)
	}
	return s.buf.Write(p)
}

func (s *stream) close() error {
	var errs []error
	if s.sz != nil {
		errs = append(errs, s.sz.Close())
	}
	errs = append(errs, s.buf.Flush(), s.file.Close())
	return errors.Join(errs...)
}

// Controller writes the files of one run. It implements workflow.Sink and is
// safe for concurrent use.
type Controller struct {
	cfg   Config
	dir   string
	runID uuid.UUID
	log   *os.File

	mu      sync.Mutex
	streams map[string]*stream
	closed  bool
}

// New creates the run directory <root>/<time>_<tag> and opens its
// execution log.
func New(cfg Config) (*Controller, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dir := filepath.Join(cfg.Root, cfg.Now().Format(DirTimeFormat)+"_"+cfg.Tag)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}
	log, err := os.OpenFile(filepath.Join(dir, LogFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", LogFile, err)
	}
	return &Controller{
		cfg:     cfg,
		dir:     dir,
		runID:   uuid.New(),
		log:     log,
		streams: make(map[string]*stream),
	}, nil
}

// Dir returns the run directory.
func (c *Controller) Dir() string { return c.dir }

// RunID identifies the run across archives and databases.
func (c *Controller) RunID() string { return c.runID.String() }

// LogWriter is the execution log, e.g. for logging.Tee.
func (c *Controller) LogWriter() io.Writer { return c.log }

// Logger logs to stderr and the execution log at level.
func (c *Controller) Logger(level logging.Level) logging.Logger {
	return logging.Tee(level, os.Stderr, c.log).With(logging.String("run_id", c.RunID()))
}

func (c *Controller) path(name string) (string, error) {
	if name == "" || name == "." || name == ".." || filepath.Base(name) != name {
		return "", fmt.Errorf("%w: %q", ErrBadName, name)
	}
	return filepath.Join(c.dir, name), nil
}

// CopyProtocol copies the protocol file into the run directory.
func (c *Controller) CopyProtocol(src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	dst := filepath.Join(c.dir, ProtocolFile+filepath.Ext(src))
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return fmt.Errorf("copy protocol: %w", err)
	}
	return out.Close()
}

// WriteResults writes a complete result file, replacing any earlier version.
func (c *Controller) WriteResults(name, content string) error {
	p, err := c.path(name)
	if err != nil {
		return err
	}
	return os.WriteFile(p, []byte(content), 0o644)
}

// WriteSummary writes summary.txt.
func (c *Controller) WriteSummary(content string) error {
	return c.WriteResults(SummaryFile, content)
}

// WriteStream appends content to the named stream, creating it on first
// use. A stream never overwrites an existing file.
func (c *Controller) WriteStream(name, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}

	s, ok := c.streams[name]
	if !ok {
		var err error
		if s, err = c.open(name); err != nil {
			return err
		}
		c.streams[name] = s
	}
	_, err := io.WriteString(s, content)
	return err
}

func (c *Controller) open(name string) (*stream, error) {
	if c.cfg.CompressStreams {
		name += CompressedSuffix
	}
	p, err := c.path(name)
	if err != nil {
		return nil, err
	}
	f, err := os.OpenFile(p, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if errors.Is(err, fs.ErrExist) {
		return nil, fmt.Errorf("%w: %s", ErrStreamExists, p)
	}
	if err != nil {
		return nil, err
	}
	s := &stream{file: f, buf: bufio.NewWriter(f)}
	if c.cfg.CompressStreams {
		s.sz = snappy.NewBufferedWriter(s.buf)
	}
	return s, nil
}

// CloseStream flushes and closes the named stream. Unknown names are ignored.
func (c *Controller) CloseStream(name string) error {
	c.mu.Lock()
	s, ok := c.streams[name]
	delete(c.streams, name)
	c.mu.Unlock()
	if !ok {
		return nil
	}
	return s.close()
}

// Files lists the regular files of the run directory, relative to it.
func (c *Controller) Files() ([]string, error) {
	var files []string
	err := filepath.WalkDir(c.dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return err
		}
		rel, err := filepath.Rel(c.dir, p)
		if err != nil {
			return err
		}
		files = append(files, filepath.ToSlash(rel))
		return nil
	})
	sort.Strings(files)
	return files, err
}

// Close closes every open stream and the execution log.
func (c *Controller) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true

	names := make([]string, 0, len(c.streams))
	for name := range c.streams {
		names = append(names, name)
	}
	sort.Strings(names)

	var errs []error
	for _, name := range names {
		if err := c.streams[name].close(); err != nil {
			errs = append(errs, fmt.Errorf("close stream %s: %w", name, err))
		}
	}
	c.streams = nil
	errs = append(errs, c.log.Close())
	return errors.Join(errs...)
}
