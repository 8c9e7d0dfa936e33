package metrics

import (
	"bytes"
	"errors"
	"fmt"
	"path/filepath"

	"golang.org/x/sys/unix"

	"hwbench/config"
	db "hwbench/debug"
)

type Tscope int

const (
	SCOPE_PROCESS Tscope = iota // <proc>/self
	SCOPE_THREAD                // <proc>/thread-self, fixed to the opening thread
)

var (
	errNoField = errors.New("field not found")
	ErrTooLong = errors.New("proc file larger than sample buffer")
)

// Room for a status file with a long Groups line or a wide CPU mask.
const bufSize = 16 << 10

var (
	volPrefix   = []byte("voluntary_ctxt_switches:")
	involPrefix = []byte("nonvoluntary_ctxt_switches:")
)

// Source that keeps status and stat open and preads them into a fixed
// buffer, so a sample allocates nothing.
//
// With SCOPE_THREAD the files describe the thread that called
// NewProcSource; that goroutine must hold runtime.LockOSThread for as long
// as the source is used.
type ProcSource struct {
	status int
	stat   int
	buf    [bufSize]byte
}

func NewProcSource(root string, scope Tscope) (*ProcSource, error) {
	if root == "" {
		root = config.Conf.Metrics.PROC_ROOT
	}
	dir := filepath.Join(root, "self")
	if scope == SCOPE_THREAD {
		dir = filepath.Join(root, "thread-self")
	}
	status, err := unix.Open(filepath.Join(dir, "status"), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return nil, fmt.Errorf("open %v/status: %w", dir, err)
	}
	stat, err := unix.Open(filepath.Join(dir, "stat"), unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		unix.Close(status)
		return nil, fmt.Errorf("open %v/stat: %w", dir, err)
	}
	db.DPrintf(db.METRICS, "NewProcSource %v", dir)
	return &ProcSource{status: status, stat: stat}, nil
}

// Read all of fd into buf. A file that fills buf is an error rather than a
// silently truncated sample.
func (ps *ProcSource) read(fd int) ([]byte, error) {
	off := 0
	for off < len(ps.buf) {
		n, err := unix.Pread(fd, ps.buf[off:], int64(off))
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return ps.buf[:off], nil
		}
		off += n
	}
	return nil, fmt.Errorf("read %d bytes: %w", off, ErrTooLong)
}

func (ps *ProcSource) Sample(s *Tsample) error {
	b, err := ps.read(ps.status)
	if err != nil {
		return err
	}
	if err := ParseStatus(b, s); err != nil {
		return err
	}
	b, err = ps.read(ps.stat)
	if err != nil {
		return err
	}
	return ParseStat(b, s)
}

func (ps *ProcSource) Close() error {
	if ps.status < 0 {
		return nil
	}
	err := unix.Close(ps.status)
	if err1 := unix.Close(ps.stat); err == nil {
		err = err1
	}
	ps.status, ps.stat = -1, -1
	return err
}

// Leading decimal digits of b, after skipping blanks.
func parseUint(b []byte) (uint64, []byte) {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t') {
		i++
	}
	var n uint64
	for ; i < len(b) && b[i] >= '0' && b[i] <= '9'; i++ {
		n = n*10 + uint64(b[i]-'0')
	}
	return n, b[i:]
}

// Value of the line starting with prefix.
func field(b, prefix []byte) (uint64, bool) {
	for off := 0; off < len(b); {
		i := bytes.Index(b[off:], prefix)
		if i < 0 {
			return 0, false
		}
		i += off
		// "voluntary_" also occurs inside "nonvoluntary_".
		if i == 0 || b[i-1] == '\n' {
			n, _ := parseUint(b[i+len(prefix):])
			return n, true
		}
		off = i + 1
	}
	return 0, false
}

// Fill the context-switch counts of s from status text.
func ParseStatus(b []byte, s *Tsample) error {
	vol, ok := field(b, volPrefix)
	if !ok {
		return fmt.Errorf("status voluntary_ctxt_switches: %w", errNoField)
	}
	invol, ok := field(b, involPrefix)
	if !ok {
		return fmt.Errorf("status nonvoluntary_ctxt_switches: %w", errNoField)
	}
	s.VolCtx, s.InvolCtx = vol, invol
	return nil
}

// Fill the fault counts of s from stat text: minflt is field 10 and majflt
// field 12. Fields are counted after the parenthesized command name, which
// may itself contain blanks.
func ParseStat(b []byte, s *Tsample) error {
	i := bytes.LastIndexByte(b, ')')
	if i < 0 {
		return fmt.Errorf("stat comm: %w", errNoField)
	}
	b = b[i+1:]
	var tok []byte
	for f := 3; f <= 12; f++ {
		b = bytes.TrimLeft(b, " ")
		if len(b) == 0 {
			return fmt.Errorf("stat field %d: %w", f, errNoField)
		}
		end := bytes.IndexByte(b, ' ')
		if end < 0 {
			end = len(b)
		}
		tok, b = b[:end], b[end:]
		switch f {
		case 10:
			s.MinFlt, _ = parseUint(tok)
		case 12:
			s.MajFlt, _ = parseUint(tok)
		}
	}
	return nil
}
