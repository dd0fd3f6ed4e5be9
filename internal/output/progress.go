package output

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/term"
)

// StderrProgress returns os.Stderr when it is a terminal and nil otherwise.
func StderrProgress() io.Writer {
	if term.IsTerminal(int(os.Stderr.Fd())) {
		return os.Stderr
	}
	return nil
}

// progressReader reports the percentage read on one rewritten line.
type progressReader struct {
	r     io.Reader
	out   io.Writer
	label string
	total int64
	read  int64
	last  int
}

func newProgressReader(r io.Reader, out io.Writer, label string, total int64) io.Reader {
	if out == nil {
		return r
	}
	if total <= 0 {
		fmt.Fprintf(out, "???%% -- %s\n", label)
		return r
	}
	return &progressReader{r: r, out: out, label: label, total: total, last: -1}
}

func (p *progressReader) Read(b []byte) (int, error) {
	n, err := p.r.Read(b)
	p.read += int64(n)
	pct := int(p.read * 100 / p.total)
	if pct != p.last {
		p.last = pct
		fmt.Fprintf(p.out, "\r%3d%% -- %s", pct, p.label)
	}
	if err == io.EOF {
		fmt.Fprintln(p.out)
	}
	return n, err
}
