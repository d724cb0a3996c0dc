// Package progress renders single-line percentage progress for long running
// transfers. Lines are rewritten in place and finalized on the last item.
package progress

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/dustin/go-humanize"
)

// ErrInvalidTotal is returned when a progress line is requested for an empty
// or negative total.
var ErrInvalidTotal = errors.New("progress total must be positive")

// Percent returns floor(100*(processed+1)/total), reporting 100 once
// processed reaches the final item.
func Percent(processed, total int64) (int64, error) {
	if total <= 0 {
		return 0, fmt.Errorf("%w: %d", ErrInvalidTotal, total)
	}
	if processed >= total-1 {
		return 100, nil
	}
	return 100 * (processed + 1) / total, nil
}

// Format renders the row-only progress line. processed is the zero-based
// index of the item just handled.
func Format(label string, processed, total int64) (string, error) {
	pct, err := Percent(processed, total)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %d%% (%d of %d done)", label, pct, processed+1, total), nil
}

// FormatBytes renders the row and byte progress line.
func FormatBytes(label string, processed, total, bytesProcessed, bytesTotal int64) (string, error) {
	pct, err := Percent(processed, total)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s: %d%% (%d of %d done / %s of %s sent)",
		label, pct, processed+1, total,
		humanize.Bytes(clampBytes(bytesProcessed)), humanize.Bytes(clampBytes(bytesTotal))), nil
}

func clampBytes(n int64) uint64 {
	if n < 0 {
		return 0
	}
	return uint64(n)
}

// Reporter writes progress lines to an operator-facing stream.
type Reporter struct {
	mu    sync.Mutex
	out   io.Writer
	drawn bool
}

func NewReporter(out io.Writer) *Reporter {
	return &Reporter{out: out}
}

// Emit draws the row-only line for the given position.
func (r *Reporter) Emit(label string, processed, total int64) (string, error) {
	line, err := Format(label, processed, total)
	if err != nil {
		return "", err
	}
	return line, r.draw(line, processed >= total-1)
}

// EmitBytes draws the row and byte line for the given position.
func (r *Reporter) EmitBytes(label string, processed, total, bytesProcessed, bytesTotal int64) (string, error) {
	line, err := FormatBytes(label, processed, total, bytesProcessed, bytesTotal)
	if err != nil {
		return "", err
	}
	return line, r.draw(line, processed >= total-1)
}

// Break terminates a partially drawn line so that subsequent output starts on
// a fresh line. It is a no-op when nothing is pending.
func (r *Reporter) Break() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.drawn {
		fmt.Fprintln(r.out)
		r.drawn = false
	}
}

func (r *Reporter) draw(line string, final bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := fmt.Fprintf(r.out, "\r%s", line); err != nil {
		return err
	}
	r.drawn = true
	if final {
		r.drawn = false
		_, err := fmt.Fprintln(r.out)
		return err
	}
	return nil
}
