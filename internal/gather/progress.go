package gather

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	triedEmptyFile    = ".tried-empty"
	lastCompletedFile = ".last-completed"
)

// progressTracker remembers which symbols came back empty today and the last
// day a pass finished cleanly, so reruns skip known-empty symbols.
type progressTracker struct {
	dir string

	mu    sync.Mutex
	empty map[string]bool
}

func newProgressTracker(dir string) (*progressTracker, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("gather: state dir: %w", err)
	}
	p := &progressTracker{dir: dir, empty: make(map[string]bool)}
	f, err := os.Open(p.path(triedEmptyFile))
	if errors.Is(err, fs.ErrNotExist) {
		return p, nil
	}
	if err != nil {
		return nil, fmt.Errorf("gather: %s: %w", triedEmptyFile, err)
	}
	defer f.Close()
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if sym := strings.TrimSpace(sc.Text()); sym != "" {
			p.empty[sym] = true
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("gather: %s: %w", triedEmptyFile, err)
	}
	return p, nil
}

func (p *progressTracker) path(name string) string { return filepath.Join(p.dir, name) }

// IsTriedEmpty reports whether symbol already returned no bars.
func (p *progressTracker) IsTriedEmpty(symbol string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.empty[symbol]
}

// MarkEmpty appends the symbols not yet recorded.
func (p *progressTracker) MarkEmpty(symbols []string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var b strings.Builder
	for _, sym := range symbols {
		if !p.empty[sym] {
			p.empty[sym] = true
			b.WriteString(sym)
			b.WriteByte('\n')
		}
	}
	if b.Len() == 0 {
		return nil
	}
	f, err := os.OpenFile(p.path(triedEmptyFile), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("gather: %s: %w", triedEmptyFile, err)
	}
	if _, err := f.WriteString(b.String()); err != nil {
		f.Close()
		return fmt.Errorf("gather: %s: %w", triedEmptyFile, err)
	}
	return f.Close()
}

// MarkCompleted stamps day as the last clean pass.
func (p *progressTracker) MarkCompleted(day string) error {
	return os.WriteFile(p.path(lastCompletedFile), []byte(day+"\n"), 0o644)
}

// LastCompleted returns the last clean pass day, or "" if there was none.
func (p *progressTracker) LastCompleted() string {
	data, err := os.ReadFile(p.path(lastCompletedFile))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Reset forgets every tried-empty symbol.
func (p *progressTracker) Reset() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	clear(p.empty)
	if err := os.Remove(p.path(triedEmptyFile)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("gather: %s: %w", triedEmptyFile, err)
	}
	return nil
}
