package app

import (
	"bufio"
	"fmt"
	"log"
	"os"
	"time"
)

// profiler appends per-section frame timings to a CSV file. A nil profiler
// is disabled and every method is a no-op.
type profiler struct {
	file  *os.File
	w     *bufio.Writer
	frame int64
	start time.Time
	last  time.Time
	now   func() time.Time
}

func newProfiler(path string, logger *log.Logger) *profiler {
	if path == "" {
		return nil
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		if logger != nil {
			logger.Printf("profiler disabled: %v", err)
		}
		return nil
	}
	p := &profiler{
		file: f,
		w:    bufio.NewWriter(f),
		now:  time.Now,
	}
	if info, err := f.Stat(); err == nil && info.Size() == 0 {
		fmt.Fprintln(p.w, "timestamp,frame,section,delta_ms")
	}
	return p
}

func (p *profiler) beginFrame() {
	if p == nil {
		return
	}
	now := p.now()
	p.frame++
	p.start = now
	p.last = now
}

func (p *profiler) markSection(name string) {
	if p == nil {
		return
	}
	now := p.now()
	p.log(now, name, now.Sub(p.last))
	p.last = now
}

func (p *profiler) endFrame() {
	if p == nil {
		return
	}
	now := p.now()
	p.log(now, "frame_total", now.Sub(p.start))
	if p.frame%60 == 0 {
		_ = p.w.Flush()
	}
}

func (p *profiler) Close() error {
	if p == nil {
		return nil
	}
	if err := p.w.Flush(); err != nil {
		_ = p.file.Close()
		return err
	}
	return p.file.Close()
}

func (p *profiler) log(at time.Time, section string, d time.Duration) {
	fmt.Fprintf(p.w, "%s,%d,%s,%.3f\n", at.Format(time.RFC3339Nano), p.frame, section, d.Seconds()*1000)
}
