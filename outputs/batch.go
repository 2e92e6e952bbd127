package outputs

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/gosuri/uilive"

	"github.com/cube2222/octoplan/optimizer"
)

const btreeDegree = 16

// Result is the outcome of rewriting a single document.
type Result struct {
	Index  int
	Name   string
	Dump   string
	Diff   string
	Stats  *optimizer.Stats
	Cached bool
	Err    error
}

func (r *Result) Less(than btree.Item) bool {
	thanTyped, ok := than.(*Result)
	if !ok {
		panic(fmt.Sprintf("invalid result comparison: %T", than))
	}
	return r.Index < thanTyped.Index
}

func (r *Result) status() string {
	switch {
	case r.Err != nil:
		return "error"
	case r.Cached:
		return "cached"
	case r.Stats != nil && r.Stats.Skipped:
		return "skipped"
	}
	return "done"
}

// BatchPrinter collects results which may arrive out of order, and prints them ordered by index.
// When live, a progress table is refreshed as results come in.
type BatchPrinter struct {
	w         io.Writer
	total     int
	live      bool
	withStats bool

	mutex      sync.Mutex
	results    *btree.BTree
	liveWriter *uilive.Writer
	lastUpdate time.Time
}

func NewBatchPrinter(w io.Writer, total int, live, withStats bool) *BatchPrinter {
	printer := &BatchPrinter{
		w:         w,
		total:     total,
		live:      live,
		withStats: withStats,
		results:   btree.New(btreeDegree),
	}
	if live {
		printer.liveWriter = uilive.New()
		printer.liveWriter.Out = w
	}
	return printer
}

// Report is safe for concurrent use.
func (p *BatchPrinter) Report(result *Result) {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	p.results.ReplaceOrInsert(result)
	if p.live && time.Since(p.lastUpdate) > time.Second/4 {
		p.lastUpdate = time.Now()
		var buf bytes.Buffer
		p.renderProgress(&buf)
		buf.WriteTo(p.liveWriter)
		p.liveWriter.Flush()
	}
}

func (p *BatchPrinter) renderProgress(w io.Writer) {
	table := newTable(w, "#", "document", "status", "steps")
	p.results.Ascend(func(item btree.Item) bool {
		result := item.(*Result)
		steps := ""
		if result.Stats != nil {
			steps = strconv.Itoa(result.Stats.Steps)
		}
		table.Append([]string{strconv.Itoa(result.Index), result.Name, result.status(), steps})
		return true
	})
	table.Render()
	fmt.Fprintf(w, "%d/%d documents\n", p.results.Len(), p.total)
}

// Close prints every result in order. It returns the first error reported, if any.
func (p *BatchPrinter) Close() error {
	p.mutex.Lock()
	defer p.mutex.Unlock()

	if p.live {
		var buf bytes.Buffer
		p.renderProgress(&buf)
		buf.WriteTo(p.liveWriter)
		p.liveWriter.Flush()
	}

	var firstErr error
	p.results.Ascend(func(item btree.Item) bool {
		result := item.(*Result)
		if p.total > 1 {
			fmt.Fprintf(p.w, "-- %s\n", result.Name)
		}
		if result.Err != nil {
			fmt.Fprintf(p.w, "error: %s\n", result.Err)
			if firstErr == nil {
				firstErr = fmt.Errorf("%s: %w", result.Name, result.Err)
			}
			return true
		}
		io.WriteString(p.w, result.Dump)
		if result.Diff != "" {
			io.WriteString(p.w, result.Diff)
		}
		if p.withStats && result.Stats != nil {
			RenderStats(p.w, result.Stats)
		}
		return true
	})
	return firstErr
}
