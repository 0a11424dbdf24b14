package usecase

import "github.com/user/sitemirror/internal/entity"

type frontierEntry struct {
	URL   string
	Depth int
}

// Frontier is the BFS queue plus the visited set of one crawl run. A URL is
// claimed the first time it is pushed and never enqueued again. It is driven
// from a single control flow and is not synchronized.
type Frontier struct {
	items    []frontierEntry
	states   map[string]entity.CrawlState
	maxDepth int
}

func NewFrontier(maxDepth int) *Frontier {
	return &Frontier{
		states:   make(map[string]entity.CrawlState),
		maxDepth: maxDepth,
	}
}

// Push enqueues url at depth unless it was seen before or depth exceeds the
// bound. Returns true if added.
func (f *Frontier) Push(url string, depth int) bool {
	if depth > f.maxDepth {
		return false
	}
	if _, seen := f.states[url]; seen {
		return false
	}
	f.states[url] = entity.StateUnvisited
	f.items = append(f.items, frontierEntry{URL: url, Depth: depth})
	return true
}

// Pop removes and returns the oldest entry.
func (f *Frontier) Pop() (frontierEntry, bool) {
	if len(f.items) == 0 {
		return frontierEntry{}, false
	}
	e := f.items[0]
	f.items = f.items[1:]
	return e, true
}

func (f *Frontier) Mark(url string, state entity.CrawlState) {
	f.states[url] = state
}

// State returns StateUnvisited for URLs never pushed.
func (f *Frontier) State(url string) entity.CrawlState {
	if s, ok := f.states[url]; ok {
		return s
	}
	return entity.StateUnvisited
}

// Len is the number of entries waiting.
func (f *Frontier) Len() int { return len(f.items) }

// Count returns how many seen URLs are in state.
func (f *Frontier) Count(state entity.CrawlState) int {
	n := 0
	for _, s := range f.states {
		if s == state {
			n++
		}
	}
	return n
}
