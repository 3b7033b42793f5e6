package browser

import "sync"

// pageList tracks open pages in the order they were opened
type pageList struct {
	mu    sync.Mutex
	pages []Page
}

func (l *pageList) add(p Page) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.pages = append(l.pages, p)
}

func (l *pageList) remove(id string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i, p := range l.pages {
		if p.ID() == id {
			l.pages = append(l.pages[:i], l.pages[i+1:]...)
			return
		}
	}
}

// list returns the tracked pages, dropping any whose ID is not in live when live is non-nil
func (l *pageList) list(live map[string]bool) []Page {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Page, 0, len(l.pages))
	for _, p := range l.pages {
		if live != nil && !live[p.ID()] {
			continue
		}
		out = append(out, p)
	}
	return out
}

func (l *pageList) all() []Page {
	return l.list(nil)
}
