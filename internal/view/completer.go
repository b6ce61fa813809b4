package view

import (
	"strings"
	"sync"
)

// wordCompleter offers tab completion over a swappable word list.
type wordCompleter struct {
	mu    sync.RWMutex
	words []string
}

func (c *wordCompleter) SetWords(words []string) {
	c.mu.Lock()
	c.words = append([]string(nil), words...)
	c.mu.Unlock()
}

// Do implements readline.AutoCompleter.
func (c *wordCompleter) Do(line []rune, pos int) ([][]rune, int) {
	prefix := strings.TrimLeft(string(line[:pos]), " ")
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out [][]rune
	for _, w := range c.words {
		if strings.HasPrefix(w, prefix) {
			out = append(out, []rune(w[len(prefix):]))
		}
	}
	return out, len([]rune(prefix))
}
