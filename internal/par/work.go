// Package par runs independent work items with bounded parallelism.
package par

import (
	"errors"
	"sync"
)

// Work manages a set of work items to be executed in parallel, at most once
// each. The items in the set must all be valid map keys.
//
// Once an item fails no further items are started; items already running
// finish and their errors are collected too.
type Work[T comparable] struct {
	f       func(T) error // function to run for each item
	running int           // total number of runners

	mu      sync.Mutex
	added   map[T]bool // items added to set
	todo    []T        // items yet to be run, in insertion order
	wait    sync.Cond  // wait when todo is empty
	waiting int        // number of runners waiting for todo
	errs    []error
}

func (w *Work[T]) init() {
	if w.added == nil {
		w.added = make(map[T]bool)
	}
}

// Add adds item to the work set, if it hasn't already been added.
func (w *Work[T]) Add(item T) {
	w.mu.Lock()
	w.init()
	if !w.added[item] {
		w.added[item] = true
		w.todo = append(w.todo, item)
		if w.waiting > 0 {
			w.wait.Signal()
		}
	}
	w.mu.Unlock()
}

// Do runs f on items from the work set, with at most n invocations of f
// running at a time, and returns the joined errors of the failed items.
// It returns when every started item has finished. Do should only be used
// once on a given Work.
func (w *Work[T]) Do(n int, f func(item T) error) error {
	if n < 1 {
		panic("par.Work.Do: n < 1")
	}
	if w.running >= 1 {
		panic("par.Work.Do: already called Do")
	}

	w.running = n
	w.f = f
	w.wait.L = &w.mu

	var wg sync.WaitGroup
	for i := 0; i < n-1; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.runner()
		}()
	}
	w.runner()
	wg.Wait()

	return errors.Join(w.errs...)
}

// runner executes work in w until both nothing is left to do and all the
// runners are waiting for work. (Then all the runners return.)
func (w *Work[T]) runner() {
	for {
		w.mu.Lock()
		for len(w.todo) == 0 {
			w.waiting++
			if w.waiting == w.running {
				// All done.
				w.wait.Broadcast()
				w.mu.Unlock()
				return
			}
			w.wait.Wait()
			w.waiting--
		}

		item := w.todo[0]
		w.todo = w.todo[1:]
		w.mu.Unlock()

		if err := w.f(item); err != nil {
			w.mu.Lock()
			w.errs = append(w.errs, err)
			w.todo = nil
			w.mu.Unlock()
		}
	}
}
