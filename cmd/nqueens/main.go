// Command nqueens counts solutions to the n-queens problem by spawning one
// strand per valid placement at each row, accumulating the solution count
// in a sum reducer (grounded on original_source/bench/nqueens.c).
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/cilkgo/cilk"
	"github.com/cilkgo/cilk/reducer"
)

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

func valid(placed []int, col int) bool {
	row := len(placed)
	for i, p := range placed {
		if p == col || abs(p-col) == row-i {
			return false
		}
	}
	return true
}

func nqueens(c *cilk.Context, n int, placed []int, count *reducer.Hyperobject[int]) {
	if len(placed) == n {
		*count.View(c)++
		return
	}
	for col := 0; col < n; col++ {
		if !valid(placed, col) {
			continue
		}
		next := make([]int, len(placed)+1)
		copy(next, placed)
		next[len(placed)] = col
		c.Spawn(func(c *cilk.Context) { nqueens(c, n, next, count) })
	}
	c.Sync()
}

func main() {
	n := flag.Int("n", 8, "board size")
	flag.Parse()

	count := reducer.NewSum[int]()
	start := time.Now()
	var total int
	cilk.Do(func(c *cilk.Context) {
		nqueens(c, *n, nil, count)
		total = *count.View(c)
	})
	fmt.Printf("nqueens(%d) = %d solutions (%v)\n", *n, total, time.Since(start))
}
