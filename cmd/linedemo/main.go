// Command linedemo counts n-queens solutions the same way cmd/nqueens
// does, but additionally records each solution's board into a list
// reducer, demonstrating that the merged list comes out in strict
// left-to-right spawn order regardless of which strand happened to finish
// first (grounded on original_source/reducer_bench/intlist.c and
// nqueens/nqueens.cilk).
package main

import (
	"flag"
	"fmt"

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

func solve(c *cilk.Context, n int, placed []int, boards *reducer.Hyperobject[[][]int]) {
	if len(placed) == n {
		board := make([]int, n)
		copy(board, placed)
		*boards.View(c) = append(*boards.View(c), board)
		return
	}
	for col := 0; col < n; col++ {
		if !valid(placed, col) {
			continue
		}
		next := make([]int, len(placed)+1)
		copy(next, placed)
		next[len(placed)] = col
		c.Spawn(func(c *cilk.Context) { solve(c, n, next, boards) })
	}
	c.Sync()
}

func main() {
	n := flag.Int("n", 8, "board size")
	flag.Parse()

	boards := reducer.NewList[[]int]()
	var solutions [][]int
	cilk.Do(func(c *cilk.Context) {
		solve(c, *n, nil, boards)
		solutions = *boards.View(c)
	})

	fmt.Printf("nqueens(%d): %d solutions collected via list reducer\n", *n, len(solutions))
	if len(solutions) > 0 {
		fmt.Printf("first solution: %v\n", solutions[0])
		fmt.Printf("last solution:  %v\n", solutions[len(solutions)-1])
	}
}
