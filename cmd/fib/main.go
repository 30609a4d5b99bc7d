// Command fib computes Fibonacci numbers with nested Spawn/Sync, the
// classic smallest-possible exercise of the fork/join scheduler (grounded
// on original_source/bench/fib.c).
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/cilkgo/cilk"
)

func fib(c *cilk.Context, n int, result *int) {
	if n < 2 {
		*result = n
		return
	}
	var a, b int
	c.Spawn(func(c *cilk.Context) { fib(c, n-1, &a) })
	fib(c, n-2, &b)
	c.Sync()
	*result = a + b
}

func main() {
	n := flag.Int("n", 30, "fibonacci index to compute")
	flag.Parse()

	fmt.Printf("=== Fibonacci(%d) over %d workers ===\n", *n, cilk.NumWorkers())

	start := time.Now()
	var result int
	cilk.Do(func(c *cilk.Context) {
		fib(c, *n, &result)
	})
	fmt.Printf("fib(%d) = %d (%v)\n", *n, result, time.Since(start))
}
