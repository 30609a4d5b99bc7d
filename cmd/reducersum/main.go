// Command reducersum adds 1 to a sum reducer for every index in [0, n) of
// a parallel for loop, so the total it prints equals n, grounded on
// original_source/reducer_bench/intsum.c and repeatedintsum.c.
package main

import (
	"flag"
	"fmt"
	"time"

	"github.com/cilkgo/cilk"
	"github.com/cilkgo/cilk/reducer"
)

func main() {
	n := flag.Int("n", 1000000, "exclusive upper bound to sum")
	grain := flag.Int("grain", 1024, "parallel-for grain size")
	flag.Parse()

	sum := reducer.NewSum[int64]()
	start := time.Now()
	var total int64
	cilk.Do(func(c *cilk.Context) {
		c.For(0, *n, *grain, func(c *cilk.Context, i int) {
			*sum.View(c)++
		})
		total = *sum.View(c)
	})

	fmt.Printf("sum of 1 over [0, %d) = %d (%v)\n", *n, total, time.Since(start))
}
