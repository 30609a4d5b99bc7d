// Command matmul multiplies two square matrices with a divide-and-conquer
// Spawn/Sync strategy over quadrants and checks the result against a
// naive serial multiply (grounded on original_source/bench/matmul_4_way_z.c).
package main

import (
	"flag"
	"fmt"
	"math/rand"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/cilkgo/cilk"
)

type matrix struct {
	n    int
	data []float64
}

func newMatrix(n int) *matrix { return &matrix{n: n, data: make([]float64, n*n)} }

func (m *matrix) at(i, j int) float64      { return m.data[i*m.n+j] }
func (m *matrix) set(i, j int, v float64)  { m.data[i*m.n+j] = v }
func (m *matrix) add(i, j int, v float64)  { m.data[i*m.n+j] += v }

// multiplyInto adds to rows [rowOff, rowOff+size) of dst, across all of
// dst's columns, the products of a's columns [colOff, colOff+size) with
// the matching rows of b. It recurses on quadrants and spawns the halves
// that write disjoint rows of dst, so concurrent strands never share a row.
func multiplyInto(c *cilk.Context, dst, a, b *matrix, rowOff, colOff, size, grain int) {
	if size <= grain {
		for i := 0; i < size; i++ {
			for k := 0; k < size; k++ {
				aik := a.at(rowOff+i, colOff+k)
				if aik == 0 {
					continue
				}
				for j := 0; j < dst.n; j++ {
					dst.add(rowOff+i, j, aik*b.at(colOff+k, j))
				}
			}
		}
		return
	}
	half := size / 2
	c.Spawn(func(c *cilk.Context) { multiplyInto(c, dst, a, b, rowOff, colOff, half, grain) })
	multiplyInto(c, dst, a, b, rowOff+half, colOff, size-half, grain)
	c.Sync()
	c.Spawn(func(c *cilk.Context) { multiplyInto(c, dst, a, b, rowOff, colOff+half, half, grain) })
	multiplyInto(c, dst, a, b, rowOff+half, colOff+half, size-half, grain)
	c.Sync()
}

func naiveMultiply(a, b *matrix) *matrix {
	n := a.n
	out := newMatrix(n)
	for i := 0; i < n; i++ {
		for k := 0; k < n; k++ {
			aik := a.at(i, k)
			for j := 0; j < n; j++ {
				out.add(i, j, aik*b.at(k, j))
			}
		}
	}
	return out
}

func randomMatrix(n int, rng *rand.Rand) *matrix {
	m := newMatrix(n)
	for i := range m.data {
		m.data[i] = rng.Float64()
	}
	return m
}

func main() {
	n := flag.Int("n", 256, "matrix dimension (power of two)")
	grain := flag.Int("grain", 32, "base-case submatrix size")
	flag.Parse()

	rng := rand.New(rand.NewSource(1))
	a := randomMatrix(*n, rng)
	b := randomMatrix(*n, rng)

	// The cilk quadrant multiply and the naive serial reference multiply
	// are independent; running them on an errgroup saves wall time over
	// doing the naive pass only after the parallel one finishes.
	var got, want *matrix
	start := time.Now()
	var g errgroup.Group
	g.Go(func() error {
		cilk.Do(func(c *cilk.Context) {
			got = newMatrix(*n)
			multiplyInto(c, got, a, b, 0, 0, *n, *grain)
		})
		return nil
	})
	g.Go(func() error {
		want = naiveMultiply(a, b)
		return nil
	})
	_ = g.Wait()
	elapsed := time.Since(start)

	maxDiff := 0.0
	for i := range got.data {
		d := got.data[i] - want.data[i]
		if d < 0 {
			d = -d
		}
		if d > maxDiff {
			maxDiff = d
		}
	}

	fmt.Printf("matmul %dx%d (grain=%d): max abs diff vs naive = %.3g (%v)\n", *n, *n, *grain, maxDiff, elapsed)
}
