package deconv_test

import (
	"fmt"
	"time"

	"github.com/cwbudde/algo-rf/deconv"
	"github.com/cwbudde/algo-rf/internal/testutil"
	"github.com/cwbudde/algo-rf/trace"
)

func ExampleDeconvolve() {
	const delta = 0.1

	// Source wavelet and a response containing one delayed, scaled echo.
	wavelet := testutil.Ricker(1.5, delta, 64, 20)
	spikes := testutil.SpikeTrain([]testutil.Spike{
		{Time: 0, Amp: 1},
		{Time: 4, Amp: 0.5},
	}, delta, 256)
	echoed := testutil.ConvolveFull(spikes, wavelet)[:256]

	source, _ := trace.New(append(wavelet, make([]float64, 192)...), delta, time.Time{}, trace.Header{Component: "L"})
	response, _ := trace.New(echoed, delta, time.Time{}, trace.Header{Component: "Q"})

	opts := deconv.DefaultOptions()
	opts.Method = deconv.Iterative
	opts.Iterative.Shift = 0

	res, err := deconv.Deconvolve(response, source, opts)
	if err != nil {
		fmt.Println("error:", err)
		return
	}

	fmt.Printf("method: %s\n", res.Method)
	fmt.Printf("converged: %t\n", res.Converged)
	fmt.Printf("samples: %d\n", res.RF.Len())
	// Output:
	// method: iterative
	// converged: true
	// samples: 256
}
