// Package deconv removes the source pulse from a seismogram component,
// recovering the receiver function that describes the converted-wave
// response of the structure beneath the station.
//
// Three interchangeable methods share one contract:
//
//   - Water-level frequency-domain deconvolution: spectral division with
//     a damping floor at a fraction of the source's peak power, followed
//     by a Gaussian low-pass
//   - Iterative time-domain deconvolution: greedy matching pursuit that
//     builds the receiver function as a spike train, subtracting scaled
//     and shifted copies of the source pulse from the residual
//   - Multitaper spectral deconvolution: averages several sine-tapered
//     spectral estimates before dividing, trading resolution for variance
//
// Inputs are two equal-length, co-sampled traces; the output is a
// receiver-function trace of the same length and sampling interval,
// annotated with the method and a variance-reduction fit value. A
// configurable acausal lead (Shift) moves zero lag away from the first
// sample; the onset header of the result marks the zero-lag position.
//
// All methods are pure functions of their inputs and can run concurrently
// across traces.
package deconv
