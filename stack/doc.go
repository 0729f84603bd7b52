// Package stack combines receiver functions from many events and
// stations into aggregate estimates of subsurface structure.
//
// Two aggregation modes are provided:
//
//   - binned trace stacking: receiver functions are grouped by a
//     configurable key (slowness interval, back-azimuth sector, event
//     depth, or profile offset) and averaged per bin with per-sample
//     uncertainty estimates
//   - H-k grid search: a grid of candidate crustal thickness and Vp/Vs
//     pairs is scanned for the combination that maximizes the summed
//     receiver-function amplitude at the predicted arrival times of the
//     Ps conversion and its surface multiples (Zhu & Kanamori style)
//
// Accumulation is commutative and associative: adding traces in any
// order, or merging independent partial accumulators, produces the same
// bins up to floating-point rounding. Workers can therefore stack
// disjoint subsets concurrently and merge the results.
package stack
