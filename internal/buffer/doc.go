// Package buffer implements sample batching.
//
// Buffer accumulates one ticker's samples in arrival order and seals a batch
// when the size bound is reached, the oldest buffered sample exceeds the max
// buffering duration, or an explicit flush is requested. A Buffer is owned
// exclusively by its ticker's sampler, so sealing is atomic without locking.
//
// Handoff is a growable ring queue used to pass sealed batches from samplers
// to the writer side without blocking the polling loop.
package buffer
