// Package sequence converts numbered image sequences.
//
// An input such as shot.%04d.exr or shot.####.exr names a frame range in
// one directory. Discover lists the matching frames in frame order and
// Orchestrator fans them out over a fixed pool of workers that pull from a
// shared queue, each running the single-image conversion with one kernel
// thread. A failed or locked frame never stops the batch.
package sequence
