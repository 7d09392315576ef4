// Package imageio opens source images for the converter.
//
// Formats are served by codecs registered in a Registry keyed by format name
// and file extension; the built-in "std" codec covers PNG, JPEG, GIF, TIFF,
// BMP and WebP. A codec exposes every subimage (movie frame, GIF frame, page)
// and mip level of a file together with its channel names, deep flag and
// declared colour space, and decodes any of them into a float32 Buffer.
//
// Loader chooses which subimage and mip level to decode for a requested
// thumbnail size. Opened inputs go through a process-wide, memory-bounded
// Cache that callers invalidate once a conversion finishes.
package imageio
