// Package transform turns a channel-resolved float buffer into an 8-bit
// thumbnail image.
//
// The stages run in a fixed order: Flatten collapses deep samples,
// ConvertColor brings the pixels into sRGB, and Fit resamples to the
// requested longest edge. Flatten and colour failures are reported with
// services.ErrFlatten and services.ErrColorConvert and leave the buffer
// usable; resize failures carry services.ErrTransform.
package transform
