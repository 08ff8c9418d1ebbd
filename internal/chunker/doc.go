// Package chunker splits source files into token-bounded chunks for
// embedding. Structural boundaries are preferred where a light-weight
// declaration scan exists for the language; everything else falls back to
// overlapping fixed-size line windows.
package chunker
