// Package meshfmt encodes and decodes mesh buffers in the MEDIT text
// format and a compact binary equivalent.
//
// The text format is the one the engine's load/save entry points consume:
// named sections (Vertices, Edges, Triangles, Tetrahedra), each a count
// followed by whitespace-separated coordinates or 1-indexed connectivity
// plus a reference tag per element. The mesh kind is detected from the
// Dimension marker and the presence of a Tetrahedra section.
//
// Both formats round-trip: encoding then decoding yields identical counts
// and connectivity, and coordinates exact in binary and to full %g
// precision in text.
package meshfmt
