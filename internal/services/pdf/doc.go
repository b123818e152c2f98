// Package pdf renders study guides and whiteboard sheets with gofpdf.
//
// Text is set in an embedded DejaVu Sans (regular and bold) registered as a
// UTF-8 font, so Greek, Cyrillic and symbol-heavy lecture content renders
// as written. Runes outside the Basic Multilingual Plane become U+FFFD.
package pdf
