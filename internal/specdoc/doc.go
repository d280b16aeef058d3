// Package specdoc turns the extracted text of phase specification PDFs into
// sections of numbered requirements.
//
// The documents are produced from a common word-processor template: each
// file is named "Phase NN-NNN NAME.pdf", requirements are grouped under a
// fixed set of section headings, items are numbered "N." at the start of a
// line and pages end with a "NN-NNN Name YYYY" footer. Parsing is
// line-oriented and tolerant; anything outside a recognised section is
// ignored.
package specdoc
