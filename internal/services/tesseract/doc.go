// Package tesseract wraps the tesseract CLI for whiteboard OCR.
//
// Commands run through the Runner interface so tests can stub them. A missing
// binary is reported as services.ErrAdapterUnavailable; a non-zero exit
// (unreadable image) or empty output is services.ErrAdapterRejected.
package tesseract
