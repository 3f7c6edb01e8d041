// Package barcode decodes QR symbols from images.
//
// The Backend interface is the opaque decoder capability used by the scan
// pipeline. The default backend is built on gozxing and only looks for QR
// codes. A frame with no symbol is not an error: backends return an empty
// slice. Any other failure is reported as a *DecodeError.
package barcode
