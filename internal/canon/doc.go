// Package canon provides canonical JSON for tapedeck.
//
// Recorded values, interception keys and recording digests all pass through
// this package so that the same logical value always produces the same bytes:
//
//   - Object keys sorted by UTF-16 code units (RFC 8785), not UTF-8 bytes
//   - No HTML escaping (< > & are written literally)
//   - Marshal NFC-normalizes strings (keys); Encode writes them unchanged
//     (stored documents)
//   - Numbers are kept as the literal produced by encoding/json, so integers
//     beyond 2^53 never lose precision
//
// Values are first normalized (see Normalize) into the generic JSON shape
// (nil, bool, string, json.Number, []any, map[string]any). Normalized values
// are what recordings store and what playback compares.
package canon
