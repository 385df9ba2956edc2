package types

// decimalWidth is the fixed on-disk width, in bytes, of a Decimal column:
// an 8-byte little-endian coefficient plus an 8-byte little-endian
// exponent. See RecordSerializer in internal/storage/pager for the encoding.
const decimalWidth = 16
