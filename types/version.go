package types

// Version is the project version reported by both binaries.
// The wire protocol is not negotiated; host and worker must come from the
// same build.
const Version = "0.3.0"
