package zhmcgo

// Version is the library version, set at release time.
const Version = "0.1.0"
