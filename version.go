package packrat

// VERSION is the current release version.
const VERSION = "v0.1.0"
