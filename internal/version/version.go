package version

// Current is the release version, without a leading "v".
const Current = "0.1.0"
