package wayz

// Version is the release version. Overridden at build time with
// -ldflags "-X github.com/aretw0/wayz.Version=...".
var Version = "0.1.0-dev"
