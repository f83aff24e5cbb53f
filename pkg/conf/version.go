package conf

// Version is the engine release tag, overridden at build time with
// -ldflags "-X velo/pkg/conf.Version=..."
var Version = "0.4.2"

// Banner identifies the daemon in the index page and logs
const Banner = "velo"
