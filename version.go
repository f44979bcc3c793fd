package voicerag

// Version is overridden at build time with -ldflags "-X github.com/a-h/voicerag.Version=...".
var Version = "dev"
