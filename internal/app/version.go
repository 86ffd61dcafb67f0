package app

import "mcpscene/internal/domain"

// Version is the semantic version of mcpscene, set at build time via -ldflags.
var Version = domain.ClientVersion

// Build is the git commit hash or build identifier, set at build time via -ldflags.
var Build = "dev"
