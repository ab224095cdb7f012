package sandbox

import (
	"github.com/ChamsBouzaiene/polyrun/internal/workspace"
)

// GetDockerImage returns the image used for a runtime. A custom image in
// config takes precedence.
func GetDockerImage(runtime workspace.Runtime, config Config) string {
	if config.DockerImage != "" {
		return config.DockerImage
	}

	switch runtime {
	case workspace.RuntimePython:
		return "python:3-alpine"
	case workspace.RuntimeNode:
		return "node:alpine"
	case workspace.RuntimeDotnet:
		return "mcr.microsoft.com/dotnet/sdk:8.0"
	default:
		return "alpine:latest"
	}
}
