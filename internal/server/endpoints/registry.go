package endpoints

import (
	"github.com/jackzampolin/relayout/internal/api"
	"github.com/jackzampolin/relayout/internal/docker"
)

// Config holds dependencies needed by some endpoints.
type Config struct {
	// DockerManager is nil when the detector container is not managed.
	DockerManager *docker.Manager
}

// All returns all endpoint instances.
func All(cfg Config) []api.Endpoint {
	return []api.Endpoint{
		// Health endpoints
		&HealthEndpoint{},
		&ReadyEndpoint{},
		&StatusEndpoint{DockerManager: cfg.DockerManager},

		// Document endpoints
		&UploadDocumentEndpoint{},
		&GetDocumentEndpoint{},

		// Page endpoints
		&GetPageEndpoint{},
		&PageImageEndpoint{},
		&SetRegionsEndpoint{},

		// Layout endpoints
		&DetectEndpoint{},
		&CompareEndpoint{},
		&ReclassifyEndpoint{},

		// Metrics endpoints
		&MetricsSummaryEndpoint{},
		&ListMetricsEndpoint{},
	}
}
