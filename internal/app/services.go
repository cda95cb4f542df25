package app

import (
	"fmt"

	"kernelctl/internal/capability"
	"kernelctl/internal/config"
	"kernelctl/internal/manifest"
	"kernelctl/internal/resolution"
	"kernelctl/internal/resource"
	"kernelctl/internal/tracing"
)

// Services holds the kernel components of one application.
type Services struct {
	Registry *capability.Registry
	Context  *resolution.Context
	Tree     *resource.Tree
	Loader   *manifest.Loader
	Applier  *Applier
	Tracing  *tracing.Provider
}

// InitializeServices wires a fresh registry, resolution context and
// resource tree from the kernel configuration.
func InitializeServices(kc *config.KernelConfig) (*Services, error) {
	tp, err := tracing.NewProvider(tracing.Config{
		Enabled:     kc.Tracing.Enabled,
		Exporter:    kc.Tracing.Exporter,
		ServiceName: kc.Tracing.ServiceName,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}

	loader, err := manifest.NewLoader(kc.Kernel.SupportedModelVersions)
	if err != nil {
		return nil, err
	}

	registry := capability.NewRegistry()
	rc := resolution.NewContext(registry,
		resolution.WithTracer(tp.Tracer()),
		resolution.WithStartTimeout(kc.Kernel.StartTimeout),
		resolution.WithStopTimeout(kc.Kernel.StopTimeout),
	)
	tree := resource.NewTree(rc)

	return &Services{
		Registry: registry,
		Context:  rc,
		Tree:     tree,
		Loader:   loader,
		Applier:  NewApplier(tree),
		Tracing:  tp,
	}, nil
}
