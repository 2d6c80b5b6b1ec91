package build

import (
	"context"

	"github.com/outofforest/build"
	"github.com/outofforest/buildgo"
)

// Commands is a definition of commands available in build system
var Commands = map[string]build.Command{
	"setup": {Fn: setup, Description: "Installs tools required by development environment"},
	"test":  {Fn: goTests, Description: "Runs unit tests"},
}

func init() {
	buildgo.AddCommands(Commands)
}

func setup(ctx context.Context, deps build.DepsFunc) error {
	deps(buildgo.EnsureGo)
	return nil
}

func goTests(ctx context.Context, deps build.DepsFunc) error {
	return buildgo.GoTest(ctx, deps)
}
