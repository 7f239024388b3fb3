// Package nodes assembles the node sequences of the built-in workflows.
package nodes

import (
	"github.com/dukex/devflow/pkg/models"
	"github.com/dukex/devflow/pkg/nodes/build"
	"github.com/dukex/devflow/pkg/nodes/gitpush"
	"github.com/dukex/devflow/pkg/nodes/prep"
	"github.com/dukex/devflow/pkg/nodes/selecttask"
	"github.com/dukex/devflow/pkg/workflow"
)

// DevTeamConfig carries what the DevTeam nodes need from the worker.
type DevTeamConfig struct {
	Runner         build.Runner
	Completer      gitpush.Completer
	Checkout       prep.Checkout
	WorkspaceRoot  string
	ContainerImage string
	GitRemote      string
}

// DevTeamAutomation is select task, prep, build, then push.
func DevTeamAutomation(config DevTeamConfig) workflow.Workflow {
	return workflow.Workflow{
		Type: models.WorkflowTypeDevTeamAutomation,
		Nodes: []workflow.Node{
			selecttask.New(),
			prep.New(config.WorkspaceRoot, config.Checkout),
			build.New(config.Runner, config.ContainerImage),
			gitpush.New(config.Runner, config.Completer, config.ContainerImage, config.GitRemote),
		},
	}
}
