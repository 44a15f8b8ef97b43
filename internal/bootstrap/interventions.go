package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/intervention"
	"github.com/interact-platform/lifecycle-engine/pkg/notify"
)

// InterventionStack bundles the selection, dispatch, and write-back engines
// that share one playbook catalog.
type InterventionStack struct {
	Playbook   intervention.Playbook
	Selector   *intervention.Selector
	Dispatcher *intervention.Dispatcher
	Recorder   *intervention.Recorder
}

// InitInterventionStack loads the playbook catalog and builds the engines
// on top of it.
func InitInterventionStack(st intervention.Store, playbookPath string, notifier notify.Notifier) (*InterventionStack, error) {
	playbook, err := intervention.LoadPlaybook(playbookPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load playbook from %s: %w", playbookPath, err)
	}
	logrus.Infof("loaded playbook with %d lifecycle states", len(playbook))

	selector := intervention.NewSelector(st, playbook)
	stack := &InterventionStack{
		Playbook:   playbook,
		Selector:   selector,
		Dispatcher: intervention.NewDispatcher(st, selector, notifier),
		Recorder:   intervention.NewRecorder(st, playbook),
	}
	logrus.Infof("initialized intervention stack")

	return stack, nil
}
