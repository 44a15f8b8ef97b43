package bootstrap

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/interact-platform/lifecycle-engine/pkg/notify"
	"github.com/interact-platform/lifecycle-engine/pkg/rules"
)

// InitRulesEngine builds the gamification rule processor with the builtin
// counter sources registered.
func InitRulesEngine(st rules.Store, notifier notify.Notifier) (*rules.Processor, error) {
	sources := rules.NewSourceRegistry()
	if err := rules.RegisterBuiltinSources(sources); err != nil {
		return nil, fmt.Errorf("failed to register counter sources: %w", err)
	}
	logrus.Infof("registered %d counter sources", sources.Count())

	evaluator := rules.NewEvaluator(st, sources)
	awarder := rules.NewAwarder(st)
	processor := rules.NewProcessor(st, evaluator, awarder, notifier, logrus.StandardLogger())
	logrus.Infof("initialized rules processor")

	return processor, nil
}
