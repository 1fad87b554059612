package plan

import (
	"fmt"
	"sort"

	"github.com/infra-ci/testtree/descriptor"
	"github.com/infra-ci/testtree/uid"
)

// BuildTree turns a plan into an executable descriptor tree. The tree root
// represents the plan itself; suites become containers and tests become
// leaf nodes backed by CommandNode behaviors. Suites are attached in sorted
// order so runs are reproducible.
func (l *Loader) BuildTree(planID string) (*descriptor.Tree, error) {
	p, err := l.PlanByID(planID)
	if err != nil {
		return nil, err
	}

	root := descriptor.New(uid.Root("plan", p.ID), p.ID, descriptor.TypeContainer)
	tree, err := descriptor.NewTree(root)
	if err != nil {
		return nil, err
	}

	for _, cfg := range p.Tests {
		if err := l.addTest(tree, root, cfg, p.Parallel); err != nil {
			return nil, fmt.Errorf("plan %q: %w", p.ID, err)
		}
	}

	suiteIDs := make([]string, 0, len(p.Suites))
	for suiteID := range p.Suites {
		suiteIDs = append(suiteIDs, suiteID)
	}
	sort.Strings(suiteIDs)

	for _, suiteID := range suiteIDs {
		suite := p.Suites[suiteID]
		d := descriptor.New(root.ID.Append("suite", suiteID), suiteID, descriptor.TypeContainer)
		if suite.Parallel {
			d.Mode = descriptor.ModeConcurrent
		}
		if err := tree.Add(root.ID, d); err != nil {
			return nil, fmt.Errorf("plan %q suite %q: %w", p.ID, suiteID, err)
		}
		for _, cfg := range suite.Tests {
			if err := l.addTest(tree, d, cfg, suite.Parallel); err != nil {
				return nil, fmt.Errorf("plan %q suite %q: %w", p.ID, suiteID, err)
			}
		}
	}

	return tree, nil
}

func (l *Loader) addTest(tree *descriptor.Tree, parent *descriptor.Descriptor, cfg TestConfig, parentParallel bool) error {
	d := descriptor.New(parent.ID.Append("test", cfg.Name), cfg.Name, descriptor.TypeTest)
	if cfg.Parallel || parentParallel {
		d.Mode = descriptor.ModeConcurrent
	}
	for _, tag := range cfg.Tags {
		d.AddTag(tag)
	}
	d.Resources = resourcesFor(cfg)
	d.Behavior = NewCommandNode(cfg, l.DefaultTimeout())
	return tree.Add(parent.ID, d)
}

func resourcesFor(cfg TestConfig) []descriptor.Resource {
	if len(cfg.Resources) == 0 {
		return nil
	}
	resources := make([]descriptor.Resource, 0, len(cfg.Resources))
	for _, res := range cfg.Resources {
		mode := descriptor.LockModeExclusive
		if res.Mode == ResourceModeShared {
			mode = descriptor.LockModeShared
		}
		resources = append(resources, descriptor.Resource{Key: res.Key, Mode: mode})
	}
	return resources
}
