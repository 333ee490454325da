package graph

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrGraphNotFound = errors.New("graph not found")
	ErrInvalidGraph  = errors.New("invalid graph")
	ErrCycleDetected = errors.New("cycle detected in graph")
)

// Validate checks the structural rules of a run graph and reports every problem at once.
func Validate(graphID string, nodes []Node) error {
	var errs []string

	if len(nodes) == 0 {
		return fmt.Errorf("%w: graph %q has no nodes", ErrInvalidGraph, graphID)
	}

	ids := make(map[string]bool, len(nodes))
	for i, n := range nodes {
		if strings.TrimSpace(n.ID) == "" {
			errs = append(errs, fmt.Sprintf("nodes[%d].id is required", i))
			continue
		}
		if ids[n.ID] {
			errs = append(errs, fmt.Sprintf("node %q is defined twice", n.ID))
		}
		ids[n.ID] = true
		switch n.Type {
		case NodeWave, NodeBoss:
		default:
			errs = append(errs, fmt.Sprintf("node %q type must be one of: wave, boss", n.ID))
		}
		if n.Reward != nil {
			if n.Reward.Salvage != nil && *n.Reward.Salvage < 0 {
				errs = append(errs, fmt.Sprintf("node %q rewardPreview.salvage must be >= 0", n.ID))
			}
			if n.Reward.Cores != nil && *n.Reward.Cores < 0 {
				errs = append(errs, fmt.Sprintf("node %q rewardPreview.cores must be >= 0", n.ID))
			}
		}
	}
	if !ids[StartID] {
		errs = append(errs, fmt.Sprintf("node %q is required", StartID))
	}
	for _, n := range nodes {
		for _, exit := range n.Exits {
			if !ids[exit] {
				errs = append(errs, fmt.Sprintf("node %q exit %q does not exist", n.ID, exit))
			}
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: graph %q: %s", ErrInvalidGraph, graphID, strings.Join(errs, "; "))
	}
	if err := checkAcyclic(nodes); err != nil {
		return fmt.Errorf("graph %q: %w", graphID, err)
	}
	return nil
}

// checkAcyclic runs Kahn's algorithm over the exit edges.
func checkAcyclic(nodes []Node) error {
	inDegree := make(map[string]int, len(nodes))
	edges := make(map[string][]string, len(nodes))
	for _, n := range nodes {
		if _, ok := inDegree[n.ID]; !ok {
			inDegree[n.ID] = 0
		}
		for _, exit := range n.Exits {
			inDegree[exit]++
			edges[n.ID] = append(edges[n.ID], exit)
		}
	}

	var queue []string
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	visited := 0
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		visited++
		for _, next := range edges[cur] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}
	if visited != len(inDegree) {
		return ErrCycleDetected
	}
	return nil
}
