package navigation

import (
	"container/heap"

	"github.com/newtron-network/flowmesh/pkg/flowmodel"
)

// FindPath runs Dijkstra over the package graph from sourceScreenID to
// targetScreenID, weighted by Transition.Cost(). Returns nil if the target
// is unreachable.
func (m *Manager) FindPath(pkg, sourceScreenID, targetScreenID string) (*flowmodel.NavigationPath, error) {
	g, err := m.Graph(pkg)
	if err != nil {
		return nil, err
	}
	return dijkstra(g, sourceScreenID, targetScreenID), nil
}

type pqItem struct {
	screenID string
	dist     float64
	index    int
}

type priorityQueue []*pqItem

func (pq priorityQueue) Len() int            { return len(pq) }
func (pq priorityQueue) Less(i, j int) bool  { return pq[i].dist < pq[j].dist }
func (pq priorityQueue) Swap(i, j int)       { pq[i], pq[j] = pq[j], pq[i]; pq[i].index = i; pq[j].index = j }
func (pq *priorityQueue) Push(x interface{}) {
	item := x.(*pqItem)
	item.index = len(*pq)
	*pq = append(*pq, item)
}
func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*pq = old[:n-1]
	return item
}

func dijkstra(g *flowmodel.NavigationGraph, source, target string) *flowmodel.NavigationPath {
	if source == target {
		return &flowmodel.NavigationPath{}
	}

	adjacency := make(map[string][]*flowmodel.Transition)
	for _, t := range g.Transitions {
		adjacency[t.SourceID] = append(adjacency[t.SourceID], t)
	}

	dist := map[string]float64{source: 0}
	prevEdge := make(map[string]*flowmodel.Transition)
	visited := make(map[string]bool)

	pq := &priorityQueue{{screenID: source, dist: 0}}
	heap.Init(pq)

	for pq.Len() > 0 {
		cur := heap.Pop(pq).(*pqItem)
		if visited[cur.screenID] {
			continue
		}
		visited[cur.screenID] = true
		if cur.screenID == target {
			break
		}
		for _, edge := range adjacency[cur.screenID] {
			nd := dist[cur.screenID] + edge.Cost()
			if existing, ok := dist[edge.TargetID]; !ok || nd < existing {
				dist[edge.TargetID] = nd
				prevEdge[edge.TargetID] = edge
				heap.Push(pq, &pqItem{screenID: edge.TargetID, dist: nd})
			}
		}
	}

	if _, ok := dist[target]; !ok {
		return nil
	}

	var chain []*flowmodel.Transition
	estimatedMS := 0.0
	cur := target
	for cur != source {
		edge := prevEdge[cur]
		if edge == nil {
			return nil
		}
		chain = append([]*flowmodel.Transition{edge}, chain...)
		estimatedMS += edge.AvgTransitionMS
		cur = edge.SourceID
	}

	return &flowmodel.NavigationPath{
		Transitions:     chain,
		TotalCost:       dist[target],
		EstimatedTimeMS: estimatedMS,
	}
}
