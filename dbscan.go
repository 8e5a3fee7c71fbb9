// Copyright (c) 2025 hitoshi.mukai.b@gmail.com. All rights reserved.
// You are free to use this source code for any purpose. The copyright remains with the author.
// The author accepts no liability for any damages arising from the use of this source code.
//
// Last modified: 2026.10.16
//

// Density-based clustering (DBSCAN) used to find the dominant group of
// pseudorange residuals.

package gopos

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Type of a clustered point
type PointType int

const (
	PointUndo PointType = iota
	PointCore
	PointBorder
	PointNoise
)

func (t PointType) String() string {
	switch t {
	case PointCore:
		return "core"
	case PointBorder:
		return "border"
	case PointNoise:
		return "noise"
	default:
		return "undo"
	}
}

// ClusterPoint is one sample to be clustered
type ClusterPoint struct {
	X       []float64 // Coordinates
	Cluster int       // Cluster ID starting from 1 (0: unclassified or noise)
	Type    PointType // Point type
	Pts     int       // Number of neighbours within Eps, including itself
	Visited bool
}

func NewClusterPoint(x ...float64) ClusterPoint {
	return ClusterPoint{X: x}
}

// ClusteringParams holds DBSCAN parameters
type ClusteringParams struct {
	Eps    float64 // Neighbourhood radius
	MinPts int     // Minimum number of neighbours of a core point
}

func (p ClusteringParams) Validate() error {
	if !(p.Eps > 0) {
		return fmt.Errorf("eps must be positive, eps=%f", p.Eps)
	}
	if p.MinPts < 1 {
		return fmt.Errorf("minpts must be at least 1, minpts=%d", p.MinPts)
	}
	return nil
}

// DBSCAN labels the points in place and returns the number of clusters.
//   - Core points (Pts >= MinPts) are linked when within Eps of each other
//     and numbered in index order.
//   - Each remaining point takes the cluster of the first core point within
//     Eps and becomes a border point.
//   - Points with no core point in range are noise.
func DBSCAN(points []ClusterPoint, params ClusteringParams) (int, error) {
	if err := params.Validate(); err != nil {
		return 0, err
	}
	n := len(points)
	if n == 0 {
		return 0, nil
	}
	for i := range points {
		points[i].Cluster = 0
		points[i].Type = PointUndo
		points[i].Pts = 0
		points[i].Visited = false
	}

	// Distance matrix and neighbour counts
	dist := make([][]float64, n)
	for i := range points {
		dist[i] = make([]float64, n)
		for j := range points {
			if len(points[i].X) != len(points[j].X) {
				return 0, fmt.Errorf("dimension mismatch, point %d (%d) and %d (%d)", i, len(points[i].X), j, len(points[j].X))
			}
			dist[i][j] = floats.Distance(points[i].X, points[j].X, 2)
			if dist[i][j] <= params.Eps {
				points[i].Pts++
			}
		}
	}

	// Core points
	cores := []int{}
	for i := range points {
		if points[i].Pts >= params.MinPts {
			points[i].Type = PointCore
			cores = append(cores, i)
		}
	}

	// Link core points (indices into cores)
	links := make([][]int, len(cores))
	for i, ci := range cores {
		for j, cj := range cores {
			if dist[ci][cj] <= params.Eps {
				links[i] = append(links[i], j)
			}
		}
	}

	// Connected components of core points
	cluster := make([]int, len(cores))
	visited := make([]bool, len(cores))
	nc := 0
	for i := range cores {
		if visited[i] {
			continue
		}
		nc++
		cluster[i] = nc
		stack := []int{i}
		for len(stack) > 0 {
			v := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			visited[v] = true
			for _, k := range links[v] {
				if visited[k] {
					continue
				}
				cluster[k] = nc
				visited[k] = true
				stack = append(stack, k)
			}
		}
	}
	for i, ci := range cores {
		points[ci].Visited = visited[i]
		points[ci].Cluster = cluster[i]
	}

	// Border points
	for i := range points {
		if points[i].Type == PointCore {
			continue
		}
		points[i].Type = PointNoise
		for j, cj := range cores {
			if dist[i][cj] <= params.Eps {
				points[i].Type = PointBorder
				points[i].Cluster = cluster[j]
				break
			}
		}
	}

	tracef("dbscan", "n", n, "cores", len(cores), "clusters", nc)
	return nc, nil
}
