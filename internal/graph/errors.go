package graph

import "github.com/cockroachdb/errors"

var (
	// ErrInvalidFormat is returned when a buffer does not match the format the
	// graph was built for. The frame must be dropped.
	ErrInvalidFormat = errors.New("invalid frame format")

	// ErrGraphMisconfigured is returned by Build when the topology is invalid.
	ErrGraphMisconfigured = errors.New("filter graph misconfigured")

	// ErrResourceTornDown is returned by any operation on a closed graph.
	ErrResourceTornDown = errors.New("filter graph torn down")

	// ErrNodeNotFound is returned when a filter name is not part of the graph.
	ErrNodeNotFound = errors.New("filter node not found")
)
