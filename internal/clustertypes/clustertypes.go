// Package clustertypes holds the small set of value types shared by the
// provisioner, batch-system, and core scaler packages, so none of those
// packages need to import each other just to describe a node.
package clustertypes

// Node is the identity of a provisioned worker, as supplied by the
// provisioner.
type Node struct {
	PrivateIP   string
	NodeType    string
	Preemptable bool
}

// NodeInfo is the observed state of a running node, as reported by the
// batch system. It is synthesized with zero values when the batch system
// has no information about a node the provisioner knows about.
type NodeInfo struct {
	CoresTotal     float64
	CoresUsed      float64
	RequestedCores float64

	MemoryTotal     int64
	MemoryUsed      int64
	RequestedMemory int64

	// Workers is the count of executors currently running on the node.
	Workers int
}
