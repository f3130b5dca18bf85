package bollywood

import (
	"container/list"
	"fmt"
	"hash/fnv"
	"sync"
	"time"
)

// VirtualID identifies a logical (type, key[, partition]) actor whose
// physical placement the runtime manages on demand (spec.md §4.7).
type VirtualID struct {
	Type      string
	Key       string
	Partition string
}

func (v VirtualID) String() string {
	if v.Partition == "" {
		return v.Type + "|" + v.Key
	}
	return v.Type + "|" + v.Key + "|" + v.Partition
}

// NodeInfo describes one cluster node as seen by a PlacementStrategy.
type NodeInfo struct {
	ID         string
	Healthy    bool
	CPUPercent float64
	MemPercent float64
	ActorCount int
}

// NodeProvider supplies the current node set. The runtime does not
// ship cluster membership (Non-goal); callers wire their own.
type NodeProvider interface {
	Nodes() []NodeInfo
}

// staticNodeProvider is the simplest NodeProvider: a fixed list,
// useful for tests and single-process deployments.
type staticNodeProvider struct{ nodes []NodeInfo }

func (s staticNodeProvider) Nodes() []NodeInfo { return s.nodes }

// StaticNodes builds a NodeProvider from a fixed node list.
func StaticNodes(nodes ...NodeInfo) NodeProvider { return staticNodeProvider{nodes: nodes} }

// PlacementStrategy picks a node for a virtual id and decides whether
// an existing placement should migrate.
type PlacementStrategy interface {
	Select(id VirtualID, nodes []NodeInfo) (nodeID string, err error)
	ShouldMigrate(id VirtualID, currentNode string, nodes []NodeInfo) bool
}

// RoundRobinStrategy cycles through available healthy nodes.
type RoundRobinStrategy struct {
	mu   sync.Mutex
	next int
}

func (r *RoundRobinStrategy) Select(_ VirtualID, nodes []NodeInfo) (string, error) {
	healthy := healthyNodes(nodes)
	if len(healthy) == 0 {
		return "", fmt.Errorf("bollywood: no healthy nodes available")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	n := healthy[r.next%len(healthy)]
	r.next++
	return n.ID, nil
}

func (r *RoundRobinStrategy) ShouldMigrate(_ VirtualID, currentNode string, nodes []NodeInfo) bool {
	return !nodeHealthy(nodes, currentNode)
}

// ConsistentHashStrategy places a virtual id on
// hash(type|key) mod len(nodes), migrating only if its node becomes
// unhealthy.
type ConsistentHashStrategy struct{}

func (c ConsistentHashStrategy) Select(id VirtualID, nodes []NodeInfo) (string, error) {
	if len(nodes) == 0 {
		return "", fmt.Errorf("bollywood: no nodes available")
	}
	h := fnv.New64a()
	_, _ = h.Write([]byte(id.Type + "|" + id.Key))
	idx := int(h.Sum64() % uint64(len(nodes)))
	return nodes[idx].ID, nil
}

func (c ConsistentHashStrategy) ShouldMigrate(_ VirtualID, currentNode string, nodes []NodeInfo) bool {
	return !nodeHealthy(nodes, currentNode)
}

// LoadAwareStrategy prefers the least-loaded healthy node, migrating
// when the current node crosses any of the documented thresholds
// (cpu>70%, mem>70%, actor-count>1000).
type LoadAwareStrategy struct{}

func (l LoadAwareStrategy) Select(_ VirtualID, nodes []NodeInfo) (string, error) {
	healthy := healthyNodes(nodes)
	if len(healthy) == 0 {
		return "", fmt.Errorf("bollywood: no healthy nodes available")
	}
	best := healthy[0]
	for _, n := range healthy[1:] {
		if load(n) < load(best) {
			best = n
		}
	}
	return best.ID, nil
}

func (l LoadAwareStrategy) ShouldMigrate(_ VirtualID, currentNode string, nodes []NodeInfo) bool {
	n, ok := findNode(nodes, currentNode)
	if !ok || !n.Healthy {
		return true
	}
	return n.CPUPercent > 70 || n.MemPercent > 70 || n.ActorCount > 1000
}

func load(n NodeInfo) float64 {
	return n.CPUPercent + n.MemPercent + float64(n.ActorCount)
}

func healthyNodes(nodes []NodeInfo) []NodeInfo {
	out := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		if n.Healthy {
			out = append(out, n)
		}
	}
	return out
}

func nodeHealthy(nodes []NodeInfo, id string) bool {
	n, ok := findNode(nodes, id)
	return ok && n.Healthy
}

func findNode(nodes []NodeInfo, id string) (NodeInfo, bool) {
	for _, n := range nodes {
		if n.ID == id {
			return n, true
		}
	}
	return NodeInfo{}, false
}

// ActivatorFunc constructs the Behavior for a virtual actor's physical
// instance on activation.
type ActivatorFunc func(id VirtualID) Behavior

// directoryEntry is the LRU cache's record for one active virtual
// actor (spec.md §3's "Directory entry").
type directoryEntry struct {
	id              VirtualID
	physical        *PID
	node            string
	lastAccessed    time.Time
	activationCount int
	isActive        bool
}

// VirtualDirectory presents (type, key[, partition]) identities and
// guarantees exactly one active physical actor per identity
// system-wide, backed by a fixed-capacity LRU cache (§4.7).
type VirtualDirectory struct {
	mu       sync.Mutex
	system   *System
	capacity int
	strategy PlacementStrategy
	nodes    NodeProvider
	maxIdle  time.Duration

	activators map[string]ActivatorFunc

	lru     *list.List // front = most recently used
	byID    map[string]*list.Element
	hits    int
	misses  int

	stopCleanup chan struct{}
}

// VirtualDirectoryConfig configures a VirtualDirectory.
type VirtualDirectoryConfig struct {
	Capacity          int
	Strategy          PlacementStrategy
	Nodes             NodeProvider
	MaxIdleTime       time.Duration
	HealthCheckPeriod time.Duration
}

// NewVirtualDirectory constructs a virtual actor directory bound to
// sys, using cfg's placement strategy and LRU capacity.
func NewVirtualDirectory(sys *System, cfg VirtualDirectoryConfig) *VirtualDirectory {
	if cfg.Capacity <= 0 {
		cfg.Capacity = 10000
	}
	if cfg.Strategy == nil {
		cfg.Strategy = ConsistentHashStrategy{}
	}
	if cfg.Nodes == nil {
		cfg.Nodes = StaticNodes()
	}
	if cfg.MaxIdleTime <= 0 {
		cfg.MaxIdleTime = 30 * time.Minute
	}
	vd := &VirtualDirectory{
		system:     sys,
		capacity:   cfg.Capacity,
		strategy:   cfg.Strategy,
		nodes:      cfg.Nodes,
		maxIdle:    cfg.MaxIdleTime,
		activators: make(map[string]ActivatorFunc),
		lru:        list.New(),
		byID:       make(map[string]*list.Element),
	}
	if cfg.HealthCheckPeriod > 0 {
		vd.startCleanup(cfg.HealthCheckPeriod)
	}
	return vd
}

// RegisterType binds a virtual actor type name to the behavior
// constructor used on activation.
func (vd *VirtualDirectory) RegisterType(typeName string, activator ActivatorFunc) {
	vd.mu.Lock()
	defer vd.mu.Unlock()
	vd.activators[typeName] = activator
}

// Get returns the physical ref for id, activating it on a
// strategy-chosen node if it is not already cached. A cache hit
// updates recency and increments the entry's activation count; a miss
// activates and inserts, evicting the least-recently-used entry if the
// cache is full.
func (vd *VirtualDirectory) Get(id VirtualID) (*PID, error) {
	key := id.String()

	vd.mu.Lock()
	if el, ok := vd.byID[key]; ok {
		entry := el.Value.(*directoryEntry)
		entry.lastAccessed = time.Now()
		entry.activationCount++
		vd.lru.MoveToFront(el)
		vd.hits++
		ref := entry.physical
		vd.mu.Unlock()
		return ref, nil
	}
	vd.misses++
	activator, ok := vd.activators[id.Type]
	vd.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("bollywood: no activator registered for virtual type %q", id.Type)
	}

	nodeID, err := vd.strategy.Select(id, vd.nodes.Nodes())
	if err != nil {
		return nil, err
	}

	behavior := activator(id)
	pid, err := vd.system.Spawn(NewProps(func() Behavior { return behavior }), nil)
	if err != nil {
		return nil, fmt.Errorf("bollywood: failed to activate virtual actor %s: %w", key, err)
	}

	entry := &directoryEntry{
		id: id, physical: pid, node: nodeID,
		lastAccessed: time.Now(), activationCount: 1, isActive: true,
	}

	vd.mu.Lock()
	if el, ok := vd.byID[key]; ok {
		// A concurrent Get activated this id first; keep that one.
		existing := el.Value.(*directoryEntry).physical
		vd.mu.Unlock()
		vd.system.stopActor(pid)
		return existing, nil
	}
	if vd.lru.Len() >= vd.capacity {
		vd.evictOldest()
	}
	el := vd.lru.PushFront(entry)
	vd.byID[key] = el
	vd.mu.Unlock()

	return pid, nil
}

// evictOldest removes the least-recently-used entry. Caller must hold
// vd.mu.
func (vd *VirtualDirectory) evictOldest() {
	back := vd.lru.Back()
	if back == nil {
		return
	}
	entry := back.Value.(*directoryEntry)
	vd.lru.Remove(back)
	delete(vd.byID, entry.id.String())
	vd.system.stopActor(entry.physical)
}

// Len returns the current number of cached entries (never exceeds
// capacity — P6).
func (vd *VirtualDirectory) Len() int {
	vd.mu.Lock()
	defer vd.mu.Unlock()
	return vd.lru.Len()
}

// Stats reports cache hit/miss counters.
type VirtualDirectoryStats struct {
	Hits, Misses, Size, Capacity int
}

func (vd *VirtualDirectory) Stats() VirtualDirectoryStats {
	vd.mu.Lock()
	defer vd.mu.Unlock()
	return VirtualDirectoryStats{Hits: vd.hits, Misses: vd.misses, Size: vd.lru.Len(), Capacity: vd.capacity}
}

// startCleanup launches the periodic idle sweep described in §4.7.4:
// entries idle longer than maxIdleTime are removed and their physical
// actor deactivated.
func (vd *VirtualDirectory) startCleanup(period time.Duration) {
	vd.stopCleanup = make(chan struct{})
	go func() {
		ticker := time.NewTicker(period)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				vd.cleanupIdle()
			case <-vd.stopCleanup:
				return
			}
		}
	}()
}

func (vd *VirtualDirectory) cleanupIdle() {
	cutoff := time.Now().Add(-vd.maxIdle)

	vd.mu.Lock()
	var toStop []*PID
	for el := vd.lru.Back(); el != nil; {
		prev := el.Prev()
		entry := el.Value.(*directoryEntry)
		if entry.lastAccessed.Before(cutoff) {
			vd.lru.Remove(el)
			delete(vd.byID, entry.id.String())
			toStop = append(toStop, entry.physical)
		}
		el = prev
	}
	vd.mu.Unlock()

	for _, pid := range toStop {
		vd.system.stopActor(pid)
	}
}

// StopCleanup halts the periodic idle sweep, if running.
func (vd *VirtualDirectory) StopCleanup() {
	if vd.stopCleanup != nil {
		select {
		case <-vd.stopCleanup:
		default:
			close(vd.stopCleanup)
		}
	}
}

// RemoveNode migrates or deactivates every entry placed on nodeID,
// per spec.md §4.7.5: entries are migrated to any remaining node
// (directory entry copied; physical actor state seeds empty unless a
// persistence collaborator reactivates it) or deactivated if no node
// remains.
func (vd *VirtualDirectory) RemoveNode(nodeID string) {
	remaining := make([]NodeInfo, 0)
	for _, n := range vd.nodes.Nodes() {
		if n.ID != nodeID {
			remaining = append(remaining, n)
		}
	}

	vd.mu.Lock()
	var toMigrate []*directoryEntry
	for el := vd.lru.Front(); el != nil; el = el.Next() {
		entry := el.Value.(*directoryEntry)
		if entry.node == nodeID {
			toMigrate = append(toMigrate, entry)
		}
	}
	vd.mu.Unlock()

	for _, entry := range toMigrate {
		vd.system.stopActor(entry.physical)

		vd.mu.Lock()
		key := entry.id.String()
		if el, ok := vd.byID[key]; ok {
			vd.lru.Remove(el)
			delete(vd.byID, key)
		}
		vd.mu.Unlock()

		if len(remaining) == 0 {
			continue // deactivated, no node to migrate to
		}

		activator, ok := vd.activators[entry.id.Type]
		if !ok {
			continue
		}
		newNode, err := vd.strategy.Select(entry.id, remaining)
		if err != nil {
			continue
		}
		behavior := activator(entry.id)
		pid, err := vd.system.Spawn(NewProps(func() Behavior { return behavior }), nil)
		if err != nil {
			continue
		}

		vd.mu.Lock()
		newEntry := &directoryEntry{
			id: entry.id, physical: pid, node: newNode,
			lastAccessed: time.Now(), activationCount: entry.activationCount + 1, isActive: true,
		}
		el := vd.lru.PushFront(newEntry)
		vd.byID[key] = el
		vd.mu.Unlock()
	}
}
